package memory

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Durable state lives in three co-located files inside the data directory.
// The log and metadata are JSON arrays; the matrix is binary little-endian:
// dims (uint32), rows (uint32), then rows*dims float32 values.
const (
	conversationsFile = "conversations.json"
	metadataFile      = "metadata.json"
	embeddingsFile    = "embeddings.bin"
)

func (s *Store) conversationsPath() string { return filepath.Join(s.dataDir, conversationsFile) }
func (s *Store) metadataPath() string      { return filepath.Join(s.dataDir, metadataFile) }
func (s *Store) embeddingsPath() string    { return filepath.Join(s.dataDir, embeddingsFile) }

// load restores all three structures from disk. Missing or unreadable files
// degrade to empty state. If the files disagree on length (a crash between
// the three writes can leave them misaligned), everything is truncated to the
// shortest so the alignment invariant holds.
func (s *Store) load() {
	if err := loadJSON(s.conversationsPath(), &s.turns); err != nil {
		s.logger.Warn("conversation log load failed; starting empty", zap.Error(err))
		s.turns = nil
	}
	if err := loadJSON(s.metadataPath(), &s.meta); err != nil {
		s.logger.Warn("metadata load failed; starting empty", zap.Error(err))
		s.meta = nil
	}
	matrix, err := loadMatrix(s.embeddingsPath(), s.embedder.Dimensions())
	if err != nil {
		s.logger.Warn("embedding matrix load failed; starting empty", zap.Error(err))
		matrix = nil
	}
	s.matrix = matrix

	n := len(s.turns)
	if len(s.meta) < n {
		n = len(s.meta)
	}
	if len(s.matrix) < n {
		n = len(s.matrix)
	}
	if n != len(s.turns) || n != len(s.meta) || n != len(s.matrix) {
		s.logger.Warn("state files misaligned; truncating",
			zap.Int("turns", len(s.turns)),
			zap.Int("metadata", len(s.meta)),
			zap.Int("vectors", len(s.matrix)),
			zap.Int("kept", n))
		s.turns = s.turns[:n]
		s.meta = s.meta[:n]
		s.matrix = s.matrix[:n]
	}
	if n > 0 {
		s.logger.Info("conversation store loaded", zap.Int("turns", n))
	}
}

// persist rewrites all three files in full. Not atomic across the three
// files: a crash mid-write can leave them misaligned, which load reconciles
// by truncation.
func (s *Store) persist() error {
	if err := saveJSON(s.conversationsPath(), s.turns); err != nil {
		return fmt.Errorf("save conversation log: %w", err)
	}
	if err := saveJSON(s.metadataPath(), s.meta); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}
	if err := s.saveMatrix(); err != nil {
		return fmt.Errorf("save embedding matrix: %w", err)
	}
	return nil
}

func (s *Store) saveMatrix() error {
	return saveMatrix(s.embeddingsPath(), s.matrix, s.embedder.Dimensions())
}

func loadJSON(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, out)
}

func saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// saveMatrix writes the matrix in the binary format described above.
func saveMatrix(path string, matrix [][]float32, dims int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create matrix file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(dims)); err != nil {
		return fmt.Errorf("write dims: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(matrix))); err != nil {
		return fmt.Errorf("write row count: %w", err)
	}
	for _, row := range matrix {
		if len(row) != dims {
			return fmt.Errorf("row width %d, expected %d", len(row), dims)
		}
		if _, err := f.Write(float32SliceToBytes(row)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	return nil
}

// loadMatrix reads a matrix written by saveMatrix. A missing file yields a
// nil matrix and no error; a dimension mismatch is an error, since rows of
// the wrong width cannot be compared against fresh embeddings.
func loadMatrix(path string, dims int) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open matrix file: %w", err)
	}
	defer f.Close()
	var fileDims, rows uint32
	if err := binary.Read(f, binary.LittleEndian, &fileDims); err != nil {
		return nil, fmt.Errorf("read dims: %w", err)
	}
	if int(fileDims) != dims {
		return nil, fmt.Errorf("dimension mismatch: file has %d, store expects %d", fileDims, dims)
	}
	if err := binary.Read(f, binary.LittleEndian, &rows); err != nil {
		return nil, fmt.Errorf("read row count: %w", err)
	}
	matrix := make([][]float32, 0, rows)
	buf := make([]byte, dims*4)
	for i := uint32(0); i < rows; i++ {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("read row %d: %w", i, err)
		}
		matrix = append(matrix, bytesToFloat32Slice(buf))
	}
	return matrix, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
