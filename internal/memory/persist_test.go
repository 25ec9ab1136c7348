package memory

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMatrixRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	matrix := [][]float32{
		{1, 0, 0.5, -0.25},
		{0, 1, 0, 0},
	}
	if err := saveMatrix(path, matrix, 4); err != nil {
		t.Fatal(err)
	}
	got, err := loadMatrix(path, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("rows: got %d, want 2", len(got))
	}
	for i := range matrix {
		for j := range matrix[i] {
			if got[i][j] != matrix[i][j] {
				t.Errorf("[%d][%d]: got %v, want %v", i, j, got[i][j], matrix[i][j])
			}
		}
	}
}

func TestLoadMatrix_MissingFile(t *testing.T) {
	got, err := loadMatrix(filepath.Join(t.TempDir(), "nope.bin"), 4)
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil matrix, got %v", got)
	}
}

func TestLoadMatrix_DimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	if err := saveMatrix(path, [][]float32{{1, 2}}, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := loadMatrix(path, 4); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestStore_LoadReconcilesMisalignedFiles(t *testing.T) {
	dir := t.TempDir()
	emb := newStubEmbedder(4)
	store, err := NewStore(dir, emb)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Record("u1", "m", "r"); err != nil {
			t.Fatal(err)
		}
	}

	// Simulate a crash between the three writes: the matrix has fewer rows
	// than the log and metadata.
	if err := saveMatrix(filepath.Join(dir, "embeddings.bin"), store.matrix[:2], 4); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewStore(dir, newStubEmbedder(4))
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Count(""); got != 2 {
		t.Errorf("expected truncation to 2 turns, got %d", got)
	}
	if len(reloaded.turns) != len(reloaded.meta) || len(reloaded.turns) != len(reloaded.matrix) {
		t.Error("reloaded state misaligned")
	}
}

func TestStore_LoadIgnoresCorruptJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "conversations.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	store, err := NewStore(dir, newStubEmbedder(4))
	if err != nil {
		t.Fatal(err)
	}
	if got := store.Count(""); got != 0 {
		t.Errorf("corrupt log should degrade to empty, got %d turns", got)
	}
}
