// Package main is the Omoide CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/omoide/internal/config"
	"github.com/hyperjump/omoide/internal/embedding"
	"github.com/hyperjump/omoide/internal/generator"
	"github.com/hyperjump/omoide/internal/memory"
	"github.com/hyperjump/omoide/internal/server"
	"github.com/hyperjump/omoide/internal/session"
	"github.com/hyperjump/omoide/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/omoide/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if neither
// exists, built-in defaults are used so the tool runs without any config file.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				return config.Load(fallback)
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "record":
		runRecord()
	case "query":
		runQuery()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("omoide version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Memory    *memory.Store
	Sessions  *session.Store
	Generator generator.Generator
}

func (c *Components) Close() {
	if c.Sessions != nil {
		_ = c.Sessions.Close()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	vectorizer := embedding.NewVectorizer(cfg.Memory.Dimensions)
	store, err := memory.NewStore(cfg.Storage.DataDir, vectorizer,
		memory.WithLogger(logger),
		memory.WithTopN(cfg.Memory.TopN),
		memory.WithMinScore(cfg.Memory.MinScore),
		memory.WithCacheSize(cfg.Memory.CacheSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize conversation store: %w", err)
	}

	sessions, err := session.NewStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	var gen generator.Generator
	if cfg.Generator.APIKey == "" {
		logger.Warn("GOOGLE_API_KEY not set; responses will be canned")
		gen = &generator.Static{Response: "No language model is configured. Set GOOGLE_API_KEY to enable generation."}
	} else {
		gemini, err := generator.NewGemini(context.Background(), cfg.Generator.APIKey, cfg.Generator.Model)
		if err != nil {
			_ = sessions.Close()
			return nil, fmt.Errorf("failed to initialize generator: %w", err)
		}
		gen = gemini
	}

	return &Components{Memory: store, Sessions: sessions, Generator: gen}, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(components.Memory, components.Sessions, components.Generator, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runRecord() {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	user := fs.String("user", "", "user or session identifier")
	_ = fs.Parse(os.Args[2:])

	if *user == "" || fs.NArg() < 2 {
		fmt.Println("Usage: omoide record --user <id> <message> <response>")
		os.Exit(1)
	}
	components, _, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	id, err := components.Memory.Record(*user, fs.Arg(0), fs.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Record failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Turn recorded: %s\n", id)
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	user := fs.String("user", "", "user or session identifier")
	topN := fs.Int("top-n", 0, "number of turns to return (0 = config default)")
	_ = fs.Parse(os.Args[2:])

	if *user == "" || fs.NArg() < 1 {
		fmt.Println("Usage: omoide query --user <id> [--top-n N] <query text>")
		os.Exit(1)
	}
	components, _, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	contextText := components.Memory.Query(*user, strings.Join(fs.Args(), " "), *topN)
	if contextText == "" {
		fmt.Println("(no relevant context)")
		return
	}
	fmt.Println(contextText)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	user := fs.String("user", "", "limit the turn count to one user")
	_ = fs.Parse(os.Args[2:])

	components, cfg, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	sessionCount, err := components.Sessions.Count(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count sessions failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("turns:      %d\n", components.Memory.Count(*user))
	fmt.Printf("sessions:   %d\n", sessionCount)
	fmt.Printf("data_dir:   %s\n", cfg.Storage.DataDir)
	if diskBytes, err := memory.DiskUsageBytes(cfg.Storage.DataDir, cfg.Storage.DatabasePath); err == nil {
		fmt.Printf("disk_bytes: %d\n", diskBytes)
	}
}

func mustInitialize(configPath string) (*Components, *config.Config, *zap.Logger) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return components, cfg, logger
}

func printUsage() {
	fmt.Println(`omoide - conversational backend with persistent semantic memory

Usage:
  omoide server [flags]                       Start the HTTP server
  omoide record --user <id> <msg> <resp>      Store a conversation turn
  omoide query --user <id> <query text>       Print retrieved context
  omoide status [flags]                       Show store/session counts
  omoide version                              Show version
  omoide help                                 Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/omoide/config.yaml)
  --debug            Enable debug logging

Examples:
  omoide server
  omoide record --user u1 "What is caching?" "Caching stores results for reuse."
  omoide query --user u1 Tell me about caches
  omoide status --user u1`)
}
