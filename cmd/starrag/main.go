// Package main is the StarRAG CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Tarrun1506/starrag-bot/internal/config"
	"github.com/Tarrun1506/starrag-bot/internal/embedding"
	"github.com/Tarrun1506/starrag-bot/internal/extract"
	"github.com/Tarrun1506/starrag-bot/internal/llm"
	"github.com/Tarrun1506/starrag-bot/internal/models"
	"github.com/Tarrun1506/starrag-bot/internal/pipeline"
	"github.com/Tarrun1506/starrag-bot/internal/rag"
	"github.com/Tarrun1506/starrag-bot/internal/server"
	"github.com/Tarrun1506/starrag-bot/internal/storage"
	"github.com/Tarrun1506/starrag-bot/internal/watcher"
	"github.com/Tarrun1506/starrag-bot/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("starrag version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig loads the config at path; a missing file at the default path
// falls back to built-in defaults so the tool works without any config.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == defaultConfigPath {
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		return cfg, nil
	}
	return config.Load(path)
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
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if err := components.Pipeline.LoadFromStore(ctx); err != nil {
		logger.Warn("could not load existing documents", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	var watch *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watch = watcher.NewWatcher(
			cfg.Watch.Directories,
			extract.NewExtractor().Supported,
			func(path string, content []byte) {
				if _, err := components.Service.Upload(watchCtx, content, filepath.Base(path)); err != nil {
					logger.Warn("drop ingest failed", zap.String("path", path), zap.Error(err))
				}
			},
			logger,
		)
		if err := watch.Start(watchCtx); err != nil {
			logger.Fatal("failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(components.Service, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down...")
	if watch != nil {
		watch.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: starrag ingest [flags] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	if err := components.Pipeline.LoadFromStore(ctx); err != nil {
		logger.Warn("could not load existing documents", zap.Error(err))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("Failed to read file: %v\n", err)
		os.Exit(1)
	}
	docID, err := components.Service.Upload(ctx, content, filepath.Base(path))
	if err != nil {
		fmt.Printf("Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document ingested: %s\n", docID)
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	model := fs.String("model", "", "model to use (must be allow-listed)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: starrag query [flags] <question>")
		os.Exit(1)
	}

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	if err := components.Pipeline.LoadFromStore(ctx); err != nil {
		logger.Warn("could not load existing documents", zap.Error(err))
	}
	resp, err := components.Service.Query(ctx, &models.QueryRequest{
		Query: fs.Arg(0),
		Model: *model,
	})
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(resp.Response)
	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range resp.Sources {
			fmt.Printf("  %s\n", src)
		}
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: starrag delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	if err := components.Pipeline.LoadFromStore(ctx); err != nil {
		logger.Warn("could not load existing documents", zap.Error(err))
	}
	if err := components.Service.DeleteDocument(ctx, docID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	components, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	if err := components.Pipeline.LoadFromStore(ctx); err != nil {
		logger.Warn("could not load existing documents", zap.Error(err))
	}
	status, err := components.Service.Status(ctx)
	if err != nil {
		fmt.Printf("Status failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(status)
}

// Components holds initialized services.
type Components struct {
	Store    storage.Store
	Embedder embedding.Embedder
	Pipeline *pipeline.Pipeline
	Service  *rag.Service
}

// Close releases component resources.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func mustInitialize(configPath string) (*Components, *zap.Logger) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	return components, logger
}

// initializeComponents wires storage, embedder, pipeline, generator, and
// service. A store that fails to open degrades to session-only operation.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	var store storage.Store
	sqlStore, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Warn("document store unavailable; running session-only",
			zap.String("path", cfg.Storage.DatabasePath),
			zap.Error(err))
	} else {
		store = sqlStore
	}

	embedder := embedding.NewOllamaEmbedder(embedding.OllamaConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
	})

	chunker := pipeline.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	var docStore storage.DocumentStore
	if store != nil {
		docStore = store
	}
	pipe := pipeline.New(chunker, extract.NewExtractor(), embedder, docStore, logger)

	client := llm.NewClient(llm.ClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	generator := llm.NewGenerator(client, llm.GeneratorConfig{
		AllowedModels: cfg.LLM.AllowedModels,
		Temperature:   cfg.LLM.Temperature,
		TopP:          cfg.LLM.TopP,
		MaxTokens:     cfg.LLM.MaxTokens,
	}, logger)

	service := rag.NewService(pipe, generator, store, rag.Config{
		RetrievalK:   cfg.Ingest.RetrievalK,
		DefaultModel: cfg.LLM.DefaultModel,
	}, logger)

	return &Components{
		Store:    store,
		Embedder: embedder,
		Pipeline: pipe,
		Service:  service,
	}, nil
}

func printUsage() {
	fmt.Println(`starrag - local retrieval-augmented document chat

Usage:
  starrag server [flags]            Start the HTTP server
  starrag ingest [flags] <file>     Ingest a document (txt, pdf, docx)
  starrag query [flags] <question>  Ask a question against the corpus
  starrag delete [flags] <id>       Delete a document and rebuild the index
  starrag status [flags]            Show corpus and index counters
  starrag version                   Show version
  starrag help                      Show this help

Flags:
  --config string   Config file path (default: config.yaml)
  --debug           Enable debug logging (server only)
  --model string    Model for query (must be allow-listed)`)
}
