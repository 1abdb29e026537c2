package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/fabfab/design-eval/api"
	"github.com/fabfab/design-eval/config"
	"github.com/fabfab/design-eval/database"
	"github.com/fabfab/design-eval/embeddings"
	"github.com/fabfab/design-eval/eval"
	"github.com/fabfab/design-eval/generation"
	"github.com/fabfab/design-eval/guideline"
	"github.com/fabfab/design-eval/ledger"
	"github.com/fabfab/design-eval/provider"
	"github.com/fabfab/design-eval/retrieval"
	"github.com/fabfab/design-eval/rubric"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "refresh":
		refreshCmd(cfg, logger, os.Args[2:])
	case "export":
		exportCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "address to listen on")
	refreshOnStart := flags.Bool("refresh", false, "refresh retrieval indexes before serving")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, cleanup, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}
	defer cleanup()

	if *refreshOnStart && deps.service != nil {
		if err := deps.service.RagRefresh(ctx); err != nil {
			logger.Printf("initial retrieval refresh failed: %v", err)
		}
	}

	server := api.NewServer(*addr, deps.service, deps.rubrics, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatalf("server: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}
}

func refreshCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("refresh", flag.ExitOnError)
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse refresh flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, cleanup, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}
	defer cleanup()

	if err := deps.service.RagRefresh(ctx); err != nil {
		logger.Fatalf("refresh retrieval indexes: %v", err)
	}
	logger.Printf("retrieval indexes refreshed")
}

func exportCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("export", flag.ExitOnError)
	out := flags.String("out", "", "output file (defaults to stdout)")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse export flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deps, cleanup, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("startup: %v", err)
	}
	defer cleanup()

	rows, err := deps.service.ExportDataset(ctx)
	if err != nil {
		logger.Fatalf("export dataset: %v", err)
	}

	dest := os.Stdout
	if *out != "" {
		file, err := os.Create(*out)
		if err != nil {
			logger.Fatalf("create output file: %v", err)
		}
		defer file.Close()
		dest = file
	}

	encoder := json.NewEncoder(dest)
	for _, row := range rows {
		if err := encoder.Encode(row); err != nil {
			logger.Fatalf("write dataset row: %v", err)
		}
	}
	logger.Printf("exported %d complete submissions", len(rows))
}

type components struct {
	service *eval.Service
	rubrics *rubric.Store
}

// buildComponents assembles the full dependency graph from configuration.
// The returned cleanup closes the postgres pool when one was opened.
func buildComponents(ctx context.Context, cfg config.Config, logger *log.Logger) (components, func(), error) {
	cleanup := func() {}

	var pool *pgxpool.Pool
	needsPostgres := cfg.Ledger.Backend == config.BackendPostgres || cfg.RAG.Backend == config.BackendPostgres
	if needsPostgres {
		var err error
		pool, err = database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return components{}, cleanup, fmt.Errorf("postgres connection: %w", err)
		}
		cleanup = pool.Close
	}

	var store ledger.Store
	switch cfg.Ledger.Backend {
	case config.BackendPostgres:
		if err := ledger.EnsureSchema(ctx, pool); err != nil {
			return components{}, cleanup, fmt.Errorf("ledger schema: %w", err)
		}
		store = ledger.NewPostgresStore(pool)
	case config.BackendMemory:
		store = ledger.NewMemoryStore()
	default:
		return components{}, cleanup, fmt.Errorf("unknown ledger backend: %s", cfg.Ledger.Backend)
	}

	gidx, err := guideline.Load(cfg.Guideline.Path, guideline.Options{
		DocID:   cfg.Guideline.DocID,
		Version: cfg.Guideline.Version,
		Tag:     cfg.Guideline.DocID,
	})
	if err != nil {
		return components{}, cleanup, fmt.Errorf("load guideline: %w", err)
	}

	rubrics, err := rubric.Load(cfg.Rubric.Path)
	if err != nil {
		return components{}, cleanup, fmt.Errorf("load rubric: %w", err)
	}

	llm, err := provider.New(cfg)
	if err != nil {
		return components{}, cleanup, fmt.Errorf("model provider setup: %w", err)
	}
	engine := generation.NewEngine(llm, cfg.Generation, logger)

	var rag *retrieval.Service
	if cfg.RAG.ExpertURL != "" && cfg.RAG.EvaluationURL != "" {
		embedder, err := embeddings.NewEmbedder(cfg)
		if err != nil {
			return components{}, cleanup, fmt.Errorf("embedder setup: %w", err)
		}

		var builder retrieval.Builder
		switch cfg.RAG.Backend {
		case config.BackendPostgres:
			builder = retrieval.NewPgVectorBuilder(pool, embedder, llm, cfg.Model.Model, cfg.RAG.TopK, cfg.Embeddings.Dimension)
		case config.BackendMemory:
			builder = retrieval.NewMemoryBuilder(embedder, llm, cfg.Model.Model, cfg.RAG.TopK)
		default:
			return components{}, cleanup, fmt.Errorf("unknown retrieval backend: %s", cfg.RAG.Backend)
		}

		fetcher := retrieval.NewHTTPFetcher(cfg.RAG.FetchTimeout)
		rag = retrieval.NewService(cfg.RAG.ExpertURL, cfg.RAG.EvaluationURL, fetcher, builder, logger)
	}

	service := eval.NewService(store, gidx, engine, rag, cfg.Model, cfg.RAG.TopK, logger)

	return components{service: service, rubrics: rubrics}, cleanup, nil
}

func printUsage() {
	fmt.Println("usage: design-eval <command> [flags]")
	fmt.Println()
	fmt.Println("commands:")
	fmt.Println("  serve    start the HTTP API")
	fmt.Println("  refresh  rebuild the retrieval indexes and exit")
	fmt.Println("  export   write the training dataset as JSON lines")
}
