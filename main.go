package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/devanaclimgo/lectern/answer"
	"github.com/devanaclimgo/lectern/api"
	"github.com/devanaclimgo/lectern/config"
	"github.com/devanaclimgo/lectern/database"
	"github.com/devanaclimgo/lectern/gateway"
	"github.com/devanaclimgo/lectern/index"
	"github.com/devanaclimgo/lectern/retrieve"
	"github.com/devanaclimgo/lectern/store"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "ask":
		askCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

type deps struct {
	pool   *pgxpool.Pool
	driver neo4j.DriverWithContext
	chunks store.ChunkStore
	gw     gateway.Gateway
}

func setup(ctx context.Context, cfg config.Config, logger *log.Logger) (*deps, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connection: %w", err)
	}
	if err := database.EnsureSchema(ctx, pool, cfg.EmbeddingDimension); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	var driver neo4j.DriverWithContext
	if cfg.Neo4jURI != "" {
		driver, err = database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("neo4j connection: %w", err)
		}
	} else {
		logger.Println("NEO4J_URI not set, lecture graph disabled")
	}

	gw := gateway.NewOpenAI(gateway.Options{
		APIKey:             cfg.OpenAIAPIKey,
		BaseURL:            cfg.OpenAIBaseURL,
		ChatModel:          cfg.ChatModel,
		EmbeddingModel:     cfg.EmbeddingModel,
		TranscriptionModel: cfg.TranscriptionModel,
		Dimension:          cfg.EmbeddingDimension,
	})

	return &deps{
		pool:   pool,
		driver: driver,
		chunks: store.NewPostgresStore(pool),
		gw:     gw,
	}, nil
}

func (d *deps) close(ctx context.Context) {
	if d.driver != nil {
		_ = d.driver.Close(ctx)
	}
	d.pool.Close()
}

func retrievalDefaults(cfg config.Config) retrieve.Params {
	return retrieve.Params{
		K:               cfg.RetrievalK,
		SimilarityFloor: cfg.SimilarityFloor,
		TokenBudget:     cfg.TokenBudget,
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ListenAddr, "address to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := setup(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer d.close(ctx)

	indexer := index.NewService(d.gw, d.chunks, d.driver, logger)
	retriever := retrieve.NewRetriever(d.gw, d.chunks, logger)
	synthesizer := answer.NewSynthesizer(d.gw, insightStore(d.driver), logger)

	server := &http.Server{
		Addr:    *addr,
		Handler: api.New(indexer, retriever, synthesizer, retrievalDefaults(cfg), logger),
	}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	logger.Printf("HTTP server listening on %s", *addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("serve: %v", err)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := flags.String("file", "", "path to a lecture audio file or notes document")
	sourceID := flags.String("source", "", "source id (defaults to the file name)")
	mimeType := flags.String("mime", "", "MIME type of the payload (inferred from the extension when empty)")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}
	if *file == "" {
		logger.Fatal("ingest requires --file")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		logger.Fatalf("read %s: %v", *file, err)
	}

	id := *sourceID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(*file), filepath.Ext(*file))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := setup(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer d.close(ctx)

	indexer := index.NewService(d.gw, d.chunks, d.driver, logger)

	var chunks []store.Chunk
	if format := index.DetectNotesFormat(*mimeType, *file); format != index.NotesUnknown {
		chunks, err = indexer.IngestNotes(ctx, id, data, format)
	} else {
		chunks, err = indexer.Ingest(ctx, id, data, audioMimeType(*mimeType, *file))
	}
	if err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}

	logger.Printf("ingested %s as source %s (%d chunks)", *file, id, len(chunks))
}

func askCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ask", flag.ExitOnError)
	question := flags.String("question", "", "question to ask over the ingested lectures")
	k := flags.Int("k", cfg.RetrievalK, "number of context chunks to retrieve")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ask flags: %v", err)
	}
	if strings.TrimSpace(*question) == "" {
		logger.Fatal("ask requires --question")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := setup(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer d.close(ctx)

	retriever := retrieve.NewRetriever(d.gw, d.chunks, logger)
	synthesizer := answer.NewSynthesizer(d.gw, insightStore(d.driver), logger)

	params := retrievalDefaults(cfg)
	params.K = *k

	retrieval, err := retriever.Retrieve(ctx, *question, params)
	if err != nil {
		logger.Fatalf("retrieve failed: %v", err)
	}

	result, err := synthesizer.Answer(ctx, *question, retrieval)
	if err != nil {
		logger.Fatalf("answer failed: %v", err)
	}

	fmt.Println(result.Text)
	if len(result.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for i, src := range result.Sources {
			fmt.Printf("%d. %s (score %.2f)\n", i+1, src.SourceID, src.Score)
			if src.Insight.ChunkCount > 0 {
				fmt.Printf("   Indexed chunks: %d\n", src.Insight.ChunkCount)
			}
		}
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	sourceID := flags.String("source", "", "remove a single source instead of everything")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := setup(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup: %v", err)
	}
	defer d.close(ctx)

	indexer := index.NewService(d.gw, d.chunks, d.driver, logger)

	if *sourceID != "" {
		if err := indexer.Remove(ctx, *sourceID); err != nil {
			logger.Fatalf("remove source %s: %v", *sourceID, err)
		}
		logger.Printf("removed source %s", *sourceID)
		return
	}

	if _, err := d.pool.Exec(ctx, "TRUNCATE lecture_chunks"); err != nil {
		logger.Fatalf("truncate lecture_chunks: %v", err)
	}
	if d.driver != nil {
		session := d.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
		defer session.Close(ctx)
		if err := purgeGraph(ctx, session); err != nil {
			logger.Fatalf("clear lecture graph: %v", err)
		}
	}
	logger.Println("all ingested lecture data removed")
}

func purgeGraph(ctx context.Context, session neo4j.SessionWithContext) error {
	queries := []string{
		"MATCH (l:Lecture) DETACH DELETE l",
		"MATCH (c:Chunk) DETACH DELETE c",
	}
	for _, query := range queries {
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return err
		}
		if _, err := result.Consume(ctx); err != nil {
			return err
		}
	}
	return nil
}

func insightStore(driver neo4j.DriverWithContext) answer.GraphStore {
	if driver == nil {
		return nil
	}
	return answer.NewNeo4jGraphStore(driver)
}

func audioMimeType(flagValue, path string) string {
	if flagValue != "" {
		return flagValue
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	default:
		return "audio/webm"
	}
}

func printUsage() {
	fmt.Println("Usage: lectern <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the HTTP API for lecture uploads and questions")
	fmt.Println("  ingest   Ingest a lecture audio file or notes document (--file)")
	fmt.Println("  ask      Ask a question over the ingested lectures (--question)")
	fmt.Println("  clear    Remove ingested lecture data (--source to limit)")
}
