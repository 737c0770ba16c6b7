package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"verse-rag/internal/analyzer"
	"verse-rag/internal/composer"
	"verse-rag/internal/config"
	"verse-rag/internal/corpus"
	"verse-rag/internal/db"
	"verse-rag/internal/embedding"
	"verse-rag/internal/indexer"
	"verse-rag/internal/llm"
	"verse-rag/internal/ports"
	"verse-rag/internal/rag"
	"verse-rag/internal/retriever"
	"verse-rag/internal/server"
	"verse-rag/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "./configs/config.yaml", "Path to the config file")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verses, err := corpus.Load(cfg.Corpus.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading corpus")
	}
	units := corpus.BuildUnits(verses, cfg.RAG.ContextWindowSize)

	embedder, err := embedding.NewOllama(&cfg.Ollama)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	generator, err := llm.NewOllama(&cfg.Ollama)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing LLM client")
	}

	store, err := vectorstore.New(cfg.Vector.Path, cfg.Vector.Collection)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}

	sqldb := db.ConnectDB(cfg.Database.DSN)
	defer sqldb.Close()
	conversations := db.NewStore(db.NewDB(sqldb, cfg.Database.Debug))
	if err := conversations.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("Error initializing conversation database")
	}

	ix := indexer.New(embedder, store)

	// Indexing can take a long time (one embedding call per verse). Serve
	// immediately and gate queries on the ready flag instead of blocking.
	go func() {
		if err := ix.EnsureIndex(ctx, units); err != nil {
			log.Fatal().Err(err).Msg("Indexing failed")
		}
	}()

	var queryAnalyzer ports.QueryAnalyzer
	switch {
	case !*cfg.RAG.QueryRewrite.Enabled:
		queryAnalyzer = analyzer.NewPassthroughAnalyzer()
	case cfg.RAG.QueryRewrite.Strategy == "heuristic":
		queryAnalyzer = analyzer.NewHeuristicAnalyzer(cfg.RAG.QueryContextMessages)
	default:
		queryAnalyzer = analyzer.NewLLMAnalyzer(generator, cfg.Ollama.QueryRewriteTemperature, cfg.RAG.QueryContextMessages)
	}

	service := rag.NewService(
		queryAnalyzer,
		retriever.New(embedder, store),
		composer.New(generator, cfg.Ollama.LLMTemperature, cfg.Ollama.LLMMaxTokens),
		conversations,
		ix.Ready,
		cfg.RAG.TopKResults,
		cfg.RAG.QueryContextMessages,
	)

	srv := server.New(service, conversations, ix.Ready, cfg.Server.Addr, cfg.Server.CORSOrigins)
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("HTTP server failed")
	}
}
