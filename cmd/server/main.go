// Command server wires every adapter and usecase stage into an HTTP
// server exposing POST /v1/query, grounded on the teacher's
// cmd/server/main.go (numbered wiring steps, signal-based graceful
// shutdown).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	rag_http "taxauditrag/internal/adapter/http"
	"taxauditrag/internal/adapter/lexical"
	"taxauditrag/internal/adapter/llm"
	"taxauditrag/internal/adapter/vector"
	"taxauditrag/internal/cache"
	"taxauditrag/internal/infra/config"
	"taxauditrag/internal/infra/logger"
	"taxauditrag/internal/usecase"
	"taxauditrag/internal/usecase/retrieval"
)

const vectorDimensions = 1024

func main() {
	// 1. Load config
	cfg := config.Load()

	// 2. Initialize logger
	log := logger.New(os.Getenv("LOG_LEVEL"))
	slog.SetDefault(log)

	// 3. Initialize adapters
	lexicalClient, err := lexical.NewBleveClient(map[string]string{
		"findings": "",
		"chunks":   "",
	})
	if err != nil {
		log.Error("failed to initialize lexical store", "error", err)
		os.Exit(1)
	}
	defer lexicalClient.Close()

	vectorClient := vector.NewHNSWClient(vectorDimensions, "findings_vectors", "chunks_vectors")

	llmClient := llm.NewOllamaClient(cfg.LLMBaseURL, cfg.LLMModel, 60, log)
	embedder := llm.NewOllamaEmbedder(cfg.LLMBaseURL, cfg.LLMModel, 10, log)

	// 4. Initialize caches
	embCache := cache.NewEmbeddingCache(cache.DefaultEmbeddingCacheSize)
	freqCache := cache.NewKeywordFreqCache(cache.DefaultKeywordFreqCacheSize)

	// 5. Initialize usecases
	normalizer := usecase.NewNormalizer(log)
	parser := usecase.NewParser(llmClient, log)
	expander := usecase.NewExpander(llmClient, log)
	router := usecase.NewRouter(cfg.Retrieval.ConfidenceThreshold)

	hybridSearcher := retrieval.NewHybridSearcher(lexicalClient, vectorClient, embedder, embCache, log)

	findingRetriever := retrieval.NewFindingRetriever(hybridSearcher, lexicalClient, freqCache, retrieval.FindingRetrieverConfig{
		TopKLex:                   cfg.Retrieval.Findings.TopKLex,
		TopKVec:                   cfg.Retrieval.Findings.TopKVec,
		RRFK:                      cfg.Retrieval.Findings.RRFK,
		FinalTopN:                 cfg.Retrieval.Findings.FinalTopN,
		VectorScoreThreshold:      cfg.Retrieval.VectorScoreThreshold,
		VectorScoreThresholdMulti: cfg.Retrieval.VectorScoreThresholdMulti,
	}, log)

	chunkRetriever := retrieval.NewChunkRetriever(hybridSearcher, lexicalClient, retrieval.ChunkRetrieverConfig{
		TopKLex: cfg.Retrieval.Chunks.TopKLex,
		TopKVec: cfg.Retrieval.Chunks.TopKVec,
		RRFK:    cfg.Retrieval.Findings.RRFK,
		TopN:    cfg.Retrieval.Chunks.FinalTopN,
	}, log)

	blockPromoter := usecase.NewBlockPromoter(cfg.Retrieval.Block, cfg.Retrieval.Section)
	contextPacker := usecase.NewContextPacker(cfg.Retrieval.Context, nil)
	composer := usecase.NewComposer(llmClient, log)
	validator := usecase.NewOutputValidator()

	pipeline := usecase.NewPipeline(usecase.PipelineConfig{
		Normalizer:       normalizer,
		Parser:           parser,
		Expander:         expander,
		Router:           router,
		FindingRetriever: findingRetriever,
		ChunkRetriever:   chunkRetriever,
		BlockPromoter:    blockPromoter,
		ContextPacker:    contextPacker,
		Composer:         composer,
		Validator:        validator,
		QueryDeadline:    usecase.DefaultQueryDeadline,
		Logger:           log,
	})

	// 6. Initialize echo
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// 7. Register handlers
	handler := rag_http.NewHandler(pipeline, log)
	handler.Register(e)

	// 8. Start server
	go func() {
		log.Info("starting server", "addr", cfg.HTTPAddr)
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	// 9. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}
