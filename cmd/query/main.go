// Command query is the CLI front end for run_query: `query` drops into
// an interactive line loop, `query "question"` is single-shot. Exit
// codes per spec.md §6: 0 success, 1 internal error, 2 usage error.
// Grounded on the teacher's cmd/amanmcp-style Cobra root command
// (NewRootCmd + Execute wiring) adapted from Aman-CERP-amanmcp.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

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

func buildPipeline() (*usecase.Pipeline, func(), error) {
	cfg := config.Load()
	log := logger.New(os.Getenv("LOG_LEVEL"))

	lexicalClient, err := lexical.NewBleveClient(map[string]string{
		"findings": "",
		"chunks":   "",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize lexical store: %w", err)
	}
	closeFn := func() { lexicalClient.Close() }

	vectorClient := vector.NewHNSWClient(vectorDimensions, "findings_vectors", "chunks_vectors")
	llmClient := llm.NewOllamaClient(cfg.LLMBaseURL, cfg.LLMModel, 60, log)
	embedder := llm.NewOllamaEmbedder(cfg.LLMBaseURL, cfg.LLMModel, 10, log)

	embCache := cache.NewEmbeddingCache(cache.DefaultEmbeddingCacheSize)
	freqCache := cache.NewKeywordFreqCache(cache.DefaultKeywordFreqCacheSize)

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

	return pipeline, closeFn, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Query the tax-audit case knowledge base",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, closeFn, err := buildPipeline()
			if err != nil {
				return err
			}
			defer closeFn()

			if len(args) == 1 {
				fmt.Fprintln(cmd.OutOrStdout(), pipeline.RunQuery(cmd.Context(), args[0]))
				return nil
			}
			return runInteractive(cmd, pipeline)
		},
	}
	return cmd
}

func runInteractive(cmd *cobra.Command, pipeline *usecase.Pipeline) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		fmt.Fprintln(out, pipeline.RunQuery(cmd.Context(), line))
	}
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCodeFor(err))
	}
}

// usageError marks errors from argument validation, which exit 2
// rather than 1 per spec.md §6.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	if _, ok := err.(usageError); ok {
		return 2
	}
	return 1
}
