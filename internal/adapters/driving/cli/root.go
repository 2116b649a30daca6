// Package cli implements the lorekeeper command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	configfile "github.com/gravitycar/lorekeeper/internal/adapters/driven/config/file"
	"github.com/gravitycar/lorekeeper/internal/adapters/driven/embedding/ollama"
	"github.com/gravitycar/lorekeeper/internal/adapters/driven/embedding/openai"
	"github.com/gravitycar/lorekeeper/internal/adapters/driven/index/chroma"
	sqliteindex "github.com/gravitycar/lorekeeper/internal/adapters/driven/index/sqlite"
	"github.com/gravitycar/lorekeeper/internal/core/ports/driven"
	"github.com/gravitycar/lorekeeper/internal/core/ports/driving"
	"github.com/gravitycar/lorekeeper/internal/core/services"
	"github.com/gravitycar/lorekeeper/internal/logger"
)

var (
	flagVerbose   bool
	flagConfigDir string

	configStore      *configfile.ConfigStore
	embeddingService driven.EmbeddingService
	vectorIndex      driven.VectorIndex
	localIndex       *sqliteindex.Index
	retrievalService driving.RetrievalService
)

var rootCmd = &cobra.Command{
	Use:   "lorekeeper",
	Short: "Precision retrieval over an indexed document corpus",
	Long: `Lorekeeper answers "which passages are the evidence?" for
natural-language questions against an indexed document corpus.

It retrieves similarity-search candidates, filters them through their
declared relevance predicates, re-queries to backfill filtered slots,
and sizes the final result set adaptively by detecting discontinuities
in the similarity-distance sequence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(flagVerbose)

		var err error
		configStore, err = configfile.NewConfigStore(flagConfigDir)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"print pipeline diagnostics to stderr")
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "",
		"configuration directory (default ~/.lorekeeper)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeServices()
		os.Exit(1)
	}
	closeServices()
}

// initEmbedding constructs the configured embedding provider.
func initEmbedding() error {
	if embeddingService != nil {
		return nil
	}

	provider := configStore.GetString("embedding.provider")
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "openai":
		apiKey := configStore.GetString("embedding.api_key")
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}

		svc, err := openai.NewEmbeddingService(openai.Config{
			APIKey:            apiKey,
			BaseURL:           configStore.GetString("embedding.base_url"),
			Model:             configStore.GetString("embedding.model"),
			RequestsPerMinute: configStore.GetInt("embedding.requests_per_minute"),
		})
		if err != nil {
			return err
		}
		embeddingService = svc

	case "ollama":
		embeddingService = ollama.NewEmbeddingService(ollama.Config{
			BaseURL: configStore.GetString("embedding.base_url"),
			Model:   configStore.GetString("embedding.model"),
		})

	default:
		return fmt.Errorf("unknown embedding provider %q (want openai or ollama)", provider)
	}

	logger.Debug("Embedding provider: %s (%s, %d dimensions)",
		provider, embeddingService.ModelName(), embeddingService.Dimensions())
	return nil
}

// initIndex constructs the configured vector index client.
func initIndex() error {
	if vectorIndex != nil {
		return nil
	}

	backend := configStore.GetString("index.backend")
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "sqlite":
		idx, err := sqliteindex.NewIndex(configStore.GetString("index.path"))
		if err != nil {
			return fmt.Errorf("opening local index: %w", err)
		}
		localIndex = idx
		vectorIndex = idx

	case "chroma":
		idx, err := chroma.NewIndex(chroma.Config{
			BaseURL:    configStore.GetString("index.url"),
			Collection: configStore.GetString("index.collection"),
		})
		if err != nil {
			return fmt.Errorf("connecting to chroma: %w", err)
		}
		vectorIndex = idx

	default:
		return fmt.Errorf("unknown index backend %q (want sqlite or chroma)", backend)
	}

	logger.Debug("Vector index backend: %s", backend)
	return nil
}

// initRetrieval wires the retrieval service over the driven adapters.
func initRetrieval() error {
	if retrievalService != nil {
		return nil
	}
	if err := initEmbedding(); err != nil {
		return err
	}
	if err := initIndex(); err != nil {
		return err
	}

	retrievalService = services.NewRetrievalService(vectorIndex, embeddingService)
	return nil
}

// closeServices releases adapter resources.
func closeServices() {
	if vectorIndex != nil {
		vectorIndex.Close() //nolint:errcheck
	}
	if embeddingService != nil {
		embeddingService.Close() //nolint:errcheck
	}
}
