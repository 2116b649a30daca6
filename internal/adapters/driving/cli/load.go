package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gravitycar/lorekeeper/internal/adapters/driven/index/sqlite"
	"github.com/gravitycar/lorekeeper/internal/core/domain"
	"github.com/gravitycar/lorekeeper/internal/logger"
)

var flagBatchSize int

// chunkRecord is one entry of a chunk file produced by an upstream
// document converter. "name" and "title" are both accepted for the
// passage title, and query_must carries the optional relevance
// predicate in either object or string form.
type chunkRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	QueryMust json.RawMessage `json:"query_must"`
}

var loadCmd = &cobra.Command{
	Use:   "load <chunks.json>",
	Short: "Embed a chunk file and load it into the local index",
	Long: `Load a JSON array of passage chunks into the local SQLite index.

Each chunk needs a "content" field; "id", "name"/"title" and a
"query_must" relevance predicate are optional. Chunks without an id
are assigned one. Existing chunks with the same id are replaced.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := initEmbedding(); err != nil {
			return err
		}
		if err := initIndex(); err != nil {
			return err
		}
		if localIndex == nil {
			return fmt.Errorf("load requires the sqlite index backend (index.backend is %q)",
				configStore.GetString("index.backend"))
		}
		return runLoad(cmd, args[0])
	},
}

func init() {
	loadCmd.Flags().IntVar(&flagBatchSize, "batch-size", 32,
		"chunks to embed per request")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading chunk file: %w", err)
	}

	var records []chunkRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parsing chunk file: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: chunk file is empty", domain.ErrInvalidInput)
	}

	chunks, err := prepareChunks(records)
	if err != nil {
		return err
	}

	batchSize := flagBatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	ctx := cmd.Context()
	loaded := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		embeddings, err := embeddingService.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
		}
		if len(embeddings) != len(batch) {
			return fmt.Errorf("embedding service returned %d vectors for %d chunks",
				len(embeddings), len(batch))
		}

		for i := range batch {
			batch[i].Embedding = embeddings[i]
			if err := localIndex.Add(ctx, batch[i]); err != nil {
				return err
			}
			loaded++
		}
		logger.Debug("Loaded %d/%d chunks", loaded, len(chunks))
	}

	total, err := localIndex.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d chunk(s); index now holds %d.\n", loaded, total)
	return nil
}

// prepareChunks validates records and converts them to index chunks.
// Malformed predicates are dropped with a warning rather than failing
// the load, matching retrieval's fail-open handling of bad metadata.
func prepareChunks(records []chunkRecord) ([]sqlite.Chunk, error) {
	chunks := make([]sqlite.Chunk, 0, len(records))
	for i, rec := range records {
		if rec.Content == "" {
			return nil, fmt.Errorf("%w: chunk %d has no content", domain.ErrInvalidInput, i)
		}

		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		title := rec.Name
		if title == "" {
			title = rec.Title
		}

		var predicate *domain.Predicate
		if len(rec.QueryMust) > 0 {
			parsed, err := domain.ParsePredicate([]byte(rec.QueryMust))
			if err != nil {
				logger.Warn("Chunk %s: dropping malformed predicate: %v", id, err)
			} else if !parsed.IsZero() {
				predicate = parsed
			}
		}

		chunks = append(chunks, sqlite.Chunk{
			ID:        id,
			Title:     title,
			Content:   rec.Content,
			Predicate: predicate,
		})
	}
	return chunks, nil
}
