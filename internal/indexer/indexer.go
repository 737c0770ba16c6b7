// Package indexer drives the one-time batch job that embeds every context unit
// and writes it to the vector store.
package indexer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"verse-rag/internal/models"
	"verse-rag/internal/ports"
	"verse-rag/internal/ragerr"
)

const (
	defaultBatchSize  = 100
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
)

// Indexer embeds context units and upserts them keyed by embedding id. It also
// owns the process-wide "index ready" flag: false at startup, true only after a
// complete, successful run.
type Indexer struct {
	embedder ports.Embedder
	store    ports.VectorStore

	batchSize  int
	maxRetries int
	backoff    time.Duration

	mu    sync.RWMutex
	ready bool
}

func New(embedder ports.Embedder, store ports.VectorStore) *Indexer {
	return &Indexer{
		embedder:   embedder,
		store:      store,
		batchSize:  defaultBatchSize,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
	}
}

// Ready reports whether queries may be served from the index.
func (ix *Indexer) Ready() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.ready
}

func (ix *Indexer) setReady(v bool) {
	ix.mu.Lock()
	ix.ready = v
	ix.mu.Unlock()
}

// EnsureIndex makes the store match the current corpus. A complete index built
// with the configured embedding model is reused as-is; anything else — missing,
// partial, or built with a different model — is rebuilt from scratch. Queries are
// gated on the ready flag the whole time, so they never see a partial index.
func (ix *Indexer) EnsureIndex(ctx context.Context, units []models.ContextUnit) error {
	model, err := ix.store.ReadModelMarker()
	if err != nil {
		return fmt.Errorf("reading index marker: %w", err)
	}
	count := ix.store.Count()

	if count == len(units) && model == ix.embedder.Model() {
		log.Info().Int("vectors", count).Str("model", model).Msg("Reusing existing verse index")
		ix.setReady(true)
		return nil
	}

	if count > 0 {
		if model != "" && model != ix.embedder.Model() {
			log.Warn().Str("indexed_with", model).Str("configured", ix.embedder.Model()).
				Msg("Embedding model changed; rebuilding index")
		} else {
			log.Warn().Int("have", count).Int("want", len(units)).
				Msg("Index does not match corpus; rebuilding")
		}
		if err := ix.store.Reset(); err != nil {
			return err
		}
	}

	written, err := ix.Index(ctx, units)
	if err != nil {
		return err
	}
	if err := ix.store.WriteModelMarker(ix.embedder.Model()); err != nil {
		return fmt.Errorf("writing index marker: %w", err)
	}
	log.Info().Int("vectors", written).Msg("Verse index built")
	ix.setReady(true)
	return nil
}

// Index embeds every unit's window text and upserts the vectors in batches.
// Transient embedding failures are retried with exponential backoff; a unit that
// keeps failing, or any model-side rejection, aborts the whole run — a partially
// populated index must never be presented as complete.
func (ix *Indexer) Index(ctx context.Context, units []models.ContextUnit) (int, error) {
	written := 0
	batch := make([]models.IndexedVector, 0, ix.batchSize)

	for i, unit := range units {
		vector, err := ix.embedWithRetry(ctx, unit)
		if err != nil {
			return written, err
		}

		batch = append(batch, models.IndexedVector{
			EmbeddingID: unit.EmbeddingID,
			Embedding:   vector,
			Metadata:    unitMetadata(unit, i),
		})

		if len(batch) == ix.batchSize {
			if err := ix.store.Upsert(ctx, batch); err != nil {
				return written, &ragerr.FatalIndexingError{EmbeddingID: unit.EmbeddingID, Attempts: 1, Err: err}
			}
			written += len(batch)
			batch = batch[:0]
			log.Info().Int("indexed", written).Int("total", len(units)).Msg("Indexing progress")
		}
	}

	if len(batch) > 0 {
		if err := ix.store.Upsert(ctx, batch); err != nil {
			return written, &ragerr.FatalIndexingError{EmbeddingID: batch[0].EmbeddingID, Attempts: 1, Err: err}
		}
		written += len(batch)
	}
	return written, nil
}

func (ix *Indexer) embedWithRetry(ctx context.Context, unit models.ContextUnit) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= ix.maxRetries; attempt++ {
		if attempt > 0 {
			delay := ix.backoff << (attempt - 1)
			log.Warn().Str("id", unit.EmbeddingID).Int("attempt", attempt).Dur("delay", delay).
				Err(lastErr).Msg("Retrying embedding")
			select {
			case <-ctx.Done():
				return nil, &ragerr.FatalIndexingError{EmbeddingID: unit.EmbeddingID, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		vector, err := ix.embedder.Embed(ctx, unit.WindowText)
		if err == nil {
			return vector, nil
		}
		if !ragerr.IsTransient(err) {
			// Retrying a model-side rejection of the same text rarely helps.
			return nil, &ragerr.FatalIndexingError{EmbeddingID: unit.EmbeddingID, Attempts: attempt + 1, Err: err}
		}
		lastErr = err
	}
	return nil, &ragerr.FatalIndexingError{EmbeddingID: unit.EmbeddingID, Attempts: ix.maxRetries + 1, Err: lastErr}
}

// unitMetadata carries the center verse only. The window text exists purely for
// embedding quality; citations must point at the actual matched verse.
func unitMetadata(unit models.ContextUnit, seq int) map[string]string {
	return map[string]string{
		"book":    unit.Center.Book,
		"chapter": strconv.Itoa(unit.Center.Chapter),
		"verse":   strconv.Itoa(unit.Center.Verse),
		"content": unit.Center.Text,
		"seq":     strconv.Itoa(seq),
	}
}
