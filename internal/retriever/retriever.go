// Package retriever embeds a standalone search query and ranks matches from the
// vector store.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"verse-rag/internal/models"
	"verse-rag/internal/ports"
)

type Retriever struct {
	embedder ports.Embedder
	store    ports.VectorStore
}

func New(embedder ports.Embedder, store ports.VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve returns at most topK verses sorted by descending score. Equal scores
// are broken by corpus order so results are deterministic. A failure of the
// embedding or vector-store call comes back as a typed error, never as an empty
// success — the caller must be able to tell "no matches" from "could not search".
func (r *Retriever) Retrieve(ctx context.Context, searchText string, topK int) ([]models.RetrievedVerse, error) {
	embedding, err := r.embedder.Embed(ctx, searchText)
	if err != nil {
		return nil, fmt.Errorf("embedding search query: %w", err)
	}

	matches, err := r.store.Query(ctx, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("querying vector store: %w", err)
	}

	type ranked struct {
		verse models.RetrievedVerse
		seq   int
	}
	results := make([]ranked, 0, len(matches))
	for _, m := range matches {
		verse, seq, err := verseFromMetadata(m)
		if err != nil {
			log.Warn().Str("id", m.ID).Err(err).Msg("Skipping match with malformed metadata")
			continue
		}
		results = append(results, ranked{verse: verse, seq: seq})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].verse.Score != results[j].verse.Score {
			return results[i].verse.Score > results[j].verse.Score
		}
		return results[i].seq < results[j].seq
	})
	if len(results) > topK {
		results = results[:topK]
	}

	verses := make([]models.RetrievedVerse, 0, len(results))
	for _, r := range results {
		verses = append(verses, r.verse)
	}
	log.Debug().Int("matches", len(verses)).Str("query", searchText).Msg("Retrieved verses")
	return verses, nil
}

func verseFromMetadata(m models.VectorMatch) (models.RetrievedVerse, int, error) {
	chapter, err := strconv.Atoi(m.Metadata["chapter"])
	if err != nil {
		return models.RetrievedVerse{}, 0, fmt.Errorf("chapter: %w", err)
	}
	verse, err := strconv.Atoi(m.Metadata["verse"])
	if err != nil {
		return models.RetrievedVerse{}, 0, fmt.Errorf("verse: %w", err)
	}
	seq, err := strconv.Atoi(m.Metadata["seq"])
	if err != nil {
		return models.RetrievedVerse{}, 0, fmt.Errorf("seq: %w", err)
	}
	return models.RetrievedVerse{
		Book:    m.Metadata["book"],
		Chapter: chapter,
		Verse:   verse,
		Content: m.Metadata["content"],
		Score:   float64(m.Score),
	}, seq, nil
}
