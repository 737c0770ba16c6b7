// Package vectorstore implements the VectorStore port on chromem-go, an embedded
// persistent vector database.
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/philippgille/chromem-go"

	"verse-rag/internal/models"
	"verse-rag/internal/ragerr"
)

const markerFile = "index_meta.json"

// ChromemStore holds one collection of verse vectors. Document ids are the
// deterministic embedding ids, and chromem keys documents by id, so re-adding an
// id replaces the previous entry (upsert semantics).
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	path       string
	name       string
}

func New(path, collection string) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector database: %w", err)
	}
	c, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", collection, err)
	}
	return &ChromemStore{db: db, collection: c, path: path, name: collection}, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, vectors []models.IndexedVector) error {
	docs := make([]chromem.Document, 0, len(vectors))
	for _, v := range vectors {
		docs = append(docs, chromem.Document{
			ID:        v.EmbeddingID,
			Content:   v.Metadata["content"],
			Metadata:  v.Metadata,
			Embedding: v.Embedding,
		})
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: %v", ragerr.ErrVectorStore, err)
	}
	return nil
}

func (s *ChromemStore) Query(ctx context.Context, embedding []float32, k int) ([]models.VectorMatch, error) {
	// chromem rejects result counts larger than the collection.
	if n := s.collection.Count(); k > n {
		k = n
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := s.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: embedding,
		NResults:       k,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ragerr.ErrVectorStore, err)
	}

	matches := make([]models.VectorMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, models.VectorMatch{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		})
	}
	return matches, nil
}

func (s *ChromemStore) Count() int { return s.collection.Count() }

// Reset drops and recreates the collection so a re-index starts from empty.
func (s *ChromemStore) Reset() error {
	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("%w: %v", ragerr.ErrVectorStore, err)
	}
	c, err := s.db.GetOrCreateCollection(s.name, nil, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ragerr.ErrVectorStore, err)
	}
	s.collection = c
	return nil
}

type indexMarker struct {
	EmbeddingModel string `json:"embedding_model"`
}

// ReadModelMarker reports which embedding model built the on-disk index, or ""
// when no marker exists yet.
func (s *ChromemStore) ReadModelMarker() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.path, markerFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	var m indexMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("parsing index marker: %w", err)
	}
	return m.EmbeddingModel, nil
}

func (s *ChromemStore) WriteModelMarker(model string) error {
	data, err := json.Marshal(indexMarker{EmbeddingModel: model})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.path, markerFile), data, 0o644)
}
