// Package embedding wraps the ollama embedding model behind the Embedder port.
package embedding

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"verse-rag/internal/config"
	"verse-rag/internal/ragerr"
)

type Ollama struct {
	embedder *embeddings.EmbedderImpl
	model    string
	timeout  time.Duration
}

// NewOllama creates an embedder bound to the configured embedding model.
func NewOllama(cfg *config.OllamaConfig) (*Ollama, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, err
	}
	return &Ollama{
		embedder: embedder,
		model:    cfg.EmbeddingModel,
		timeout:  time.Duration(cfg.RequestTimeoutSecs) * time.Second,
	}, nil
}

// Embed generates a vector for the given text. Failures are classified into the
// pipeline taxonomy: connection/timeout as unavailable, the rest as model errors.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	vector, err := o.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, ragerr.Classify(err, ragerr.ErrEmbeddingUnavailable, ragerr.ErrEmbeddingModel)
	}
	return vector, nil
}

func (o *Ollama) Model() string { return o.model }
