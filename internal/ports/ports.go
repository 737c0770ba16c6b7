// Package ports defines the capability interfaces the pipeline components are
// built against. Adapters (ollama clients, chromem-go, bun) implement them; tests
// substitute deterministic fakes.
package ports

import (
	"context"

	"verse-rag/internal/models"
)

// Embedder turns text into a fixed-dimension vector. The same embedder (and the
// same underlying model) must be used for indexing and for query-time retrieval;
// embeddings from different models are not comparable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model names the embedding model, recorded at index time to detect drift.
	Model() string
}

// GenOptions control a single generation call.
type GenOptions struct {
	Temperature float64
	MaxTokens   int
	// JSONMode asks the model for a single JSON object response. Used by the
	// query analyzer, which needs a structured decision rather than prose.
	JSONMode bool
}

// Generator produces text from a chat-style prompt.
type Generator interface {
	Generate(ctx context.Context, msgs []models.PromptMessage, opts GenOptions) (string, error)
}

// VectorStore persists embedding vectors keyed by id. Upsert replaces on id so
// re-indexing the same corpus never duplicates entries.
type VectorStore interface {
	Upsert(ctx context.Context, vectors []models.IndexedVector) error
	Query(ctx context.Context, embedding []float32, k int) ([]models.VectorMatch, error)
	Count() int
	// Reset drops the collection so a full re-index starts from empty.
	Reset() error
	// ReadModelMarker returns the embedding model the collection was built with,
	// or "" when the collection has never been indexed.
	ReadModelMarker() (string, error)
	WriteModelMarker(model string) error
}

// QueryAnalyzer decides whether a user message needs retrieval and, if so,
// produces a standalone search query resolved against recent turns.
type QueryAnalyzer interface {
	Analyze(ctx context.Context, message string, turns []models.ConversationTurn) (models.RewrittenQuery, error)
}

// VerseRetriever runs a similarity search for a standalone query.
type VerseRetriever interface {
	Retrieve(ctx context.Context, searchText string, topK int) ([]models.RetrievedVerse, error)
}

// AnswerComposer assembles the generation prompt and invokes the model once.
type AnswerComposer interface {
	Compose(ctx context.Context, message string, retrieved []models.RetrievedVerse, turns []models.ConversationTurn) (string, error)
}

// ConversationStore is the persistence collaborator as seen by the pipeline:
// it appends messages and serves the recent turns used as query context.
type ConversationStore interface {
	CreateConversation(ctx context.Context) (string, error)
	AddMessage(ctx context.Context, conversationID, role, content string, retrieved []models.RetrievedVerse) (models.ConversationTurn, error)
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]models.ConversationTurn, error)
}
