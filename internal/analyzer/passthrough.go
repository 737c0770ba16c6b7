package analyzer

import (
	"context"

	"verse-rag/internal/models"
)

// PassthroughAnalyzer is used when query rewriting is disabled: every message
// goes to retrieval unchanged.
type PassthroughAnalyzer struct{}

func NewPassthroughAnalyzer() *PassthroughAnalyzer { return &PassthroughAnalyzer{} }

func (*PassthroughAnalyzer) Analyze(_ context.Context, message string, _ []models.ConversationTurn) (models.RewrittenQuery, error) {
	return models.RewrittenQuery{NeedsRetrieval: true, SearchText: message, Reasoning: "query rewriting disabled"}, nil
}
