// Package analyzer decides whether a user message needs verse retrieval and, if
// so, rewrites it into a standalone search query resolved against recent turns.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"verse-rag/internal/models"
	"verse-rag/internal/ports"
)

const analysisSystemPrompt = `You are a query analysis assistant for a Bible Q&A system.

Your task is to analyze the user's query and determine:
1. Whether the query requires searching the Bible (needs_retrieval: true/false)
2. If yes, rewrite the query to be a standalone, searchable question

Examples:
- "What is the Garden of Eden?" -> needs_retrieval: true, rewritten: "What is the Garden of Eden?"
- "Can you explain that more?" -> needs_retrieval: true, rewritten: "Explain the Garden of Eden in more detail"
- "Thank you!" -> needs_retrieval: false
- "What else does it say?" -> needs_retrieval: true, rewritten: "What else does the Bible say about [previous topic]?"

The rewritten query must be understandable with no conversation history: replace
every pronoun and ellipsis with the concrete subject it refers to.

Respond in JSON format:
{
  "needs_retrieval": true/false,
  "rewritten_query": "the standalone query if needs_retrieval is true" or null,
  "reasoning": "brief explanation"
}`

// LLMAnalyzer asks the generation model for a structured retrieval decision.
// Low temperature: rewriting is a structured decision, not creative generation.
type LLMAnalyzer struct {
	generator    ports.Generator
	temperature  float64
	contextTurns int
}

func NewLLMAnalyzer(generator ports.Generator, temperature float64, contextTurns int) *LLMAnalyzer {
	return &LLMAnalyzer{generator: generator, temperature: temperature, contextTurns: contextTurns}
}

// Analyze never returns an error for model failures: it fails open toward
// retrieval with the raw message, which degrades to a plain vector search rather
// than silently skipping retrieval.
func (a *LLMAnalyzer) Analyze(ctx context.Context, message string, turns []models.ConversationTurn) (models.RewrittenQuery, error) {
	failOpen := models.RewrittenQuery{NeedsRetrieval: true, SearchText: message}

	var history strings.Builder
	recent := turns
	if len(recent) > a.contextTurns {
		recent = recent[len(recent)-a.contextTurns:]
	}
	for _, t := range recent {
		fmt.Fprintf(&history, "%s: %s\n", t.Role, t.Content)
	}
	if history.Len() == 0 {
		history.WriteString("No previous context")
	}

	userPrompt := fmt.Sprintf("Conversation context:\n%s\n\nUser's current query: %s\n\nAnalyze this query.", history.String(), message)

	raw, err := a.generator.Generate(ctx, []models.PromptMessage{
		{Role: models.RoleSystem, Content: analysisSystemPrompt},
		{Role: models.RoleUser, Content: userPrompt},
	}, ports.GenOptions{Temperature: a.temperature, MaxTokens: 200, JSONMode: true})
	if err != nil {
		log.Warn().Err(err).Msg("Query analysis failed; falling back to retrieval with raw message")
		return failOpen, nil
	}

	var result models.RewrittenQuery
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		log.Warn().Err(err).Str("response", raw).Msg("Unparseable query analysis; falling back")
		return failOpen, nil
	}
	if result.NeedsRetrieval && strings.TrimSpace(result.SearchText) == "" {
		return failOpen, nil
	}
	return result, nil
}

// extractJSON trims any prose the model wraps around the JSON object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
