package analyzer

import (
	"context"
	"fmt"
	"strings"

	"verse-rag/internal/models"
)

// Conversational filler that carries nothing retrievable.
var fillerPhrases = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {}, "thanks": {}, "thank you": {},
	"ok": {}, "okay": {}, "bye": {}, "goodbye": {}, "good morning": {},
	"good evening": {}, "how are you": {}, "cool": {}, "great": {}, "nice": {},
}

// Words whose referent lives in a previous turn.
var anaphoricWords = map[string]struct{}{
	"it": {}, "that": {}, "this": {}, "those": {}, "these": {},
	"he": {}, "she": {}, "they": {}, "them": {}, "him": {}, "her": {},
	"its": {}, "their": {}, "his": {}, "hers": {}, "else": {}, "more": {},
}

// HeuristicAnalyzer is the model-free strategy: lexical filler and anaphora
// detection, with topic splicing from the most recent substantive user turn.
// Cheaper and fully deterministic, at the cost of cruder rewrites.
type HeuristicAnalyzer struct {
	contextTurns int
}

func NewHeuristicAnalyzer(contextTurns int) *HeuristicAnalyzer {
	return &HeuristicAnalyzer{contextTurns: contextTurns}
}

func (a *HeuristicAnalyzer) Analyze(_ context.Context, message string, turns []models.ConversationTurn) (models.RewrittenQuery, error) {
	normalized := normalize(message)

	if _, ok := fillerPhrases[normalized]; ok {
		return models.RewrittenQuery{NeedsRetrieval: false, Reasoning: "conversational filler"}, nil
	}

	if hasAnaphora(normalized) {
		if topic := lastUserTopic(turns, a.contextTurns); topic != "" {
			return models.RewrittenQuery{
				NeedsRetrieval: true,
				SearchText:     fmt.Sprintf("%s (in the context of: %s)", message, topic),
				Reasoning:      "resolved referent against recent turns",
			}, nil
		}
	}

	return models.RewrittenQuery{NeedsRetrieval: true, SearchText: message, Reasoning: "self-contained query"}, nil
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, ".!?")
}

func hasAnaphora(s string) bool {
	for _, word := range strings.Fields(strings.Map(stripPunct, s)) {
		if _, ok := anaphoricWords[word]; ok {
			return true
		}
	}
	return false
}

func stripPunct(r rune) rune {
	switch r {
	case '.', ',', '!', '?', ';', ':', '"', '\'':
		return ' '
	}
	return r
}

// lastUserTopic walks the recent turns backwards for the last user message that
// stands on its own, to serve as the referent for an anaphoric follow-up.
func lastUserTopic(turns []models.ConversationTurn, limit int) string {
	start := 0
	if len(turns) > limit {
		start = len(turns) - limit
	}
	for i := len(turns) - 1; i >= start; i-- {
		t := turns[i]
		if t.Role != models.RoleUser {
			continue
		}
		normalized := normalize(t.Content)
		if _, filler := fillerPhrases[normalized]; filler || hasAnaphora(normalized) {
			continue
		}
		return strings.TrimSpace(t.Content)
	}
	return ""
}
