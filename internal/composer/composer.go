// Package composer assembles the generation prompt from retrieved verses and
// conversation history, and invokes the model once.
package composer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"verse-rag/internal/models"
	"verse-rag/internal/ports"
)

const answerInstructions = `Guidelines:
- Answer the user's question based on the retrieved verses
- Always cite specific verse references (e.g., Genesis 1:1, John 3:16)
- Be accurate and faithful to the text
- If the verses don't fully answer the question, acknowledge this
- Be concise but thorough
- Maintain a respectful, scholarly tone`

type Composer struct {
	generator   ports.Generator
	temperature float64
	maxTokens   int

	titler cases.Caser
}

func New(generator ports.Generator, temperature float64, maxTokens int) *Composer {
	return &Composer{
		generator:   generator,
		temperature: temperature,
		maxTokens:   maxTokens,
		titler:      cases.Title(language.English),
	}
}

// Compose builds the prompt — system instruction with citable verse blocks (or
// an explicit no-verses marker), conversation turns oldest first, then the user
// message — and returns the raw answer. The caller pairs the answer with exactly
// the verses passed in here; citations are never re-derived from the answer text.
// Generation failures propagate as typed errors; retries and canned fallbacks
// are the caller's decision, not this component's.
func (c *Composer) Compose(ctx context.Context, message string, retrieved []models.RetrievedVerse, turns []models.ConversationTurn) (string, error) {
	msgs := make([]models.PromptMessage, 0, len(turns)+2)
	msgs = append(msgs, models.PromptMessage{Role: models.RoleSystem, Content: c.systemPrompt(retrieved)})
	for _, t := range turns {
		msgs = append(msgs, models.PromptMessage{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, models.PromptMessage{Role: models.RoleUser, Content: message})

	answer, err := c.generator.Generate(ctx, msgs, ports.GenOptions{
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	return answer, nil
}

func (c *Composer) systemPrompt(retrieved []models.RetrievedVerse) string {
	var sb strings.Builder
	sb.WriteString("You are a knowledgeable Bible assistant helping users understand Scripture.\n\n")

	if len(retrieved) == 0 {
		sb.WriteString("No specific verses were retrieved for this query. ")
		sb.WriteString("Answer based on the conversation context and do not invent verse citations.")
		return sb.String()
	}

	sb.WriteString("The following verses have been retrieved from the King James Bible as relevant to the user's question:\n\n")
	for _, v := range retrieved {
		fmt.Fprintf(&sb, "%s %d:%d - %s\n\n", c.titler.String(v.Book), v.Chapter, v.Verse, v.Content)
	}
	sb.WriteString(answerInstructions)
	return sb.String()
}
