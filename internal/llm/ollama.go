// Package llm wraps the ollama chat model behind the Generator port.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"verse-rag/internal/config"
	"verse-rag/internal/models"
	"verse-rag/internal/ports"
	"verse-rag/internal/ragerr"
)

type Ollama struct {
	llm     *ollama.LLM
	timeout time.Duration
}

func NewOllama(cfg *config.OllamaConfig) (*Ollama, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.LLMModel),
	)
	if err != nil {
		return nil, err
	}
	return &Ollama{
		llm:     llm,
		timeout: time.Duration(cfg.RequestTimeoutSecs) * time.Second,
	}, nil
}

// Generate invokes the chat model once. No retries here: retry policy belongs to
// the components whose contracts specify it.
func (o *Ollama) Generate(ctx context.Context, msgs []models.PromptMessage, opts ports.GenOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	content := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		content = append(content, llms.TextParts(chatRole(m.Role), m.Content))
	}

	callOpts := []llms.CallOption{
		llms.WithTemperature(opts.Temperature),
		llms.WithMaxTokens(opts.MaxTokens),
	}
	if opts.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	resp, err := o.llm.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", ragerr.Classify(err, ragerr.ErrGenerationUnavailable, ragerr.ErrGenerationModel)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ragerr.ErrGenerationModel)
	}
	return resp.Choices[0].Content, nil
}

func chatRole(role string) llms.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
