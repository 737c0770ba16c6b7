// Package rag orchestrates the per-request pipeline: query analysis, retrieval,
// and answer composition, with conversation persistence around it.
package rag

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"verse-rag/internal/models"
	"verse-rag/internal/ports"
	"verse-rag/internal/ragerr"
)

// Service runs one chat request end to end. The three stages are strictly
// sequential — each consumes the previous stage's output. Requests share no
// mutable state; the only shared things are the stateless service clients and
// the read path into the vector store.
type Service struct {
	analyzer  ports.QueryAnalyzer
	retriever ports.VerseRetriever
	composer  ports.AnswerComposer
	store     ports.ConversationStore
	ready     func() bool

	topK         int
	contextTurns int
}

func NewService(
	analyzer ports.QueryAnalyzer,
	retriever ports.VerseRetriever,
	composer ports.AnswerComposer,
	store ports.ConversationStore,
	ready func() bool,
	topK, contextTurns int,
) *Service {
	return &Service{
		analyzer:     analyzer,
		retriever:    retriever,
		composer:     composer,
		store:        store,
		ready:        ready,
		topK:         topK,
		contextTurns: contextTurns,
	}
}

// ChatResult is what the transport returns to the user: the assistant turn and
// exactly the verses that conditioned it.
type ChatResult struct {
	ConversationID string                  `json:"conversation_id"`
	Message        models.ConversationTurn `json:"message"`
	Retrieved      []models.RetrievedVerse `json:"retrieved_verses"`
}

// Chat answers one user message. An empty conversationID starts a new
// conversation. Returns ragerr.ErrIndexNotReady while the startup indexing run
// is still in flight.
func (s *Service) Chat(ctx context.Context, conversationID, message string) (*ChatResult, error) {
	if !s.ready() {
		return nil, ragerr.ErrIndexNotReady
	}

	if conversationID == "" {
		id, err := s.store.CreateConversation(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		conversationID = id
		log.Info().Str("conversation_id", id).Msg("Created conversation")
	}

	turns, err := s.store.RecentTurns(ctx, conversationID, s.contextTurns)
	if err != nil {
		return nil, fmt.Errorf("loading recent turns: %w", err)
	}

	if _, err := s.store.AddMessage(ctx, conversationID, models.RoleUser, message, nil); err != nil {
		return nil, fmt.Errorf("saving user message: %w", err)
	}

	analysis, err := s.analyzer.Analyze(ctx, message, turns)
	if err != nil {
		// The analyzer fails open on its own errors; an error here is a bug in
		// the implementation, so still fail open rather than drop the request.
		log.Error().Err(err).Msg("Analyzer returned an error; assuming retrieval needed")
		analysis = models.RewrittenQuery{NeedsRetrieval: true, SearchText: message}
	}

	var retrieved []models.RetrievedVerse
	if analysis.NeedsRetrieval {
		retrieved, err = s.retriever.Retrieve(ctx, analysis.SearchText, s.topK)
		if err != nil {
			// Could not search (distinct from "nothing relevant found"): degrade
			// to answering without citations rather than failing the request.
			log.Warn().Err(err).Str("query", analysis.SearchText).Msg("Retrieval failed; answering without citations")
			retrieved = nil
		}
	}

	answer, err := s.composer.Compose(ctx, message, retrieved, turns)
	if err != nil {
		return nil, err
	}

	assistantTurn, err := s.store.AddMessage(ctx, conversationID, models.RoleAssistant, answer, retrieved)
	if err != nil {
		return nil, fmt.Errorf("saving assistant message: %w", err)
	}

	return &ChatResult{
		ConversationID: conversationID,
		Message:        assistantTurn,
		Retrieved:      retrieved,
	}, nil
}
