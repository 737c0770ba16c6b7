package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verse-rag/internal/models"
	"verse-rag/internal/ragerr"
)

type fakeAnalyzer struct {
	result models.RewrittenQuery
	err    error
}

func (f *fakeAnalyzer) Analyze(context.Context, string, []models.ConversationTurn) (models.RewrittenQuery, error) {
	return f.result, f.err
}

type fakeRetriever struct {
	verses    []models.RetrievedVerse
	err       error
	lastQuery string
	calls     int
}

func (f *fakeRetriever) Retrieve(_ context.Context, searchText string, _ int) ([]models.RetrievedVerse, error) {
	f.calls++
	f.lastQuery = searchText
	return f.verses, f.err
}

type fakeComposer struct {
	answer        string
	err           error
	lastRetrieved []models.RetrievedVerse
}

func (f *fakeComposer) Compose(_ context.Context, _ string, retrieved []models.RetrievedVerse, _ []models.ConversationTurn) (string, error) {
	f.lastRetrieved = retrieved
	return f.answer, f.err
}

type savedMessage struct {
	role      string
	content   string
	retrieved []models.RetrievedVerse
}

type fakeConvStore struct {
	turns     []models.ConversationTurn
	saved     []savedMessage
	created   int
	createErr error
	addErr    error
}

func (f *fakeConvStore) CreateConversation(context.Context) (string, error) {
	f.created++
	return "conv-1", f.createErr
}

func (f *fakeConvStore) AddMessage(_ context.Context, _ string, role, content string, retrieved []models.RetrievedVerse) (models.ConversationTurn, error) {
	if f.addErr != nil {
		return models.ConversationTurn{}, f.addErr
	}
	f.saved = append(f.saved, savedMessage{role: role, content: content, retrieved: retrieved})
	return models.ConversationTurn{Role: role, Content: content, RetrievedVerses: retrieved}, nil
}

func (f *fakeConvStore) RecentTurns(context.Context, string, int) ([]models.ConversationTurn, error) {
	return f.turns, nil
}

func ready() bool    { return true }
func notReady() bool { return false }

func retrieves(query string) *fakeAnalyzer {
	return &fakeAnalyzer{result: models.RewrittenQuery{NeedsRetrieval: true, SearchText: query}}
}

func TestChat_IndexNotReady(t *testing.T) {
	s := NewService(retrieves("q"), &fakeRetriever{}, &fakeComposer{}, &fakeConvStore{}, notReady, 5, 5)

	_, err := s.Chat(context.Background(), "", "who was noah?")

	assert.ErrorIs(t, err, ragerr.ErrIndexNotReady)
}

func TestChat_HappyPath(t *testing.T) {
	verses := []models.RetrievedVerse{{Book: "genesis", Chapter: 6, Verse: 9, Content: "noah was a just man", Score: 0.9}}
	retriever := &fakeRetriever{verses: verses}
	composer := &fakeComposer{answer: "Noah was a righteous man (Genesis 6:9)."}
	store := &fakeConvStore{}
	s := NewService(retrieves("who was noah"), retriever, composer, store, ready, 5, 5)

	result, err := s.Chat(context.Background(), "", "who was noah?")

	require.NoError(t, err)
	assert.Equal(t, "conv-1", result.ConversationID)
	assert.Equal(t, models.RoleAssistant, result.Message.Role)
	assert.Equal(t, "Noah was a righteous man (Genesis 6:9).", result.Message.Content)
	assert.Equal(t, verses, result.Retrieved)

	require.Len(t, store.saved, 2)
	assert.Equal(t, models.RoleUser, store.saved[0].role)
	assert.Equal(t, "who was noah?", store.saved[0].content)
	assert.Nil(t, store.saved[0].retrieved)
	assert.Equal(t, models.RoleAssistant, store.saved[1].role)
	assert.Equal(t, verses, store.saved[1].retrieved)
}

func TestChat_ReusesExistingConversation(t *testing.T) {
	store := &fakeConvStore{}
	s := NewService(retrieves("q"), &fakeRetriever{}, &fakeComposer{answer: "a"}, store, ready, 5, 5)

	result, err := s.Chat(context.Background(), "existing-id", "hello")

	require.NoError(t, err)
	assert.Equal(t, "existing-id", result.ConversationID)
	assert.Zero(t, store.created)
}

func TestChat_RewrittenQueryReachesRetriever(t *testing.T) {
	retriever := &fakeRetriever{}
	s := NewService(retrieves("What else does the Bible say about love?"), retriever, &fakeComposer{answer: "a"}, &fakeConvStore{}, ready, 5, 5)

	_, err := s.Chat(context.Background(), "c", "what else does it say?")

	require.NoError(t, err)
	assert.Equal(t, "What else does the Bible say about love?", retriever.lastQuery)
}

func TestChat_SkipsRetrievalWhenNotNeeded(t *testing.T) {
	analyzer := &fakeAnalyzer{result: models.RewrittenQuery{NeedsRetrieval: false}}
	retriever := &fakeRetriever{}
	composer := &fakeComposer{answer: "you're welcome"}
	s := NewService(analyzer, retriever, composer, &fakeConvStore{}, ready, 5, 5)

	result, err := s.Chat(context.Background(), "c", "thanks!")

	require.NoError(t, err)
	assert.Zero(t, retriever.calls)
	assert.Empty(t, result.Retrieved)
	assert.Nil(t, composer.lastRetrieved)
}

func TestChat_RetrievalFailureDegradesToNoCitations(t *testing.T) {
	retriever := &fakeRetriever{err: ragerr.ErrVectorStore}
	composer := &fakeComposer{answer: "an answer without citations"}
	s := NewService(retrieves("q"), retriever, composer, &fakeConvStore{}, ready, 5, 5)

	result, err := s.Chat(context.Background(), "c", "who was noah?")

	require.NoError(t, err)
	assert.Empty(t, result.Retrieved)
	assert.Nil(t, composer.lastRetrieved)
}

func TestChat_AnalyzerErrorFailsOpen(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("bug")}
	retriever := &fakeRetriever{}
	s := NewService(analyzer, retriever, &fakeComposer{answer: "a"}, &fakeConvStore{}, ready, 5, 5)

	_, err := s.Chat(context.Background(), "c", "who was noah?")

	require.NoError(t, err)
	assert.Equal(t, 1, retriever.calls)
	assert.Equal(t, "who was noah?", retriever.lastQuery)
}

func TestChat_ComposerFailurePropagates(t *testing.T) {
	composer := &fakeComposer{err: ragerr.ErrGenerationUnavailable}
	s := NewService(retrieves("q"), &fakeRetriever{}, composer, &fakeConvStore{}, ready, 5, 5)

	_, err := s.Chat(context.Background(), "c", "who was noah?")

	assert.ErrorIs(t, err, ragerr.ErrGenerationUnavailable)
}

func TestChat_PersistFailureSurfaces(t *testing.T) {
	store := &fakeConvStore{addErr: errors.New("db down")}
	s := NewService(retrieves("q"), &fakeRetriever{}, &fakeComposer{answer: "a"}, store, ready, 5, 5)

	_, err := s.Chat(context.Background(), "c", "who was noah?")

	assert.Error(t, err)
}
