package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verse-rag/internal/corpus"
	"verse-rag/internal/models"
	"verse-rag/internal/ragerr"
)

type fakeEmbedder struct {
	model string
	// failures maps window text to a countdown of errors to return before
	// succeeding; -1 means fail forever.
	failures map[string]int
	failWith error
	calls    int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if n, ok := f.failures[text]; ok && n != 0 {
		if n > 0 {
			f.failures[text] = n - 1
		}
		return nil, f.failWith
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Model() string {
	if f.model == "" {
		return "nomic-embed-text"
	}
	return f.model
}

type fakeStore struct {
	vectors   map[string]models.IndexedVector
	marker    string
	upsertErr error
	resets    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{vectors: map[string]models.IndexedVector{}}
}

func (f *fakeStore) Upsert(_ context.Context, vectors []models.IndexedVector) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, v := range vectors {
		f.vectors[v.EmbeddingID] = v
	}
	return nil
}

func (f *fakeStore) Query(context.Context, []float32, int) ([]models.VectorMatch, error) {
	return nil, nil
}

func (f *fakeStore) Count() int { return len(f.vectors) }

func (f *fakeStore) Reset() error {
	f.resets++
	f.vectors = map[string]models.IndexedVector{}
	return nil
}

func (f *fakeStore) ReadModelMarker() (string, error) { return f.marker, nil }

func (f *fakeStore) WriteModelMarker(model string) error {
	f.marker = model
	return nil
}

func testUnits(n int) []models.ContextUnit {
	verses := make([]models.VerseRecord, 0, n)
	for i := 1; i <= n; i++ {
		verses = append(verses, models.VerseRecord{Book: "genesis", Chapter: 1, Verse: i, Text: fmt.Sprintf("verse %d", i)})
	}
	return corpus.BuildUnits(verses, 1)
}

func fastIndexer(embedder *fakeEmbedder, store *fakeStore) *Indexer {
	ix := New(embedder, store)
	ix.backoff = time.Millisecond
	return ix
}

func TestIndex_WritesAllUnits(t *testing.T) {
	store := newFakeStore()
	ix := fastIndexer(&fakeEmbedder{}, store)

	written, err := ix.Index(context.Background(), testUnits(7))

	require.NoError(t, err)
	assert.Equal(t, 7, written)
	assert.Equal(t, 7, store.Count())
	v, ok := store.vectors["genesis:1:3"]
	require.True(t, ok)
	assert.Equal(t, "verse 3", v.Metadata["content"])
	assert.Equal(t, "genesis", v.Metadata["book"])
	assert.Equal(t, "2", v.Metadata["seq"])
}

func TestIndex_MetadataCitesCenterVerseOnly(t *testing.T) {
	store := newFakeStore()
	ix := fastIndexer(&fakeEmbedder{}, store)

	_, err := ix.Index(context.Background(), testUnits(3))

	require.NoError(t, err)
	// The window text around verse 2 spans all three verses; the stored
	// content must still be just the center verse.
	assert.Equal(t, "verse 2", store.vectors["genesis:1:2"].Metadata["content"])
}

func TestIndex_Idempotent(t *testing.T) {
	store := newFakeStore()
	ix := fastIndexer(&fakeEmbedder{}, store)
	units := testUnits(5)

	_, err := ix.Index(context.Background(), units)
	require.NoError(t, err)
	_, err = ix.Index(context.Background(), units)
	require.NoError(t, err)

	assert.Equal(t, 5, store.Count())
}

func TestIndex_RetriesTransientFailures(t *testing.T) {
	units := testUnits(3)
	embedder := &fakeEmbedder{
		failures: map[string]int{units[1].WindowText: 2},
		failWith: fmt.Errorf("%w: connection refused", ragerr.ErrEmbeddingUnavailable),
	}
	store := newFakeStore()
	ix := fastIndexer(embedder, store)

	written, err := ix.Index(context.Background(), units)

	require.NoError(t, err)
	assert.Equal(t, 3, written)
}

func TestIndex_AbortsAfterRetriesExhausted(t *testing.T) {
	units := testUnits(3)
	embedder := &fakeEmbedder{
		failures: map[string]int{units[1].WindowText: -1},
		failWith: fmt.Errorf("%w: connection refused", ragerr.ErrEmbeddingUnavailable),
	}
	ix := fastIndexer(embedder, newFakeStore())

	_, err := ix.Index(context.Background(), units)

	var fatal *ragerr.FatalIndexingError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, units[1].EmbeddingID, fatal.EmbeddingID)
	assert.Equal(t, 4, fatal.Attempts)
}

func TestIndex_ModelErrorNotRetried(t *testing.T) {
	units := testUnits(2)
	embedder := &fakeEmbedder{
		failures: map[string]int{units[0].WindowText: -1},
		failWith: fmt.Errorf("%w: input rejected", ragerr.ErrEmbeddingModel),
	}
	ix := fastIndexer(embedder, newFakeStore())

	_, err := ix.Index(context.Background(), units)

	var fatal *ragerr.FatalIndexingError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 1, fatal.Attempts)
	assert.Equal(t, 1, embedder.calls)
}

func TestIndex_UpsertFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = errors.New("disk full")
	ix := fastIndexer(&fakeEmbedder{}, store)

	_, err := ix.Index(context.Background(), testUnits(2))

	var fatal *ragerr.FatalIndexingError
	assert.ErrorAs(t, err, &fatal)
}

func TestEnsureIndex_BuildsAndSetsReady(t *testing.T) {
	store := newFakeStore()
	ix := fastIndexer(&fakeEmbedder{}, store)

	assert.False(t, ix.Ready())
	require.NoError(t, ix.EnsureIndex(context.Background(), testUnits(4)))

	assert.True(t, ix.Ready())
	assert.Equal(t, "nomic-embed-text", store.marker)
}

func TestEnsureIndex_ReusesCompleteIndex(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{}
	units := testUnits(4)

	first := fastIndexer(embedder, store)
	require.NoError(t, first.EnsureIndex(context.Background(), units))
	callsAfterBuild := embedder.calls

	second := fastIndexer(embedder, store)
	require.NoError(t, second.EnsureIndex(context.Background(), units))

	assert.True(t, second.Ready())
	assert.Equal(t, callsAfterBuild, embedder.calls, "no re-embedding for a complete index")
}

func TestEnsureIndex_RebuildsOnModelDrift(t *testing.T) {
	store := newFakeStore()
	units := testUnits(3)
	require.NoError(t, fastIndexer(&fakeEmbedder{model: "old-model"}, store).EnsureIndex(context.Background(), units))

	ix := fastIndexer(&fakeEmbedder{model: "new-model"}, store)
	require.NoError(t, ix.EnsureIndex(context.Background(), units))

	assert.Equal(t, 1, store.resets)
	assert.Equal(t, "new-model", store.marker)
	assert.Equal(t, 3, store.Count())
}

func TestEnsureIndex_RebuildsPartialIndex(t *testing.T) {
	store := newFakeStore()
	units := testUnits(5)
	// Simulate a store left behind by an interrupted run.
	require.NoError(t, store.Upsert(context.Background(), []models.IndexedVector{{EmbeddingID: "genesis:1:1"}}))
	store.marker = "nomic-embed-text"

	ix := fastIndexer(&fakeEmbedder{}, store)
	require.NoError(t, ix.EnsureIndex(context.Background(), units))

	assert.Equal(t, 1, store.resets)
	assert.Equal(t, 5, store.Count())
	assert.True(t, ix.Ready())
}

func TestEnsureIndex_NotReadyAfterFailure(t *testing.T) {
	units := testUnits(2)
	embedder := &fakeEmbedder{
		failures: map[string]int{units[0].WindowText: -1},
		failWith: fmt.Errorf("%w: down", ragerr.ErrEmbeddingUnavailable),
	}
	ix := fastIndexer(embedder, newFakeStore())

	err := ix.EnsureIndex(context.Background(), units)

	assert.Error(t, err)
	assert.False(t, ix.Ready())
}
