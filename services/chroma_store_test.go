package services

import (
	"context"
	"testing"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/itish2003/ragkb/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubDocument struct {
	chromago.Document
	content string
}

func (d stubDocument) ContentString() string { return d.content }

type stubMetadata struct {
	chromago.DocumentMetadata
	documentID string
	chunkIndex int64
}

func (m stubMetadata) GetString(key string) (string, bool) {
	if key == models.MetaDocumentID {
		return m.documentID, true
	}
	return "", false
}

func (m stubMetadata) GetInt(key string) (int64, bool) {
	if key == models.MetaChunkIndex {
		return m.chunkIndex, true
	}
	return 0, false
}

func TestPassagesFromResults(t *testing.T) {
	docs := chromago.Documents{
		stubDocument{content: "The sky is blue. "},
		stubDocument{content: ""},
		stubDocument{content: " The grass is green."},
	}
	metas := chromago.DocumentMetadatas{
		stubMetadata{documentID: "sky.txt", chunkIndex: 0},
		stubMetadata{documentID: "sky.txt", chunkIndex: 7},
		stubMetadata{documentID: "sky.txt", chunkIndex: 1},
	}
	distances := embeddings.Distances{0.12, 0.5, 0.4}

	got := passagesFromResults(docs, metas, distances)
	require.Len(t, got, 2)
	assert.Equal(t, models.Passage{
		ID: "sky.txt_0", Text: "The sky is blue. ", DocumentID: "sky.txt", ChunkIndex: 0, Distance: 0.12,
	}, got[0])
	assert.Equal(t, "sky.txt_1", got[1].ID)
	assert.InDelta(t, 0.4, got[1].Distance, 1e-6)
}

func TestChromaStore_ValidatesBeforeCallingChroma(t *testing.T) {
	s := NewChromaStore(nil, nil, 3)
	ctx := context.Background()

	err := s.Add(ctx, []models.IndexEntry{entry("a.txt", 0, "x", 1, 2)})
	assert.ErrorIs(t, err, ErrStoreWrite)

	_, err = s.Query(ctx, []float32{1, 2, 3}, 0)
	assert.ErrorIs(t, err, ErrConfiguration)

	assert.ErrorIs(t, s.Delete(ctx, models.Filter{Key: models.MetaChunkIndex, Value: "1"}), ErrConfiguration)
	assert.NoError(t, s.Add(ctx, nil))
	assert.NoError(t, s.Close())
}

type mockCollection struct {
	chromago.Collection
	mock.Mock
}

func (m *mockCollection) Add(ctx context.Context, opts ...chromago.CollectionAddOption) error {
	return m.Called(ctx, len(opts)).Error(0)
}

func (m *mockCollection) Get(ctx context.Context, opts ...chromago.CollectionGetOption) (chromago.GetResult, error) {
	args := m.Called(ctx, len(opts))
	res, _ := args.Get(0).(chromago.GetResult)
	return res, args.Error(1)
}

func (m *mockCollection) Query(ctx context.Context, opts ...chromago.CollectionQueryOption) (chromago.QueryResult, error) {
	args := m.Called(ctx, len(opts))
	res, _ := args.Get(0).(chromago.QueryResult)
	return res, args.Error(1)
}

func (m *mockCollection) Delete(ctx context.Context, opts ...chromago.CollectionDeleteOption) error {
	return m.Called(ctx, len(opts)).Error(0)
}

func (m *mockCollection) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockGetResult struct {
	chromago.GetResult
	ids chromago.DocumentIDs
}

func (r mockGetResult) GetIDs() chromago.DocumentIDs { return r.ids }

type mockQueryResult struct {
	chromago.QueryResult
	docs      chromago.Documents
	metas     chromago.DocumentMetadatas
	distances embeddings.Distances
}

func (r mockQueryResult) GetDocumentsGroups() []chromago.Documents { return []chromago.Documents{r.docs} }

func (r mockQueryResult) GetMetadatasGroups() []chromago.DocumentMetadatas {
	return []chromago.DocumentMetadatas{r.metas}
}

func (r mockQueryResult) GetDistancesGroups() []embeddings.Distances {
	return []embeddings.Distances{r.distances}
}

func TestChromaStore_Add(t *testing.T) {
	col := new(mockCollection)
	s := NewChromaStore(nil, col, 2)

	col.On("Get", mock.Anything, 1).Return(mockGetResult{}, nil).Once()
	col.On("Add", mock.Anything, 4).Return(nil).Once()

	require.NoError(t, s.Add(context.Background(), []models.IndexEntry{
		entry("a.txt", 0, "east", 1, 0),
		entry("a.txt", 1, "north", 0, 1),
	}))
	col.AssertExpectations(t)
}

func TestChromaStore_AddRejectsExistingID(t *testing.T) {
	col := new(mockCollection)
	s := NewChromaStore(nil, col, 2)

	col.On("Get", mock.Anything, 1).Return(mockGetResult{ids: chromago.DocumentIDs{"a.txt_0"}}, nil).Once()

	err := s.Add(context.Background(), []models.IndexEntry{entry("a.txt", 0, "east", 1, 0)})
	assert.ErrorIs(t, err, ErrStoreWrite)
	assert.Contains(t, err.Error(), "a.txt_0")
	col.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
	col.AssertExpectations(t)
}

func TestChromaStore_QueryRanksAndTruncates(t *testing.T) {
	col := new(mockCollection)
	s := NewChromaStore(nil, col, 2)

	col.On("Query", mock.Anything, 2).Return(mockQueryResult{
		docs: chromago.Documents{
			stubDocument{content: "far"},
			stubDocument{content: "near"},
			stubDocument{content: "middle"},
		},
		metas: chromago.DocumentMetadatas{
			stubMetadata{documentID: "a.txt", chunkIndex: 2},
			stubMetadata{documentID: "a.txt", chunkIndex: 0},
			stubMetadata{documentID: "b.txt", chunkIndex: 1},
		},
		distances: embeddings.Distances{0.9, 0.1, 0.4},
	}, nil).Once()

	got, err := s.Query(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a.txt_0", got[0].ID)
	assert.Equal(t, "near", got[0].Text)
	assert.Equal(t, "b.txt_1", got[1].ID)
	assert.Equal(t, "b.txt", got[1].DocumentID)
	col.AssertExpectations(t)
}

func TestChromaStore_DeleteOnlyByDocument(t *testing.T) {
	col := new(mockCollection)
	s := NewChromaStore(nil, col, 2)
	ctx := context.Background()

	col.On("Delete", mock.Anything, 1).Return(nil).Once()
	require.NoError(t, s.Delete(ctx, models.ByDocument("a.txt")))

	assert.ErrorIs(t, s.Delete(ctx, models.Filter{Key: models.MetaChunkIndex, Value: "0"}), ErrConfiguration)
	col.AssertNumberOfCalls(t, "Delete", 1)

	col.On("Count", mock.Anything).Return(5, nil).Once()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	col.AssertExpectations(t)
}

func TestIngest_ChromaDeletesBeforeAddingValidBatch(t *testing.T) {
	col := new(mockCollection)
	store := NewChromaStore(nil, col, len(testVocabulary))
	ctx := context.Background()
	doc := models.Document{ID: "sky.txt", Text: "The sky is blue. The grass is green."}

	var calls []string
	col.On("Delete", mock.Anything, 1).Run(func(mock.Arguments) { calls = append(calls, "delete") }).Return(nil).Once()
	col.On("Get", mock.Anything, 1).Return(mockGetResult{}, nil).Once()
	col.On("Add", mock.Anything, 4).Run(func(mock.Arguments) { calls = append(calls, "add") }).Return(nil).Once()

	require.NoError(t, NewIndexingService(&keywordEmbedder{}, store, nil).Ingest(ctx, doc, 20, 5))
	assert.Equal(t, []string{"delete", "add"}, calls)
	col.AssertExpectations(t)

	err := NewIndexingService(shortEmbedder{}, store, nil).Ingest(ctx, doc, 20, 5)
	assert.ErrorIs(t, err, ErrStoreWrite)
	col.AssertNumberOfCalls(t, "Delete", 1)
}
