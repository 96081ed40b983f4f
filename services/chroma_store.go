package services

import (
	"context"
	"fmt"
	"log"

	"github.com/itish2003/ragkb/models"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

// ChromaStore keeps the index in a Chroma collection. The collection must be
// created with cosine space so that distances are comparable with SQLiteStore.
type ChromaStore struct {
	client     chromago.Client
	collection chromago.Collection
	dimension  int
}

// NewChromaStore wraps an existing collection. The client, when not nil, is
// closed together with the store.
func NewChromaStore(client chromago.Client, collection chromago.Collection, dimension int) *ChromaStore {
	return &ChromaStore{client: client, collection: collection, dimension: dimension}
}

func (s *ChromaStore) Dimension() int { return s.dimension }

func (s *ChromaStore) Add(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := validateBatch(entries, s.dimension); err != nil {
		return err
	}

	ids := make([]chromago.DocumentID, len(entries))
	texts := make([]string, len(entries))
	vectors := make([]embeddings.Embedding, len(entries))
	metadatas := make([]chromago.DocumentMetadata, len(entries))
	for i, e := range entries {
		ids[i] = chromago.DocumentID(e.ID)
		texts[i] = e.Text
		vectors[i] = embeddings.NewEmbeddingFromFloat32(e.Vector)
		metadatas[i] = chromago.NewDocumentMetadata(
			chromago.NewStringAttribute(models.MetaDocumentID, e.DocumentID),
			chromago.NewIntAttribute(models.MetaChunkIndex, int64(e.ChunkIndex)),
		)
	}

	existing, err := s.collection.Get(ctx, chromago.WithIDsGet(ids...))
	if err != nil {
		return fmt.Errorf("%w: checking ids in chroma: %v", ErrStoreWrite, err)
	}
	if found := existing.GetIDs(); len(found) > 0 {
		return fmt.Errorf("%w: entry %q already exists", ErrStoreWrite, string(found[0]))
	}

	err = s.collection.Add(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(vectors...),
		chromago.WithMetadatas(metadatas...),
	)
	if err != nil {
		return fmt.Errorf("%w: adding %d entries to chroma: %v", ErrStoreWrite, len(entries), err)
	}
	return nil
}

func (s *ChromaStore) Query(ctx context.Context, vector []float32, k int) ([]models.Passage, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrConfiguration, k)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index has %d",
			ErrConfiguration, len(vector), s.dimension)
	}

	results, err := s.collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chromadb: %w", err)
	}

	documentGroups := results.GetDocumentsGroups()
	if len(documentGroups) == 0 {
		return nil, nil
	}
	var metadatas chromago.DocumentMetadatas
	if groups := results.GetMetadatasGroups(); len(groups) > 0 {
		metadatas = groups[0]
	}
	var distances embeddings.Distances
	if groups := results.GetDistancesGroups(); len(groups) > 0 {
		distances = groups[0]
	}
	return rankPassages(passagesFromResults(documentGroups[0], metadatas, distances), k), nil
}

// passagesFromResults rebuilds passages from one query result group. Entry ids
// are derived from the stored metadata.
func passagesFromResults(docs chromago.Documents, metadatas chromago.DocumentMetadatas, distances embeddings.Distances) []models.Passage {
	passages := make([]models.Passage, 0, len(docs))
	for i, doc := range docs {
		if doc == nil || doc.ContentString() == "" {
			continue
		}
		p := models.Passage{Text: doc.ContentString()}
		if i < len(metadatas) && metadatas[i] != nil {
			p.DocumentID, _ = metadatas[i].GetString(models.MetaDocumentID)
			idx, _ := metadatas[i].GetInt(models.MetaChunkIndex)
			p.ChunkIndex = int(idx)
		}
		p.ID = models.EntryID(p.DocumentID, p.ChunkIndex)
		if i < len(distances) {
			p.Distance = float32(distances[i])
		}
		passages = append(passages, p)
	}
	return passages
}

// Delete supports document_id filters only; chunk indexes are stored as ints.
func (s *ChromaStore) Delete(ctx context.Context, filter models.Filter) error {
	if filter.Key != models.MetaDocumentID {
		return fmt.Errorf("%w: chroma store cannot delete by %q", ErrConfiguration, filter.Key)
	}
	if err := s.collection.Delete(ctx, chromago.WithWhereDelete(chromago.EqString(filter.Key, filter.Value))); err != nil {
		return fmt.Errorf("%w: deleting %s=%s from chroma: %v", ErrStoreWrite, filter.Key, filter.Value, err)
	}
	return nil
}

func (s *ChromaStore) Count(ctx context.Context) (int, error) {
	count, err := s.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count items in collection: %w", err)
	}
	return int(count), nil
}

func (s *ChromaStore) Close() error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		log.Printf("STORE: Failed to close chroma client: %v", err)
		return err
	}
	return nil
}
