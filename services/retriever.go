package services

import (
	"context"
	"fmt"
	"log"

	"github.com/itish2003/ragkb/models"
)

// DefaultTopK is the number of passages handed to the generator.
const DefaultTopK = 3

// Retriever embeds a query and looks up its nearest passages.
type Retriever struct {
	embedder EmbeddingProvider
	store    VectorStore
}

func NewRetriever(embedder EmbeddingProvider, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve returns the texts of at most k passages, closest first.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	passages, err := r.RetrievePassages(ctx, query, k)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return texts, nil
}

// RetrievePassages is Retrieve with ids, document ids and distances kept.
func (r *Retriever) RetrievePassages(ctx context.Context, query string, k int) ([]models.Passage, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrConfiguration, k)
	}
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	passages, err := r.store.Query(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("querying vector store: %w", err)
	}
	log.Printf("SERVICE: Retrieved %d passages for query (k=%d)", len(passages), k)
	return passages, nil
}
