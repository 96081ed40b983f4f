package services

import (
	"context"
	"math"
	"sort"

	"github.com/itish2003/ragkb/models"
)

// VectorStore persists index entries and answers nearest-neighbour queries.
//
// Add is all-or-nothing: a dimension mismatch or an id that already exists
// fails the whole batch with ErrStoreWrite. Query returns at most k passages
// ordered by ascending cosine distance. Delete with a filter that matches
// nothing is not an error.
type VectorStore interface {
	Dimension() int
	Add(ctx context.Context, entries []models.IndexEntry) error
	Query(ctx context.Context, vector []float32, k int) ([]models.Passage, error)
	Delete(ctx context.Context, filter models.Filter) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// DocumentReplacer is implemented by stores that can swap all entries of one
// document in a single transaction.
type DocumentReplacer interface {
	ReplaceDocument(ctx context.Context, documentID string, entries []models.IndexEntry) error
}

// cosineDistance returns 1 - cos(a, b). A zero vector is treated as
// orthogonal to everything.
func cosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

// rankPassages sorts by distance, breaking ties by id so that equal scores
// come back in a stable order, and keeps the first k.
func rankPassages(passages []models.Passage, k int) []models.Passage {
	sort.Slice(passages, func(i, j int) bool {
		if passages[i].Distance != passages[j].Distance {
			return passages[i].Distance < passages[j].Distance
		}
		return passages[i].ID < passages[j].ID
	})
	if len(passages) > k {
		passages = passages[:k]
	}
	return passages
}
