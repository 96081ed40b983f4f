package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/itish2003/ragkb/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaFixture(t *testing.T, handler func(req models.OllamaEmbedRequest) (int, models.OllamaEmbedResponse)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req models.OllamaEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, resp := handler(req)
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_EmbedManyPreservesOrder(t *testing.T) {
	srv := newOllamaFixture(t, func(req models.OllamaEmbedRequest) (int, models.OllamaEmbedResponse) {
		assert.Equal(t, "nomic-embed-text", req.Model)
		return http.StatusOK, models.OllamaEmbedResponse{Embedding: []float32{float32(len(req.Prompt)), 1}}
	})

	e := NewOllamaEmbedder(srv.Client(), srv.URL+"/", "nomic-embed-text", 4)
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff"}

	vectors, err := e.EmbedMany(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, v := range vectors {
		assert.Equal(t, float32(len(texts[i])), v[0])
	}
}

func TestOllamaEmbedder_FailureIsEmbeddingError(t *testing.T) {
	srv := newOllamaFixture(t, func(req models.OllamaEmbedRequest) (int, models.OllamaEmbedResponse) {
		if strings.Contains(req.Prompt, "bad") {
			return http.StatusInternalServerError, models.OllamaEmbedResponse{Error: "model crashed"}
		}
		return http.StatusOK, models.OllamaEmbedResponse{Embedding: []float32{1}}
	})

	e := NewOllamaEmbedder(srv.Client(), srv.URL, "m", 2)
	vectors, err := e.EmbedMany(context.Background(), []string{"ok", "bad", "ok"})
	assert.ErrorIs(t, err, ErrEmbedding)
	assert.Nil(t, vectors)
}

func TestOllamaEmbedder_EmptyEmbedding(t *testing.T) {
	srv := newOllamaFixture(t, func(models.OllamaEmbedRequest) (int, models.OllamaEmbedResponse) {
		return http.StatusOK, models.OllamaEmbedResponse{}
	})

	_, err := NewOllamaEmbedder(srv.Client(), srv.URL, "m", 1).Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmbedding)
}
