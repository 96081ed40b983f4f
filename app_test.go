package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/ragkb/config"
	"github.com/itish2003/ragkb/services"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.VectorStore = config.StoreSQLite
	cfg.SQLitePath = filepath.Join(dir, "index.db")
	cfg.DataDirectoryPath = filepath.Join(dir, "data")
	cfg.EmbeddingProvider = config.ProviderOllama
	cfg.CompletionProvider = config.ProviderOllama
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewApp_LocalStack(t *testing.T) {
	a, err := newApp(context.Background(), localConfig(t))
	require.NoError(t, err)
	defer a.Close()

	n, err := a.service.CountEntries(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	docs, err := a.service.ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = a.service.Transcribe(context.Background(), []byte("pcm"), "audio/wav")
	assert.ErrorIs(t, err, services.ErrConfiguration, "voice needs the gemini provider")
}

func TestNewApp_BadChunking(t *testing.T) {
	cfg := localConfig(t)
	cfg.UploadChunking = config.ChunkingConfig{Size: 10, Overlap: 10}
	_, err := newApp(context.Background(), cfg)
	assert.ErrorIs(t, err, services.ErrConfiguration)
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	cfg := localConfig(t)
	cfg.EmbeddingProvider = "openai"
	_, err := newEmbedder(cfg, nil, nil)
	assert.ErrorIs(t, err, services.ErrConfiguration)
}
