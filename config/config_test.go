package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
vector_store: sqlite
sqlite_path: /var/lib/ragkb/index.db
embedding_provider: ollama
completion_provider: ollama
top_k: 5
upload_chunking:
  size: 800
  overlap: 100
ollama:
  completion_model: mistral
`), 0o644))

	t.Setenv("TOP_K", "7")
	t.Setenv("OLLAMA_URL", "http://ollama:11434")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.VectorStore)
	assert.Equal(t, "/var/lib/ragkb/index.db", cfg.SQLitePath)
	assert.Equal(t, 7, cfg.TopK, "environment overrides the file")
	assert.Equal(t, ChunkingConfig{Size: 800, Overlap: 100}, cfg.UploadChunking)
	assert.Equal(t, ChunkingConfig{Size: 2500, Overlap: 300}, cfg.CrawlChunking)
	assert.Equal(t, "mistral", cfg.Ollama.CompletionModel)
	assert.Equal(t, "nomic-embed-text:v1.5", cfg.Ollama.EmbeddingModel, "unset keys keep defaults")
	assert.Equal(t, "http://ollama:11434", cfg.Ollama.URL)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "document_embeddings", cfg.Chroma.Collection)
	assert.Equal(t, 768, cfg.Dimension)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.CompletionModel)
	assert.Equal(t, 10, cfg.ReasoningBudget)
	assert.Equal(t, 1, cfg.Crawl.MaxDepth)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown store", func(c *Config) { c.VectorStore = "pinecone" }},
		{"overlap not below size", func(c *Config) { c.CrawlChunking.Overlap = 2500 }},
		{"zero top k", func(c *Config) { c.TopK = 0 }},
		{"gemini without key", func(c *Config) { c.Gemini.APIKey = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Gemini.APIKey = "k"
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.EmbeddingProvider, cfg.CompletionProvider = ProviderOllama, ProviderOllama
	assert.NoError(t, cfg.Validate(), "ollama-only setups need no gemini key")
}

func TestApplyEnv_RejectsBadInteger(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(key string) (string, bool) {
		if key == "TOP_K" {
			return "three", true
		}
		return "", false
	})
	assert.Error(t, err)
}
