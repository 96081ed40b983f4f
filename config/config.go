package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend names accepted by the provider and store settings.
const (
	StoreChroma     = "chroma"
	StoreSQLite     = "sqlite"
	ProviderGemini  = "gemini"
	ProviderOllama  = "ollama"
	EnvDevelopment  = "development"
	EnvProduction   = "production"
	DefaultFileName = "config.yaml"
)

// ChunkingConfig is a chunk size / overlap pair, counted in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type GeminiConfig struct {
	APIKey          string `yaml:"api_key"`
	EmbeddingModel  string `yaml:"embedding_model"`
	CompletionModel string `yaml:"completion_model"`
	SpeechModel     string `yaml:"speech_model"`
	Voice           string `yaml:"voice"`
}

type OllamaConfig struct {
	URL              string `yaml:"url"`
	EmbeddingModel   string `yaml:"embedding_model"`
	CompletionModel  string `yaml:"completion_model"`
	EmbedConcurrency int    `yaml:"embed_concurrency"`
}

type ChromaConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
}

type CrawlConfig struct {
	MaxDepth    int    `yaml:"max_depth"`
	Concurrency int    `yaml:"concurrency"`
	UserAgent   string `yaml:"user_agent"`
}

// Config is the root application configuration.
type Config struct {
	Environment        string `yaml:"environment"`
	ServerAddr         string `yaml:"server_addr"`
	DataDirectoryPath  string `yaml:"data_directory_path"`
	WatchDirectoryPath string `yaml:"watch_directory_path"`
	UnidocLicenseKey   string `yaml:"unidoc_license_key"`

	VectorStore        string `yaml:"vector_store"`
	SQLitePath         string `yaml:"sqlite_path"`
	EmbeddingProvider  string `yaml:"embedding_provider"`
	CompletionProvider string `yaml:"completion_provider"`
	Dimension          int    `yaml:"dimension"`
	TopK               int    `yaml:"top_k"`
	ReasoningBudget    int    `yaml:"reasoning_budget"`

	UploadChunking ChunkingConfig `yaml:"upload_chunking"`
	CrawlChunking  ChunkingConfig `yaml:"crawl_chunking"`

	Gemini GeminiConfig `yaml:"gemini"`
	Ollama OllamaConfig `yaml:"ollama"`
	Chroma ChromaConfig `yaml:"chroma"`
	Crawl  CrawlConfig  `yaml:"crawl"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Environment:        EnvDevelopment,
		ServerAddr:         ":8080",
		DataDirectoryPath:  "data",
		VectorStore:        StoreChroma,
		SQLitePath:         "data/index.db",
		EmbeddingProvider:  ProviderGemini,
		CompletionProvider: ProviderGemini,
		Dimension:          768,
		TopK:               3,
		ReasoningBudget:    10,
		UploadChunking:     ChunkingConfig{Size: 1000, Overlap: 200},
		CrawlChunking:      ChunkingConfig{Size: 2500, Overlap: 300},
		Gemini: GeminiConfig{
			EmbeddingModel:  "gemini-embedding-001",
			CompletionModel: "gemini-2.5-flash",
			SpeechModel:     "gemini-2.5-flash-preview-tts",
			Voice:           "Kore",
		},
		Ollama: OllamaConfig{
			URL:              "http://localhost:11434",
			EmbeddingModel:   "nomic-embed-text:v1.5",
			CompletionModel:  "llama3.2",
			EmbedConcurrency: 4,
		},
		Chroma: ChromaConfig{
			URL:        "http://localhost:8000",
			Collection: "document_embeddings",
		},
		Crawl: CrawlConfig{
			MaxDepth:    1,
			Concurrency: 8,
			UserAgent:   "ragkb-crawler/1.0",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (a missing file is fine), then the .env file and environment variables.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables.")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("unable to open config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("unable to parse config file: %w", err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ENVIRONMENT":          &c.Environment,
		"SERVER_ADDR":          &c.ServerAddr,
		"DATA_DIRECTORY_PATH":  &c.DataDirectoryPath,
		"WATCH_DIRECTORY_PATH": &c.WatchDirectoryPath,
		"UNIDOC_LICENSE_KEY":   &c.UnidocLicenseKey,
		"VECTOR_STORE":         &c.VectorStore,
		"SQLITE_PATH":          &c.SQLitePath,
		"EMBEDDING_PROVIDER":   &c.EmbeddingProvider,
		"COMPLETION_PROVIDER":  &c.CompletionProvider,
		"GEMINI_API_KEY":       &c.Gemini.APIKey,
		"OLLAMA_URL":           &c.Ollama.URL,
		"CHROMA_URL":           &c.Chroma.URL,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"EMBEDDING_DIMENSION": &c.Dimension,
		"TOP_K":               &c.TopK,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s must be an integer, got %q", key, v)
		}
		*dst = n
	}
	return nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	oneOf := func(name, v string, allowed ...string) {
		for _, a := range allowed {
			if strings.EqualFold(v, a) {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, ", "), v))
	}
	oneOf("vector_store", c.VectorStore, StoreChroma, StoreSQLite)
	oneOf("embedding_provider", c.EmbeddingProvider, ProviderGemini, ProviderOllama)
	oneOf("completion_provider", c.CompletionProvider, ProviderGemini, ProviderOllama)

	for name, ch := range map[string]ChunkingConfig{"upload_chunking": c.UploadChunking, "crawl_chunking": c.CrawlChunking} {
		if ch.Size <= 0 || ch.Overlap <= 0 || ch.Overlap >= ch.Size {
			errs = append(errs, fmt.Errorf("%s needs 0 < overlap < size, got %d/%d", name, ch.Size, ch.Overlap))
		}
	}
	if c.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("dimension must be positive, got %d", c.Dimension))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k must be positive, got %d", c.TopK))
	}
	if c.DataDirectoryPath == "" {
		errs = append(errs, errors.New("data_directory_path is required"))
	}
	if c.NeedsGemini() && c.Gemini.APIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini provider"))
	}
	return errors.Join(errs...)
}

// NeedsGemini reports whether any configured provider talks to Gemini.
func (c *Config) NeedsGemini() bool {
	return strings.EqualFold(c.EmbeddingProvider, ProviderGemini) || strings.EqualFold(c.CompletionProvider, ProviderGemini)
}

// IsProduction switches gin to release mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}
