package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/tmc/langchaingo/llms/ollama"
	"google.golang.org/genai"

	"github.com/itish2003/ragkb/config"
	"github.com/itish2003/ragkb/crawler"
	"github.com/itish2003/ragkb/services"
)

// app holds the wired pipeline shared by every command.
type app struct {
	cfg      *config.Config
	indexer  *services.IndexingService
	store    services.VectorStore
	service  services.RAGService
	jobsStop context.CancelFunc
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	services.SetPDFLicense(cfg.UnidocLicenseKey)

	httpClient := &http.Client{Timeout: 30 * time.Second}

	var geminiClient *genai.Client
	if cfg.NeedsGemini() {
		var err error
		geminiClient, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.Gemini.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		log.Println("Successfully connected to Google Gemini.")
	}

	embedder, err := newEmbedder(cfg, httpClient, geminiClient)
	if err != nil {
		return nil, err
	}
	completer, err := newCompleter(cfg, geminiClient)
	if err != nil {
		return nil, err
	}
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	files, err := services.NewDocumentFiles(cfg.DataDirectoryPath)
	if err != nil {
		store.Close()
		return nil, err
	}
	indexer := services.NewIndexingService(embedder, store, files)
	if err := indexer.SetUploadChunking(cfg.UploadChunking.Size, cfg.UploadChunking.Overlap); err != nil {
		store.Close()
		return nil, err
	}

	var speech services.SpeechProvider
	if geminiClient != nil {
		speech = services.NewGeminiSpeech(geminiClient, cfg.Gemini.CompletionModel, cfg.Gemini.SpeechModel, cfg.Gemini.Voice)
	}

	crawlOpts := crawler.DefaultOptions()
	crawlOpts.MaxDepth = cfg.Crawl.MaxDepth
	crawlOpts.Concurrency = cfg.Crawl.Concurrency
	crawlOpts.UserAgent = cfg.Crawl.UserAgent

	jobCtx, stop := context.WithCancel(context.Background())
	service := services.NewRAGService(services.Dependencies{
		Indexer:           indexer,
		Retriever:         services.NewRetriever(embedder, store),
		Generator:         services.NewGenerator(completer, cfg.ReasoningBudget),
		Files:             files,
		Store:             store,
		Speech:            speech,
		HTTPClient:        httpClient,
		CrawlOptions:      crawlOpts,
		CrawlChunkSize:    cfg.CrawlChunking.Size,
		CrawlChunkOverlap: cfg.CrawlChunking.Overlap,
		TopK:              cfg.TopK,
		JobContext:        jobCtx,
	})

	return &app{cfg: cfg, indexer: indexer, store: store, service: service, jobsStop: stop}, nil
}

func (a *app) Close() error {
	a.jobsStop()
	return a.store.Close()
}

func newEmbedder(cfg *config.Config, httpClient *http.Client, geminiClient *genai.Client) (services.EmbeddingProvider, error) {
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case config.ProviderGemini:
		return services.NewGeminiEmbedder(geminiClient, cfg.Gemini.EmbeddingModel, cfg.Dimension), nil
	case config.ProviderOllama:
		return services.NewOllamaEmbedder(httpClient, cfg.Ollama.URL, cfg.Ollama.EmbeddingModel, cfg.Ollama.EmbedConcurrency), nil
	}
	return nil, fmt.Errorf("%w: unknown embedding provider %q", services.ErrConfiguration, cfg.EmbeddingProvider)
}

func newCompleter(cfg *config.Config, geminiClient *genai.Client) (services.CompletionProvider, error) {
	switch strings.ToLower(cfg.CompletionProvider) {
	case config.ProviderGemini:
		return services.NewGeminiCompleter(geminiClient, cfg.Gemini.CompletionModel), nil
	case config.ProviderOllama:
		llm, err := ollama.New(ollama.WithServerURL(cfg.Ollama.URL), ollama.WithModel(cfg.Ollama.CompletionModel))
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return services.NewOllamaCompleter(llm), nil
	}
	return nil, fmt.Errorf("%w: unknown completion provider %q", services.ErrConfiguration, cfg.CompletionProvider)
}

func newStore(ctx context.Context, cfg *config.Config) (services.VectorStore, error) {
	switch strings.ToLower(cfg.VectorStore) {
	case config.StoreSQLite:
		return services.NewSQLiteStore(cfg.SQLitePath, cfg.Dimension)
	case config.StoreChroma:
		client, err := chromago.NewHTTPClient(chromago.WithBaseURL(cfg.Chroma.URL))
		if err != nil {
			return nil, fmt.Errorf("failed to create chroma client: %w", err)
		}
		collection, err := getOrCreateCollection(ctx, client, cfg.Chroma.Collection)
		if err != nil {
			if cerr := client.Close(); cerr != nil {
				log.Printf("Warning: Failed to close chroma client: %v", cerr)
			}
			return nil, fmt.Errorf("failed to get or create collection: %w", err)
		}
		return services.NewChromaStore(client, collection, cfg.Dimension), nil
	}
	return nil, errors.New("unknown vector store " + cfg.VectorStore)
}

// getOrCreateCollection opens the index collection. Cosine space keeps the
// distances comparable with the SQLite store.
func getOrCreateCollection(ctx context.Context, client chromago.Client, collectionName string) (chromago.Collection, error) {
	log.Printf("Getting or creating collection '%s'...", collectionName)

	collection, err := client.GetOrCreateCollection(
		ctx,
		collectionName,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("hnsw:space", "cosine"),
				chromago.NewStringAttribute("description", "RAG knowledge base"),
				chromago.NewStringAttribute("created_by", "ragkb"),
			),
		),
	)
	if err != nil {
		return nil, err
	}

	log.Printf("Successfully got/created collection '%s'", collectionName)
	return collection, nil
}
