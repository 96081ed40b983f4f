package services

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log"
	"net/http"
	"strings"

	"github.com/itish2003/ragkb/crawler"
	"github.com/itish2003/ragkb/models"
)

// RAGService is the knowledge base as seen by the HTTP, MCP and CLI surfaces.
type RAGService interface {
	Ingest(ctx context.Context, doc models.Document, chunkSize, chunkOverlap int) error
	IngestFile(ctx context.Context, path string) (*models.DocumentMetadata, error)
	IngestUpload(ctx context.Context, filename string, r io.Reader) (*models.DocumentMetadata, error)
	Remove(ctx context.Context, documentID string) error
	ListDocuments(ctx context.Context) ([]models.DocumentMetadata, error)
	CountEntries(ctx context.Context) (int, error)

	Search(ctx context.Context, query string, k int) ([]models.Passage, error)
	Answer(ctx context.Context, query string, mode AnswerMode) (iter.Seq[string], error)
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)

	Crawl(ctx context.Context, rootURL string) (*models.DocumentMetadata, error)
	StartCrawl(rootURL string) (models.CrawlStatus, error)
	CrawlStatus(id string) (models.CrawlStatus, error)
	ListCrawls() []models.CrawlStatus
}

// Dependencies wires a RAGService. Speech may be nil, which disables voice
// queries.
type Dependencies struct {
	Indexer   *IndexingService
	Retriever *Retriever
	Generator *Generator
	Files     *DocumentFiles
	Store     VectorStore
	Speech    SpeechProvider

	HTTPClient        *http.Client
	CrawlOptions      crawler.Options
	CrawlChunkSize    int
	CrawlChunkOverlap int
	TopK              int
	// Context of the background crawl jobs; defaults to context.Background.
	JobContext context.Context
}

type ragServiceImpl struct {
	deps Dependencies
	jobs *CrawlJobs
}

func NewRAGService(deps Dependencies) RAGService {
	if deps.TopK <= 0 {
		deps.TopK = DefaultTopK
	}
	if deps.CrawlChunkSize <= 0 || deps.CrawlChunkOverlap <= 0 {
		deps.CrawlChunkSize, deps.CrawlChunkOverlap = CrawlChunkSize, CrawlChunkOverlap
	}
	if deps.JobContext == nil {
		deps.JobContext = context.Background()
	}
	s := &ragServiceImpl{deps: deps}
	s.jobs = NewCrawlJobs(deps.JobContext, s.Crawl)
	return s
}

func (r *ragServiceImpl) Ingest(ctx context.Context, doc models.Document, chunkSize, chunkOverlap int) error {
	return r.deps.Indexer.Ingest(ctx, doc, chunkSize, chunkOverlap)
}

func (r *ragServiceImpl) IngestFile(ctx context.Context, path string) (*models.DocumentMetadata, error) {
	return r.deps.Indexer.IngestFile(ctx, path)
}

func (r *ragServiceImpl) IngestUpload(ctx context.Context, filename string, rd io.Reader) (*models.DocumentMetadata, error) {
	log.Printf("SERVICE: Ingesting upload %s", filename)
	return r.deps.Indexer.IngestReader(ctx, filename, rd)
}

func (r *ragServiceImpl) Remove(ctx context.Context, documentID string) error {
	return r.deps.Indexer.Remove(ctx, documentID)
}

func (r *ragServiceImpl) ListDocuments(_ context.Context) ([]models.DocumentMetadata, error) {
	return r.deps.Files.List()
}

// CountEntries counts all the document chunks in the index.
func (r *ragServiceImpl) CountEntries(ctx context.Context) (int, error) {
	return r.deps.Store.Count(ctx)
}

func (r *ragServiceImpl) Search(ctx context.Context, query string, k int) ([]models.Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrConfiguration)
	}
	if k == 0 {
		k = r.deps.TopK
	}
	return r.deps.Retriever.RetrievePassages(ctx, query, k)
}

// Answer retrieves before returning, so retrieval errors surface here rather
// than inside the stream.
func (r *ragServiceImpl) Answer(ctx context.Context, query string, mode AnswerMode) (iter.Seq[string], error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrConfiguration)
	}
	log.Printf("SERVICE: Answering query in %s mode: '%s'", mode, query)
	passages, err := r.deps.Retriever.Retrieve(ctx, query, r.deps.TopK)
	if err != nil {
		return nil, err
	}
	return r.deps.Generator.Generate(ctx, query, passages, mode), nil
}

func (r *ragServiceImpl) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if r.deps.Speech == nil {
		return "", fmt.Errorf("%w: voice queries need a speech provider", ErrConfiguration)
	}
	return r.deps.Speech.Transcribe(ctx, audio, mimeType)
}

func (r *ragServiceImpl) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if r.deps.Speech == nil {
		return nil, fmt.Errorf("%w: voice answers need a speech provider", ErrConfiguration)
	}
	return r.deps.Speech.Synthesize(ctx, text)
}

// Crawl collects a site, stores it as one text document and indexes it with
// the crawl chunking parameters.
func (r *ragServiceImpl) Crawl(ctx context.Context, rootURL string) (*models.DocumentMetadata, error) {
	seed, err := crawler.Seed(rootURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	pages, err := crawler.New(r.deps.HTTPClient, r.deps.CrawlOptions).Run(ctx, rootURL)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(pages))
	urls := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
		urls[i] = p.URL
	}
	text := strings.Join(texts, "\n\n")

	docID := CrawlDocumentID(seed.Host)
	_, meta, err := r.deps.Files.WriteText(docID, text, urls)
	if err != nil {
		return nil, err
	}
	doc := models.Document{ID: docID, Text: text, Metadata: *meta}
	if err := r.deps.Indexer.Ingest(ctx, doc, r.deps.CrawlChunkSize, r.deps.CrawlChunkOverlap); err != nil {
		return nil, err
	}
	return meta, nil
}

// CrawlDocumentID names the document a crawl of host produces.
func CrawlDocumentID(host string) string {
	return strings.NewReplacer(".", "_", ":", "_").Replace(host) + ".txt"
}

func (r *ragServiceImpl) StartCrawl(rootURL string) (models.CrawlStatus, error) {
	return r.jobs.Start(rootURL)
}

func (r *ragServiceImpl) CrawlStatus(id string) (models.CrawlStatus, error) {
	return r.jobs.Get(id)
}

func (r *ragServiceImpl) ListCrawls() []models.CrawlStatus {
	return r.jobs.List()
}
