package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/itish2003/ragkb/models"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// EmbeddingProvider turns text into fixed-length vectors. EmbedMany returns
// one vector per input, in input order, or an error for the whole batch.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// geminiEmbedBatch is the largest request the embedContent endpoint accepts.
const geminiEmbedBatch = 100

// GeminiEmbedder embeds text through the Gemini API.
type GeminiEmbedder struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGeminiEmbedder builds an embedder that asks the model for vectors of the
// given dimension.
func NewGeminiEmbedder(client *genai.Client, model string, dimension int) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, model: model, dimension: dimension}
}

func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *GeminiEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiEmbedBatch {
		end := min(start+geminiEmbedBatch, len(texts))

		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}
		resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr[int32](int32(g.dimension)),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: gemini embed texts %d-%d: %v", ErrEmbedding, start, end-1, err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: gemini returned %d embeddings for %d texts",
				ErrEmbedding, len(resp.Embeddings), end-start)
		}
		for i, e := range resp.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, fmt.Errorf("%w: gemini returned an empty embedding for text %d", ErrEmbedding, start+i)
			}
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// OllamaEmbedder calls a local Ollama server's /api/embeddings endpoint.
type OllamaEmbedder struct {
	httpClient  *http.Client
	baseURL     string
	model       string
	concurrency int
}

// NewOllamaEmbedder returns an embedder that issues at most concurrency
// requests at once from EmbedMany.
func NewOllamaEmbedder(client *http.Client, baseURL, model string, concurrency int) *OllamaEmbedder {
	if concurrency < 1 {
		concurrency = 1
	}
	return &OllamaEmbedder{
		httpClient:  client,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		concurrency: concurrency,
	}
}

// Embed generates one embedding using Ollama.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(models.OllamaEmbedRequest{
		Model:  o.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal ollama request: %v", ErrEmbedding, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: create ollama request: %v", ErrEmbedding, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: call ollama embedding api: %v", ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama returned status %d, body: %s", ErrEmbedding, resp.StatusCode, string(bodyBytes))
	}

	var ollamaResp models.OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("%w: decode ollama response: %v", ErrEmbedding, err)
	}
	if ollamaResp.Error != "" {
		return nil, fmt.Errorf("%w: ollama: %s", ErrEmbedding, ollamaResp.Error)
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama returned an empty embedding", ErrEmbedding)
	}
	return ollamaResp.Embedding, nil
}

// EmbedMany fans the texts out to a bounded pool. Each worker writes into its
// own slot, so the result order follows the input order.
func (o *OllamaEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			v, err := o.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("SERVICE: Ollama batch embedding of %d texts failed: %v", len(texts), err)
		return nil, err
	}
	return out, nil
}
