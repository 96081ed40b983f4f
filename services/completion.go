package services

import (
	"context"
	"iter"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

// CompletionProvider streams a model's answer as text fragments. A non-nil
// error ends the sequence. Stopping the iteration cancels the request.
type CompletionProvider interface {
	StreamComplete(ctx context.Context, prompt, systemInstruction string, reasoningBudget int) iter.Seq2[string, error]
}

// GeminiCompleter streams from the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

func NewGeminiCompleter(client *genai.Client, model string) *GeminiCompleter {
	return &GeminiCompleter{client: client, model: model}
}

func (g *GeminiCompleter) StreamComplete(ctx context.Context, prompt, systemInstruction string, reasoningBudget int) iter.Seq2[string, error] {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr[int32](int32(reasoningBudget)),
		},
	}
	return func(yield func(string, error) bool) {
		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), cfg) {
			if err != nil {
				yield("", err)
				return
			}
			if text := responseText(resp); text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

// responseText concatenates the answer parts of the first candidate,
// skipping thought summaries.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// OllamaCompleter streams from a local Ollama model through langchaingo.
// The reasoning budget does not apply and is ignored.
type OllamaCompleter struct {
	model llms.Model
}

// NewOllamaCompleter wraps any langchaingo model; in production this is
// the llms/ollama client.
func NewOllamaCompleter(model llms.Model) *OllamaCompleter {
	return &OllamaCompleter{model: model}
}

func (o *OllamaCompleter) StreamComplete(ctx context.Context, prompt, systemInstruction string, _ int) iter.Seq2[string, error] {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemInstruction),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		fragments := make(chan string)
		done := make(chan error, 1)
		go func() {
			defer close(fragments)
			_, err := o.model.GenerateContent(ctx, messages,
				llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
					select {
					case fragments <- string(chunk):
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				}),
			)
			done <- err
		}()

		for f := range fragments {
			if !yield(f, nil) {
				cancel()
				for range fragments {
				}
				return
			}
		}
		if err := <-done; err != nil {
			yield("", err)
		}
	}
}
