package models

// OllamaEmbedRequest is the body sent to Ollama's /api/embeddings endpoint.
type OllamaEmbedRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

// OllamaEmbedResponse carries a single embedding vector, or an error message
// when the model rejected the input.
type OllamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}
