package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/goclaw/mnemo/pkg/memory"
)

// Ollama calls a local Ollama server's embed endpoint.
type Ollama struct {
	url    string
	model  string
	dims   int
	client *http.Client
}

// NewOllama creates an Ollama provider. A dims of zero accepts whatever
// length the model returns.
func NewOllama(url, model string, dims int, timeout time.Duration) *Ollama {
	return &Ollama{
		url:    strings.TrimRight(url, "/"),
		model:  model,
		dims:   dims,
		client: &http.Client{Timeout: timeout},
	}
}

func (o *Ollama) Name() string    { return "ollama" }
func (o *Ollama) Dimensions() int { return o.dims }

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding of text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: o.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", memory.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: ollama status %d: %s", memory.ErrEmbeddingUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode ollama response: %v", memory.ErrEmbeddingUnavailable, err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: ollama returned no embeddings", memory.ErrEmbeddingUnavailable)
	}
	vec := result.Embeddings[0]
	if o.dims > 0 && len(vec) != o.dims {
		return nil, fmt.Errorf("%w: ollama returned %d dimensions, want %d", memory.ErrEmbeddingUnavailable, len(vec), o.dims)
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: ollama returned non-finite values", memory.ErrEmbeddingUnavailable)
		}
	}
	return vec, nil
}

// Probe reports whether the server answers an embed request.
func (o *Ollama) Probe(ctx context.Context) error {
	_, err := o.Embed(ctx, "probe")
	return err
}
