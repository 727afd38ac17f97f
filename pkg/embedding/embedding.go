// Package embedding provides the text embedding providers used for vector
// retrieval. Every provider failure is reported as
// memory.ErrEmbeddingUnavailable so retrieval degrades to lexical scoring.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/goclaw/mnemo/config"
	"github.com/goclaw/mnemo/pkg/memory"
)

// Provider is an embedder that can describe itself.
type Provider interface {
	memory.Embedder
	Name() string
	Dimensions() int
}

// Recorder receives one observation per embedding call.
type Recorder interface {
	RecordEmbedding(provider string, err error)
}

// New builds the provider selected by cfg. It returns nil, nil when
// embeddings are disabled.
func New(cfg config.EmbeddingConfig, rec Recorder) (Provider, error) {
	var p Provider
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "ollama":
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		p = NewOllama(cfg.URL, cfg.Model, cfg.Dimensions, timeout)
	case "hash":
		p = NewHash(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if rec != nil {
		p = Instrument(p, rec)
	}
	return p, nil
}

type instrumented struct {
	Provider
	rec Recorder
}

// Instrument reports every Embed call of p to rec.
func Instrument(p Provider, rec Recorder) Provider {
	return &instrumented{Provider: p, rec: rec}
}

func (i *instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := i.Provider.Embed(ctx, text)
	i.rec.RecordEmbedding(i.Provider.Name(), err)
	return vec, err
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
