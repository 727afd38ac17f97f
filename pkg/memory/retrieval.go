package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// Strategy selects how candidates are scored.
type Strategy string

const (
	// StrategyAuto uses hybrid scoring when a query embedding is available
	// and lexical-only scoring otherwise.
	StrategyAuto Strategy = "auto"
	// StrategyHybrid requests lexical, vector and strength scoring.
	StrategyHybrid Strategy = "hybrid"
	// StrategyLexical ignores vector similarity.
	StrategyLexical Strategy = "lexical"
	// StrategyFused runs hybrid and lexical scoring and fuses both lists.
	StrategyFused Strategy = "fused"
)

// Valid reports whether s is a recognised strategy hint.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyAuto, StrategyHybrid, StrategyLexical, StrategyFused:
		return true
	}
	return false
}

// SubScores are the inputs of the composite score for one candidate.
type SubScores struct {
	Lexical   float64 `json:"lexical"`
	Vector    float64 `json:"vector"`
	HasVector bool    `json:"has_vector"`
	Strength  float64 `json:"strength"`
}

// Composite combines sub-scores with the hybrid weights when a vector
// sub-score is present and with the lexical-only weights otherwise. The
// scope multiplier is not applied.
func (p Params) Composite(s SubScores) float64 {
	if s.HasVector {
		w := p.Retrieval
		return w.Lexical*s.Lexical + w.Vector*s.Vector + w.Strength*s.Strength
	}
	return p.Lexical.Lexical*s.Lexical + p.Lexical.Strength*s.Strength
}

// ScoredMemory is one ranked candidate.
type ScoredMemory struct {
	Memory *Memory
	Scores SubScores
	// Score is the composite multiplied by the scope weight.
	Score float64
}

// ScopeResult is the ranked list for one scope owner and strategy.
type ScopeResult struct {
	Key      ScopeKey
	Strategy Strategy
	Results  []ScoredMemory
}

// RetrievalEngine scores candidates from the index for each requested scope.
type RetrievalEngine struct {
	index    Index
	store    Store
	embedder Embedder
	decay    *DecayModel
	logger   hubLogger
	now      func() time.Time

	// candidateLimit bounds how many ids the index returns per sub-score.
	candidateLimit int
}

// NewRetrievalEngine creates an engine. embedder may be nil.
func NewRetrievalEngine(index Index, store Store, embedder Embedder, decay *DecayModel, logger hubLogger) *RetrievalEngine {
	if logger == nil {
		logger = nopLogger{}
	}
	return &RetrievalEngine{
		index:          index,
		store:          store,
		embedder:       embedder,
		decay:          decay,
		logger:         logger,
		now:            time.Now,
		candidateLimit: 100,
	}
}

// embed returns the query vector, or nil when no provider is configured or
// the provider is unavailable.
func (e *RetrievalEngine) embed(ctx context.Context, query string) []float32 {
	if e.embedder == nil {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if !errors.Is(err, ErrEmbeddingUnavailable) {
			e.logger.Warn("Query embedding failed, using lexical-only scoring", "error", err)
		}
		return nil
	}
	return vec
}

// Retrieve scores the query in every scope key under one parameter
// snapshot. It returns one list per key and strategy, and the effective
// strategy.
func (e *RetrievalEngine) Retrieve(ctx context.Context, query string, keys []ScopeKey, params Params, strategy Strategy, limit int) ([]ScopeResult, Strategy, error) {
	if limit <= 0 {
		limit = 10
	}
	var vec []float32
	if strategy != StrategyLexical {
		vec = e.embed(ctx, query)
	}
	effective := strategy
	switch {
	case vec == nil:
		effective = StrategyLexical
	case strategy == StrategyAuto:
		effective = StrategyHybrid
	}

	now := e.now()
	results := make([][]ScopeResult, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			lists, err := e.retrieveScope(gctx, query, vec, key, params, effective, limit, now)
			if err != nil {
				return err
			}
			results[i] = lists
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, effective, err
	}

	var out []ScopeResult
	for _, r := range results {
		out = append(out, r...)
	}
	return out, effective, nil
}

func (e *RetrievalEngine) retrieveScope(ctx context.Context, query string, vec []float32, key ScopeKey, params Params, strategy Strategy, limit int, now time.Time) ([]ScopeResult, error) {
	lexical, err := e.index.LexicalScores(ctx, key, query, e.candidateLimit)
	if err != nil {
		return nil, &IndexUnavailableError{Key: key, Cause: err}
	}
	var vector map[string]float64
	if vec != nil {
		vector, err = e.index.VectorScores(ctx, key, vec, e.candidateLimit)
		if err != nil {
			return nil, &IndexUnavailableError{Key: key, Cause: err}
		}
	}

	lexical = normalizeLexical(lexical)
	ids := make([]string, 0, len(lexical)+len(vector))
	for id := range lexical {
		ids = append(ids, id)
	}
	for id := range vector {
		if _, ok := lexical[id]; !ok {
			ids = append(ids, id)
		}
	}

	candidates := make(map[string]*Memory, len(ids))
	for _, id := range ids {
		m, err := e.store.GetMemory(ctx, id)
		if errors.Is(err, ErrNotFound) {
			e.logger.Debug("Index returned unknown memory", "memory_id", id, "scope", key)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load candidate %s: %w", id, err)
		}
		// The index filters by status and scope; check again against the record.
		if m.Status != StatusActive || m.Key() != key {
			continue
		}
		candidates[id] = m
	}

	scoreAll := func(useVector bool) []ScoredMemory {
		scored := make([]ScoredMemory, 0, len(candidates))
		for id, m := range candidates {
			sub := SubScores{Lexical: lexical[id]}
			if v, ok := vector[id]; ok && useVector {
				sub.Vector = clamp01(v)
				sub.HasVector = true
			}
			if !useVector && sub.Lexical == 0 {
				// Vector-only matches carry no lexical-only relevance.
				continue
			}
			strength, err := e.decay.CheckedStrength(m, now)
			if err != nil {
				e.logger.Error("Strength invariant violated", "memory_id", id, "error", err)
			}
			sub.Strength = strength
			scored = append(scored, ScoredMemory{
				Memory: m,
				Scores: sub,
				Score:  params.Composite(sub) * params.ScopeWeight(key.Scope()),
			})
		}
		sortScored(scored)
		if len(scored) > limit {
			scored = scored[:limit]
		}
		return scored
	}

	switch strategy {
	case StrategyFused:
		return []ScopeResult{
			{Key: key, Strategy: StrategyHybrid, Results: scoreAll(true)},
			{Key: key, Strategy: StrategyLexical, Results: scoreAll(false)},
		}, nil
	case StrategyLexical:
		return []ScopeResult{{Key: key, Strategy: StrategyLexical, Results: scoreAll(false)}}, nil
	default:
		return []ScopeResult{{Key: key, Strategy: StrategyHybrid, Results: scoreAll(true)}}, nil
	}
}

// normalizeLexical rescales raw lexical scores into [0,1] by the scope's
// best score.
func normalizeLexical(raw map[string]float64) map[string]float64 {
	maxScore := 0.0
	for _, s := range raw {
		if s > maxScore && !math.IsInf(s, 1) {
			maxScore = s
		}
	}
	out := make(map[string]float64, len(raw))
	for id, s := range raw {
		if maxScore <= 0 || math.IsNaN(s) || s <= 0 {
			out[id] = 0
			continue
		}
		out[id] = clamp01(s / maxScore)
	}
	return out
}

func sortScored(s []ScoredMemory) {
	sort.Slice(s, func(i, j int) bool {
		return rankBefore(s[i].Score, s[j].Score,
			s[i].Memory.LastAccessedAt, s[j].Memory.LastAccessedAt,
			s[i].Memory.ID, s[j].Memory.ID)
	})
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
