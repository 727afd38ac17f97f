package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/goclaw/mnemo/config"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MetricsRecorder receives memory subsystem measurements.
type MetricsRecorder interface {
	RecordRetrieval(strategy string, scopes, results int, duration time.Duration, err error)
	RecordConsolidation(promoted, archived, merged, skipped, failed int, duration time.Duration)
	RecordEvolution(accepted bool, reason string)
	SetWeights(lexical, vector, strength float64, scopes map[string]float64)
	RecordMemoryWrite(operation string)
}

// EventPublisher receives lifecycle events for subscribers such as the
// websocket stream.
type EventPublisher interface {
	Publish(eventType string, payload any)
}

type nopMetrics struct{}

func (nopMetrics) RecordRetrieval(string, int, int, time.Duration, error)     {}
func (nopMetrics) RecordConsolidation(int, int, int, int, int, time.Duration) {}
func (nopMetrics) RecordEvolution(bool, string)                               {}
func (nopMetrics) SetWeights(float64, float64, float64, map[string]float64)   {}
func (nopMetrics) RecordMemoryWrite(string)                                   {}

type nopEvents struct{}

func (nopEvents) Publish(string, any) {}

// Event types published by the hub.
const (
	EventMemoryCreated         = "memory.created"
	EventMemoryForgotten       = "memory.forgotten"
	EventConsolidationComplete = "consolidation.completed"
	EventEvolutionApplied      = "evolution.applied"
	EventEvolutionRejected     = "evolution.rejected"
	EventEvolutionRolledBack   = "evolution.rolled_back"
)

// Option configures a Hub.
type Option func(*Hub)

// WithEmbedder sets the embedding provider. Without one, retrieval is
// lexical-only.
func WithEmbedder(e Embedder) Option {
	return func(h *Hub) {
		if e != nil {
			h.embedder = e
		}
	}
}

// WithWriterGate serialises evolution commits across processes.
func WithWriterGate(g WriterGate) Option {
	return func(h *Hub) {
		if g != nil {
			h.gate = g
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithEvents sets the event publisher.
func WithEvents(p EventPublisher) Option {
	return func(h *Hub) {
		if p != nil {
			h.events = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l hubLogger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// components is the set of engines built from one MemoryConfig. It is
// swapped whole on reconfiguration.
type components struct {
	cfg           config.MemoryConfig
	decay         *DecayModel
	registry      *ScopeRegistry
	retrieval     *RetrievalEngine
	consolidation *ConsolidationEngine
	evolution     *EvolutionLoop
}

// Hub wires the memory components together and exposes the memory
// operations.
type Hub struct {
	mu   sync.RWMutex
	comp *components

	store    Store
	index    Index
	embedder Embedder
	state    *StateStore
	gate     WriterGate
	metrics  MetricsRecorder
	events   EventPublisher
	logger   hubLogger
	tracer   trace.Tracer
	now      func() time.Time

	// passMu keeps consolidation passes from overlapping.
	passMu sync.Mutex

	loopMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewHub creates a hub over store and index.
func NewHub(cfg *config.MemoryConfig, store Store, index Index, opts ...Option) *Hub {
	h := &Hub{
		store:   store,
		index:   index,
		metrics: nopMetrics{},
		events:  nopEvents{},
		logger:  nopLogger{},
		tracer:  memoryTracer(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.state = NewStateStore(store, h.logger)
	h.comp = h.build(*cfg)
	return h
}

func (h *Hub) build(cfg config.MemoryConfig) *components {
	halfLives := make(map[MemoryType]time.Duration)
	for name, d := range cfg.Decay.HalfLives() {
		halfLives[MemoryType(name)] = d
	}
	decay := NewDecayModel(halfLives)
	registry := NewScopeRegistry(PromotionRules{
		MinImportance:       cfg.Scope.PromoteImportance,
		MinAccessCount:      cfg.Scope.PromoteAccessCount,
		MinDistinctSessions: cfg.Scope.PromoteSessions,
		MaxTrackedSessions:  cfg.Scope.MaxTrackedSessions,
	})

	retrieval := NewRetrievalEngine(h.index, h.store, h.embedder, decay, h.logger)
	retrieval.now = h.now
	if cfg.Retrieval.CandidateLimit > 0 {
		retrieval.candidateLimit = cfg.Retrieval.CandidateLimit
	}

	consolidation := NewConsolidationEngine(h.store, h.index, decay, registry, ConsolidationConfig{
		ArchiveThreshold: cfg.Consolidation.ArchiveThreshold,
		MergeThreshold:   cfg.Consolidation.MergeThreshold,
		BatchSize:        cfg.Consolidation.BatchSize,
	}, h.logger)
	consolidation.now = h.now

	evolution := NewEvolutionLoop(h.store, h.state, h.gate, EvolutionConfig{
		MinSamples:     cfg.Evolution.MinSamples,
		MinFeedback:    cfg.Evolution.MinFeedback,
		MaxStep:        cfg.Evolution.MaxStep,
		Gain:           cfg.Evolution.Gain,
		MinWeight:      cfg.Evolution.MinWeight,
		MaxWeight:      cfg.Evolution.MaxWeight,
		MinScopeWeight: cfg.Evolution.MinScopeWeight,
		MaxScopeWeight: cfg.Evolution.MaxScopeWeight,
		HistorySize:    cfg.Evolution.HistorySize,
		MaxEntries:     cfg.Evolution.MaxEntries,
	}, h.logger)
	evolution.now = h.now

	return &components{
		cfg:           cfg,
		decay:         decay,
		registry:      registry,
		retrieval:     retrieval,
		consolidation: consolidation,
		evolution:     evolution,
	}
}

func (h *Hub) current() *components {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.comp
}

// Reconfigure rebuilds the engines from cfg. In-flight calls finish with
// the components they started with.
func (h *Hub) Reconfigure(cfg *config.MemoryConfig) {
	comp := h.build(*cfg)
	h.mu.Lock()
	h.comp = comp
	h.mu.Unlock()
	h.logger.Info("Memory configuration applied")
}

// Open loads persisted state and rebuilds the index from the store.
func (h *Hub) Open(ctx context.Context) error {
	if err := h.state.Load(ctx); err != nil {
		return err
	}
	h.publishWeights(h.state.Snapshot().Params)

	active, err := h.store.ListMemories(ctx, Filter{Status: StatusActive})
	if err != nil {
		return fmt.Errorf("list memories for index rebuild: %w", err)
	}
	skipped := 0
	for _, m := range active {
		if _, err := indexWithFallback(ctx, h.index, m, h.logger); err != nil {
			h.logger.Warn("Skipping memory during index rebuild", "memory_id", m.ID, "error", err)
			skipped++
		}
	}
	h.logger.Info("Memory hub opened",
		"active_memories", len(active),
		"skipped", skipped,
		"state_version", h.state.Snapshot().Version)
	return nil
}

// indexWithFallback upserts m. When the index rejects m's vector, for
// example after the embedding model changed dimensions, m is indexed
// without it and dropped reports true.
func indexWithFallback(ctx context.Context, idx Index, m *Memory, logger hubLogger) (dropped bool, err error) {
	err = idx.Upsert(ctx, m)
	if err == nil || len(m.Vector) == 0 {
		return false, err
	}
	logger.Warn("Vector rejected by index, indexing memory lexically", "memory_id", m.ID, "error", err)
	lexical := m.Clone()
	lexical.Vector = nil
	if err := idx.Upsert(ctx, lexical); err != nil {
		return false, err
	}
	return true, nil
}

// Start runs scheduled consolidation and evolution passes until Stop.
// Intervals of zero disable the corresponding schedule.
func (h *Hub) Start(ctx context.Context) error {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()
	if h.started {
		return fmt.Errorf("memory hub already started")
	}

	cfg := h.current().cfg
	loopCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	h.started = true

	go func() {
		defer close(h.done)
		var consolidate, evolve <-chan time.Time
		if d := cfg.Consolidation.Interval; d > 0 {
			t := time.NewTicker(d)
			defer t.Stop()
			consolidate = t.C
		}
		if d := cfg.Evolution.Interval; d > 0 {
			t := time.NewTicker(d)
			defer t.Stop()
			evolve = t.C
		}
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-consolidate:
				if _, err := h.RunConsolidationPass(loopCtx); err != nil && loopCtx.Err() == nil {
					h.logger.Error("Scheduled consolidation failed", "error", err)
				}
			case <-evolve:
				if _, err := h.RunEvolutionPass(loopCtx); err != nil && loopCtx.Err() == nil {
					h.logger.Error("Scheduled evolution failed", "error", err)
				}
			}
		}
	}()

	h.logger.Info("Memory schedules started",
		"consolidation_interval", cfg.Consolidation.Interval,
		"evolution_interval", cfg.Evolution.Interval)
	return nil
}

// Stop halts the schedules and waits for a running pass to return.
func (h *Hub) Stop(ctx context.Context) error {
	h.loopMu.Lock()
	defer h.loopMu.Unlock()
	if !h.started {
		return nil
	}
	h.cancel()
	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	h.started = false
	return nil
}

// RememberRequest creates a memory.
type RememberRequest struct {
	Content    string     `json:"content"`
	Type       MemoryType `json:"memory_type"`
	Scope      Scope      `json:"scope"`
	Owners     Owners     `json:"owners"`
	Importance float64    `json:"importance"`
	Tags       []string   `json:"tags,omitempty"`
	Metadata   Metadata   `json:"metadata"`
}

// Remember validates, embeds, stores and indexes a new memory.
func (h *Hub) Remember(ctx context.Context, req RememberRequest) (*Memory, error) {
	ctx, span := h.tracer.Start(ctx, spanRemember)
	defer span.End()

	now := h.now()
	m := &Memory{
		ID:             uuid.New().String(),
		Content:        strings.TrimSpace(req.Content),
		Type:           req.Type,
		Scope:          req.Scope,
		Owners:         req.Owners,
		Importance:     req.Importance,
		CreatedAt:      now,
		LastAccessedAt: now,
		Status:         StatusActive,
		Metadata:       req.Metadata,
	}
	if m.Type == "" {
		m.Type = TypeEpisodic
	}
	if m.Scope == "" {
		m.Scope = ScopeSession
	}
	m.AddTags(req.Tags...)
	if err := m.Validate(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	if h.embedder != nil {
		vec, err := h.embedder.Embed(ctx, m.Content)
		switch {
		case err == nil:
			m.Vector = vec
		case errors.Is(err, ErrEmbeddingUnavailable):
		default:
			h.logger.Warn("Embedding failed, storing memory without vector", "error", err)
		}
	}

	// Index before storing so a failure leaves nothing behind to duplicate
	// on retry.
	dropped, err := indexWithFallback(ctx, h.index, m, h.logger)
	if err != nil {
		_ = h.index.Remove(ctx, m.ID)
		recordSpanError(span, err)
		return nil, &IndexUnavailableError{Key: m.Key(), Cause: err}
	}
	if dropped {
		m.Vector = nil
	}
	if err := h.store.PutMemory(ctx, m); err != nil {
		if rerr := h.index.Remove(ctx, m.ID); rerr != nil {
			h.logger.Warn("Failed to unindex unstored memory", "memory_id", m.ID, "error", rerr)
		}
		recordSpanError(span, err)
		return nil, fmt.Errorf("store memory: %w", err)
	}
	span.SetAttributes(attribute.String("memory.id", m.ID), attribute.String("memory.scope", string(m.Scope)))
	h.metrics.RecordMemoryWrite("remember")
	h.events.Publish(EventMemoryCreated, map[string]any{"id": m.ID, "scope": m.Scope, "memory_type": m.Type})
	h.logger.Debug("Memory stored", "memory_id", m.ID, "scope", m.Scope, "memory_type", m.Type)
	return m, nil
}

// Get returns a memory by id.
func (h *Hub) Get(ctx context.Context, id string) (*Memory, error) {
	return h.store.GetMemory(ctx, id)
}

// List returns memories matching filter.
func (h *Hub) List(ctx context.Context, filter Filter) ([]*Memory, error) {
	return h.store.ListMemories(ctx, filter)
}

// Forget soft-deletes a memory. Forgotten is terminal.
func (h *Hub) Forget(ctx context.Context, id string) (*Memory, error) {
	m, err := h.store.UpdateMemory(ctx, id, func(m *Memory) error {
		return Transit(m, StatusForgotten)
	})
	if err != nil {
		return nil, err
	}
	if err := h.index.Remove(ctx, id); err != nil {
		h.logger.Warn("Failed to unindex forgotten memory", "memory_id", id, "error", err)
	}
	h.metrics.RecordMemoryWrite("forget")
	h.events.Publish(EventMemoryForgotten, map[string]any{"id": id})
	return m, nil
}

// Reactivate returns an archived memory to active. It is the operator
// action that reverses archival.
func (h *Hub) Reactivate(ctx context.Context, id string) (*Memory, error) {
	m, err := h.store.UpdateMemory(ctx, id, func(m *Memory) error {
		if m.Status != StatusArchived || m.PromotedTo != "" {
			return fmt.Errorf("%w: only archived, unpromoted memories can be reactivated", ErrIllegalTransition)
		}
		return Transit(m, StatusActive)
	})
	if err != nil {
		return nil, err
	}
	if _, err := indexWithFallback(ctx, h.index, m, h.logger); err != nil {
		return nil, &IndexUnavailableError{Key: m.Key(), Cause: err}
	}
	h.metrics.RecordMemoryWrite("reactivate")
	return m, nil
}

// Tag adds tags to a memory. Existing tags are kept.
func (h *Hub) Tag(ctx context.Context, id string, tags ...string) (*Memory, error) {
	m, err := h.store.UpdateMemory(ctx, id, func(m *Memory) error {
		if m.Status == StatusForgotten {
			return fmt.Errorf("%w: memory is forgotten", ErrIllegalTransition)
		}
		m.AddTags(tags...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.metrics.RecordMemoryWrite("tag")
	return m, nil
}

// SetImportance explicitly updates a memory's importance.
func (h *Hub) SetImportance(ctx context.Context, id string, importance float64) (*Memory, error) {
	if math.IsNaN(importance) || importance < 0 || importance > 1 {
		return nil, fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidMemory, importance)
	}
	m, err := h.store.UpdateMemory(ctx, id, func(m *Memory) error {
		if m.Status == StatusForgotten {
			return fmt.Errorf("%w: memory is forgotten", ErrIllegalTransition)
		}
		m.Importance = importance
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.metrics.RecordMemoryWrite("importance")
	return m, nil
}

// Touch applies access strengthening to a memory used by sessionID.
func (h *Hub) Touch(ctx context.Context, id, sessionID string) (*Memory, error) {
	maxSessions := h.current().registry.Rules().MaxTrackedSessions
	now := h.now()
	return h.store.UpdateMemory(ctx, id, func(m *Memory) error {
		if m.Status != StatusActive {
			return fmt.Errorf("%w: memory is %s", ErrIllegalTransition, m.Status)
		}
		RecordAccess(m, sessionID, now, maxSessions)
		return nil
	})
}

// Strength returns the current strength of m.
func (h *Hub) Strength(m *Memory) float64 {
	s, err := h.current().decay.CheckedStrength(m, h.now())
	if err != nil {
		h.logger.Error("Strength invariant violated", "memory_id", m.ID, "error", err)
	}
	return s
}

// ComputeStrength loads a memory and returns its current strength.
func (h *Hub) ComputeStrength(ctx context.Context, id string) (float64, error) {
	m, err := h.store.GetMemory(ctx, id)
	if err != nil {
		return 0, err
	}
	return h.Strength(m), nil
}

// RetrieveRequest is a ranked retrieval across scopes.
type RetrieveRequest struct {
	Query string `json:"query"`

	// Scopes to search; empty means the whole chain.
	Scopes []Scope `json:"scopes,omitempty"`

	// Owners supplies the owner identifier for each scope. Scopes without
	// an owner are skipped.
	Owners Owners `json:"owners"`

	Strategy Strategy `json:"strategy,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

// RankedResult is one fused result.
type RankedResult struct {
	Memory *Memory `json:"memory"`
	Scope  Scope   `json:"scope"`

	// Score is the fused score used for ordering.
	Score float64 `json:"score"`

	// Composite is the best scope-weighted composite score across lists.
	Composite float64   `json:"composite"`
	Scores    SubScores `json:"sub_scores"`
}

// RetrieveResponse is the outcome of RetrieveAndRank.
type RetrieveResponse struct {
	Results      []RankedResult `json:"results"`
	Strategy     Strategy       `json:"strategy"`
	StateVersion uint64         `json:"state_version"`

	// LogID identifies the retrieval log entry for feedback.
	LogID string `json:"log_id,omitempty"`
}

// RetrieveAndRank scores the query in each scope and fuses the per-scope
// lists. One EvolutionState snapshot is used for the whole call.
func (h *Hub) RetrieveAndRank(ctx context.Context, req RetrieveRequest) (*RetrieveResponse, error) {
	ctx, span := h.tracer.Start(ctx, spanRetrieve)
	defer span.End()
	start := time.Now()

	comp := h.current()
	rcfg := comp.cfg.Retrieval

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = Strategy(rcfg.DefaultStrategy)
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidQuery, strategy)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = rcfg.DefaultLimit
	}
	if rcfg.MaxLimit > 0 && limit > rcfg.MaxLimit {
		limit = rcfg.MaxLimit
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = comp.registry.Chain()
	}
	var keys []ScopeKey
	seen := make(map[Scope]bool)
	for _, s := range scopes {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidQuery, s)
		}
		owner := req.Owners.For(s)
		if owner == "" || seen[s] {
			continue
		}
		seen[s] = true
		keys = append(keys, KeyFor(s, owner))
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no owner identifier for any requested scope", ErrInvalidQuery)
	}

	snapshot := h.state.Snapshot()
	lists, effective, err := comp.retrieval.Retrieve(ctx, query, keys, snapshot.Params, strategy, limit)
	if err != nil {
		recordSpanError(span, err)
		h.metrics.RecordRetrieval(string(strategy), len(keys), 0, time.Since(start), err)
		return nil, err
	}

	results := merge(lists, snapshot.Params, rcfg.Merge, rcfg.RRFK, limit)
	resp := &RetrieveResponse{Results: results, Strategy: effective, StateVersion: snapshot.Version}

	if rcfg.LogEnabled {
		entry := &RetrievalLogEntry{
			ID:        NewLogID(),
			CreatedAt: h.now(),
			SessionID: req.Owners.SessionID,
			Strategy:  effective,
			Count:     len(results),
		}
		for _, k := range keys {
			entry.Scopes = append(entry.Scopes, k.Scope())
		}
		for _, r := range results {
			entry.Results = append(entry.Results, LoggedResult{ID: r.Memory.ID, Scope: r.Scope})
		}
		if err := h.store.AppendLog(ctx, entry); err != nil {
			h.logger.Warn("Failed to append retrieval log", "error", err)
		} else {
			resp.LogID = entry.ID
		}
	}

	span.SetAttributes(
		attribute.String("retrieval.strategy", string(effective)),
		attribute.Int("retrieval.scopes", len(keys)),
		attribute.Int("retrieval.results", len(results)),
		attribute.Int64("retrieval.state_version", int64(snapshot.Version)),
	)
	h.metrics.RecordRetrieval(string(effective), len(keys), len(results), time.Since(start), nil)
	return resp, nil
}

// merge combines per-scope lists by reciprocal rank fusion with each
// list's contributions scaled by its scope weight, or by the scope-weighted
// composite score when mode is "score".
func merge(lists []ScopeResult, params Params, mode string, k float64, limit int) []RankedResult {
	best := make(map[string]RankedResult)
	ranked := make([]WeightedList, 0, len(lists))
	for _, l := range lists {
		rl := make([]Ranked, 0, len(l.Results))
		for _, r := range l.Results {
			rl = append(rl, Ranked{ID: r.Memory.ID, LastAccessedAt: r.Memory.LastAccessedAt})
			if cur, ok := best[r.Memory.ID]; !ok || r.Score > cur.Composite {
				best[r.Memory.ID] = RankedResult{Memory: r.Memory, Scope: l.Key.Scope(), Composite: r.Score, Scores: r.Scores}
			}
		}
		ranked = append(ranked, WeightedList{Items: rl, Weight: params.ScopeWeight(l.Key.Scope())})
	}

	var out []RankedResult
	if mode == "score" {
		out = make([]RankedResult, 0, len(best))
		for _, r := range best {
			r.Score = r.Composite
			out = append(out, r)
		}
		sortRanked(out)
	} else {
		for _, f := range FuseWeighted(ranked, k) {
			r := best[f.ID]
			r.Score = f.Score
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortRanked(r []RankedResult) {
	scored := make([]ScoredMemory, len(r))
	byID := make(map[string]RankedResult, len(r))
	for i, x := range r {
		scored[i] = ScoredMemory{Memory: x.Memory, Score: x.Score}
		byID[x.Memory.ID] = x
	}
	sortScored(scored)
	for i, s := range scored {
		r[i] = byID[s.Memory.ID]
	}
}

// FeedbackRequest attaches a verdict to a retrieval.
type FeedbackRequest struct {
	LogID     string   `json:"-"`
	Useful    *bool    `json:"useful,omitempty"`
	UsedIDs   []string `json:"used_ids,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
}

// Feedback records the caller's verdict on a retrieval once and applies
// access strengthening to the used memories that were in the result set.
func (h *Hub) Feedback(ctx context.Context, req FeedbackRequest) (*RetrievalLogEntry, error) {
	now := h.now()
	var used []string
	entry, err := h.store.UpdateLog(ctx, req.LogID, func(e *RetrievalLogEntry) error {
		if e.HasFeedback() {
			return ErrFeedbackRecorded
		}
		used = used[:0]
		for _, id := range req.UsedIDs {
			if _, ok := e.Returned(id); ok {
				used = append(used, id)
			}
		}
		e.Useful = req.Useful
		e.UsedIDs = append([]string(nil), used...)
		e.FeedbackAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	session := req.SessionID
	if session == "" {
		session = entry.SessionID
	}
	for _, id := range used {
		if _, err := h.Touch(ctx, id, session); err != nil {
			h.logger.Warn("Failed to record memory access", "memory_id", id, "error", err)
		}
	}
	return entry, nil
}

// RunConsolidationPass runs one consolidation pass. Passes never overlap.
func (h *Hub) RunConsolidationPass(ctx context.Context) (*ConsolidationSummary, error) {
	ctx, span := h.tracer.Start(ctx, spanConsolidate)
	defer span.End()

	h.passMu.Lock()
	defer h.passMu.Unlock()

	start := time.Now()
	summary, err := h.current().consolidation.RunPass(ctx)
	if summary != nil {
		h.metrics.RecordConsolidation(summary.Promoted, summary.Archived, summary.Merged, summary.Skipped, summary.Failed, time.Since(start))
		span.SetAttributes(
			attribute.Int("consolidation.scanned", summary.Scanned),
			attribute.Int("consolidation.failed", summary.Failed),
		)
		h.events.Publish(EventConsolidationComplete, summary)
		h.logger.Info("Consolidation pass finished",
			"scanned", summary.Scanned,
			"promoted", summary.Promoted,
			"archived", summary.Archived,
			"merged", summary.Merged,
			"failed", summary.Failed)
	}
	if err != nil {
		recordSpanError(span, err)
		return summary, err
	}
	return summary, nil
}

// RunEvolutionPass runs one evolution pass.
func (h *Hub) RunEvolutionPass(ctx context.Context) (*EvolutionResult, error) {
	ctx, span := h.tracer.Start(ctx, spanEvolve)
	defer span.End()

	result, err := h.current().evolution.RunPass(ctx)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("evolution.accepted", result.Accepted),
		attribute.String("evolution.reason", result.Reason),
		attribute.Int("evolution.samples", result.Samples),
	)
	h.metrics.RecordEvolution(result.Accepted, result.Reason)
	if result.Accepted {
		h.publishWeights(result.Current)
		h.events.Publish(EventEvolutionApplied, result)
	} else {
		h.events.Publish(EventEvolutionRejected, result)
	}
	return result, nil
}

// RollbackEvolution restores the previous ranking parameters.
func (h *Hub) RollbackEvolution(ctx context.Context) (*EvolutionState, error) {
	st, err := h.current().evolution.Rollback(ctx)
	if err != nil {
		return nil, err
	}
	h.publishWeights(st.Params)
	h.events.Publish(EventEvolutionRolledBack, map[string]any{"version": st.Version})
	return st, nil
}

// State returns the current EvolutionState snapshot.
func (h *Hub) State() *EvolutionState {
	return h.state.Snapshot()
}

// ListQueue returns consolidation queue items with the given status.
func (h *Hub) ListQueue(ctx context.Context, status QueueStatus, limit int) ([]*QueueItem, error) {
	return h.store.ListQueue(ctx, status, limit)
}

// Stats counts stored memories.
func (h *Hub) Stats(ctx context.Context) (*Stats, error) {
	all, err := h.store.ListMemories(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		ByStatus: make(map[Status]int),
		ByScope:  make(map[Scope]int),
		ByType:   make(map[MemoryType]int),
	}
	now := h.now()
	decay := h.current().decay
	var sum float64
	active := 0
	for _, m := range all {
		stats.Total++
		stats.ByStatus[m.Status]++
		stats.ByScope[m.Scope]++
		stats.ByType[m.Type]++
		if m.Status == StatusActive {
			sum += decay.Strength(m.Importance, m.Type, m.LastAccessedAt, now)
			active++
		}
	}
	if active > 0 {
		stats.AverageStrength = sum / float64(active)
	}
	return stats, nil
}

func (h *Hub) publishWeights(p Params) {
	scopes := make(map[string]float64, len(p.Scopes))
	for s, w := range p.Scopes {
		scopes[string(s)] = w
	}
	h.metrics.SetWeights(p.Retrieval.Lexical, p.Retrieval.Vector, p.Retrieval.Strength, scopes)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
