package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Rejection reasons of an evolution pass.
const (
	RejectInsufficientSamples = "insufficient_samples"
	RejectOutOfBounds         = "out_of_bounds"
	RejectNoChange            = "no_change"
)

// EvolutionConfig bounds the evolution loop.
type EvolutionConfig struct {
	// MinSamples is the number of logged queries a strategy or scope needs
	// before its effectiveness is trusted.
	MinSamples int
	// MinFeedback is the number of explicit verdicts per group needed to use
	// the feedback rate instead of the hit-rate proxy.
	MinFeedback int
	// MaxStep caps the change of any single weight per pass.
	MaxStep float64
	// Gain scales effectiveness differences into weight deltas.
	Gain float64

	MinWeight      float64
	MaxWeight      float64
	MinScopeWeight float64
	MaxScopeWeight float64

	// HistorySize bounds the retained prior parameter sets.
	HistorySize int
	// MaxEntries caps how many unconsumed log entries, oldest first, a pass
	// reads. Zero reads all.
	MaxEntries int
}

// DefaultEvolutionConfig returns the standard bounds.
func DefaultEvolutionConfig() EvolutionConfig {
	return EvolutionConfig{
		MinSamples:     20,
		MinFeedback:    10,
		MaxStep:        0.05,
		Gain:           0.5,
		MinWeight:      0.05,
		MaxWeight:      0.9,
		MinScopeWeight: 0.2,
		MaxScopeWeight: 2.0,
		HistorySize:    10,
		MaxEntries:     10000,
	}
}

// GroupStats accumulates outcomes for one strategy or scope.
type GroupStats struct {
	Queries  int `json:"queries"`
	NonEmpty int `json:"non_empty"`
	Feedback int `json:"feedback"`
	Useful   int `json:"useful"`
}

func (g GroupStats) feedbackRate() float64 {
	if g.Feedback == 0 {
		return 0
	}
	return float64(g.Useful) / float64(g.Feedback)
}

func (g GroupStats) hitRate() float64 {
	if g.Queries == 0 {
		return 0
	}
	return float64(g.NonEmpty) / float64(g.Queries)
}

// Observation is the output of the gather stage.
type Observation struct {
	Entries int    `json:"entries"`
	Cursor  string `json:"cursor"`
	// Full is set when the read hit MaxEntries, so waiting for more entries
	// cannot change this window's outcome.
	Full       bool                     `json:"full"`
	Strategies map[Strategy]*GroupStats `json:"strategies"`
	Scopes     map[Scope]*GroupStats    `json:"scopes"`
}

// Proposal is a set of weight deltas. Strategy deltas move weight between
// the lexical and vector components of the hybrid weights.
type Proposal struct {
	Retrieval RetrievalWeights  `json:"retrieval_delta"`
	Scopes    map[Scope]float64 `json:"scope_delta,omitempty"`

	// Effectiveness holds the ratios the deltas were derived from, keyed
	// "strategy:<name>" and "scope:<name>".
	Effectiveness map[string]float64 `json:"effectiveness,omitempty"`
}

func (p *Proposal) zero() bool {
	const eps = 1e-9
	if math.Abs(p.Retrieval.Lexical) > eps || math.Abs(p.Retrieval.Vector) > eps || math.Abs(p.Retrieval.Strength) > eps {
		return false
	}
	for _, d := range p.Scopes {
		if math.Abs(d) > eps {
			return false
		}
	}
	return true
}

// EvolutionResult reports one evolution pass. A rejected proposal is a
// normal outcome, not an error.
type EvolutionResult struct {
	Accepted bool      `json:"accepted"`
	Reason   string    `json:"reason,omitempty"`
	Samples  int       `json:"samples"`
	Proposal *Proposal `json:"proposal,omitempty"`
	// Dropped names the parts of the proposal that were out of bounds:
	// "retrieval" or "scope:<name>".
	Dropped  []string `json:"dropped,omitempty"`
	Previous Params   `json:"previous"`
	Current  Params    `json:"current"`
	Version  uint64    `json:"version"`
}

// EvolutionLoop tunes ranking weights from the retrieval log. It is the
// only writer of EvolutionState.
type EvolutionLoop struct {
	store  Store
	state  *StateStore
	gate   WriterGate
	cfg    EvolutionConfig
	logger hubLogger
	now    func() time.Time
	mu     sync.Mutex
}

// NewEvolutionLoop creates a loop. gate may be nil for a single process.
func NewEvolutionLoop(store Store, state *StateStore, gate WriterGate, cfg EvolutionConfig, logger hubLogger) *EvolutionLoop {
	def := DefaultEvolutionConfig()
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.MinFeedback <= 0 {
		cfg.MinFeedback = def.MinFeedback
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = def.MaxStep
	}
	if cfg.Gain <= 0 {
		cfg.Gain = def.Gain
	}
	if cfg.MinWeight <= 0 || cfg.MaxWeight <= cfg.MinWeight || cfg.MaxWeight > 1 {
		cfg.MinWeight, cfg.MaxWeight = def.MinWeight, def.MaxWeight
	}
	if cfg.MinScopeWeight <= 0 || cfg.MaxScopeWeight <= cfg.MinScopeWeight {
		cfg.MinScopeWeight, cfg.MaxScopeWeight = def.MinScopeWeight, def.MaxScopeWeight
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &EvolutionLoop{store: store, state: state, gate: gate, cfg: cfg, logger: logger, now: time.Now}
}

// RunPass runs gather, propose, clamp, validate and commit.
func (l *EvolutionLoop) RunPass(ctx context.Context) (*EvolutionResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.gate != nil {
		release, err := l.gate.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire evolution gate: %w", err)
		}
		defer release()
		// Another process may have committed since this one last looked.
		if err := l.state.Load(ctx); err != nil {
			return nil, err
		}
	}

	cur := l.state.Snapshot()
	result := &EvolutionResult{Previous: cur.Params, Current: cur.Params, Version: cur.Version}

	obs, err := l.gather(ctx, cur)
	if err != nil {
		return nil, err
	}
	result.Samples = obs.Entries

	proposal, ok := l.propose(obs)
	if !ok {
		result.Reason = RejectInsufficientSamples
		// Below the sample minimum the entries stay unconsumed and count
		// again next pass, unless the window is already full.
		if obs.Full {
			if err := l.consume(ctx, cur, obs.Cursor, result); err != nil {
				return nil, err
			}
		}
		return result, nil
	}
	proposal = l.clamp(proposal)
	result.Proposal = proposal

	next, dropped, reason := l.validate(cur.Params, proposal)
	result.Dropped = dropped
	if reason != "" {
		result.Reason = reason
		if err := l.consume(ctx, cur, obs.Cursor, result); err != nil {
			return nil, err
		}
		l.logger.Debug("Evolution proposal rejected", "reason", reason, "dropped", dropped, "samples", obs.Entries)
		return result, nil
	}

	committed, err := l.commit(ctx, cur, next, obs.Cursor, "evolution")
	if err != nil {
		return nil, err
	}
	result.Accepted = true
	result.Current = committed.Params
	result.Version = committed.Version
	l.logger.Info("Evolution proposal applied",
		"version", committed.Version,
		"lexical", committed.Params.Retrieval.Lexical,
		"vector", committed.Params.Retrieval.Vector,
		"strength", committed.Params.Retrieval.Strength,
		"dropped", dropped,
		"samples", obs.Entries)
	return result, nil
}

// consume moves the log cursor past evaluated entries without changing the
// parameters, so a rejected window is not read again.
func (l *EvolutionLoop) consume(ctx context.Context, cur *EvolutionState, cursor string, result *EvolutionResult) error {
	if cursor == cur.LogCursor {
		return nil
	}
	next := cur.advance(cursor, l.now())
	if err := l.state.CompareAndSwap(ctx, cur.Version, next); err != nil {
		return fmt.Errorf("advance evolution cursor: %w", err)
	}
	result.Version = next.Version
	return nil
}

// gather reads unconsumed log entries and accumulates per-group outcomes.
func (l *EvolutionLoop) gather(ctx context.Context, cur *EvolutionState) (*Observation, error) {
	entries, err := l.store.ListLog(ctx, cur.LogCursor, l.cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("read retrieval log: %w", err)
	}
	obs := &Observation{
		Entries:    len(entries),
		Cursor:     cur.LogCursor,
		Full:       l.cfg.MaxEntries > 0 && len(entries) >= l.cfg.MaxEntries,
		Strategies: make(map[Strategy]*GroupStats),
		Scopes:     make(map[Scope]*GroupStats),
	}
	if len(entries) > 0 {
		obs.Cursor = entries[len(entries)-1].ID
	}

	group := func(m map[Strategy]*GroupStats, k Strategy) *GroupStats {
		if m[k] == nil {
			m[k] = &GroupStats{}
		}
		return m[k]
	}
	scopeGroup := func(k Scope) *GroupStats {
		if obs.Scopes[k] == nil {
			obs.Scopes[k] = &GroupStats{}
		}
		return obs.Scopes[k]
	}

	for _, e := range entries {
		useful, hasVerdict := entryVerdict(e)
		g := group(obs.Strategies, e.Strategy)
		g.Queries++
		if e.Count > 0 {
			g.NonEmpty++
		}
		if hasVerdict {
			g.Feedback++
			if useful {
				g.Useful++
			}
		}

		for _, s := range e.Scopes {
			sg := scopeGroup(s)
			sg.Queries++
			returned := false
			for _, r := range e.Results {
				if r.Scope == s {
					returned = true
					break
				}
			}
			if returned {
				sg.NonEmpty++
			}
			if !hasVerdict {
				continue
			}
			sg.Feedback++
			if !useful {
				continue
			}
			// A useful verdict with used ids credits only the scopes those
			// ids came from.
			if len(e.UsedIDs) > 0 {
				for _, id := range e.UsedIDs {
					if scope, ok := e.Returned(id); ok && scope == s {
						sg.Useful++
						break
					}
				}
			} else if returned {
				sg.Useful++
			}
		}
	}
	return obs, nil
}

// entryVerdict derives a usefulness verdict from explicit feedback, or from
// used ids when no explicit verdict was given.
func entryVerdict(e *RetrievalLogEntry) (useful, ok bool) {
	if e.Useful != nil {
		return *e.Useful, true
	}
	if len(e.UsedIDs) > 0 {
		return true, true
	}
	return false, false
}

// effectiveness returns one ratio per qualifying group. All groups use the
// explicit feedback rate when each has MinFeedback verdicts, otherwise all
// use the hit-rate proxy, so ratios stay comparable.
func (l *EvolutionLoop) effectiveness(groups map[string]*GroupStats) map[string]float64 {
	qualified := make(map[string]*GroupStats)
	for k, g := range groups {
		if g.Queries >= l.cfg.MinSamples {
			qualified[k] = g
		}
	}
	explicit := len(qualified) > 0
	for _, g := range qualified {
		if g.Feedback < l.cfg.MinFeedback {
			explicit = false
		}
	}
	out := make(map[string]float64, len(qualified))
	for k, g := range qualified {
		if explicit {
			out[k] = g.feedbackRate()
		} else {
			out[k] = g.hitRate()
		}
	}
	return out
}

// propose turns effectiveness differences into raw deltas. It reports false
// when no group has enough samples.
func (l *EvolutionLoop) propose(obs *Observation) (*Proposal, bool) {
	p := &Proposal{Scopes: make(map[Scope]float64), Effectiveness: make(map[string]float64)}
	found := false

	strategies := make(map[string]*GroupStats, len(obs.Strategies))
	for s, g := range obs.Strategies {
		strategies[string(s)] = g
	}
	se := l.effectiveness(strategies)
	for k, v := range se {
		p.Effectiveness["strategy:"+k] = v
	}
	hybrid, okH := se[string(StrategyHybrid)]
	lexical, okL := se[string(StrategyLexical)]
	if okH && okL {
		d := l.cfg.Gain * (hybrid - lexical)
		p.Retrieval.Vector = d
		p.Retrieval.Lexical = -d
		found = true
	}

	scopes := make(map[string]*GroupStats, len(obs.Scopes))
	for s, g := range obs.Scopes {
		scopes[string(s)] = g
	}
	ce := l.effectiveness(scopes)
	for k, v := range ce {
		p.Effectiveness["scope:"+k] = v
	}
	if len(ce) >= 2 {
		keys := make([]string, 0, len(ce))
		for k := range ce {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		mean := 0.0
		for _, k := range keys {
			mean += ce[k]
		}
		mean /= float64(len(keys))
		for _, k := range keys {
			p.Scopes[Scope(k)] = l.cfg.Gain * (ce[k] - mean)
		}
		found = true
	}
	return p, found
}

// clamp limits every delta to ±MaxStep.
func (l *EvolutionLoop) clamp(p *Proposal) *Proposal {
	c := func(v float64) float64 { return math.Max(-l.cfg.MaxStep, math.Min(l.cfg.MaxStep, v)) }
	out := &Proposal{
		Retrieval: RetrievalWeights{
			Lexical:  c(p.Retrieval.Lexical),
			Vector:   c(p.Retrieval.Vector),
			Strength: c(p.Retrieval.Strength),
		},
		Scopes:        make(map[Scope]float64, len(p.Scopes)),
		Effectiveness: p.Effectiveness,
	}
	for s, d := range p.Scopes {
		out.Scopes[s] = c(d)
	}
	return out
}

// validate applies the deltas and checks the bounds. The retrieval part and
// each scope delta are checked on their own; a part that would leave its
// bounds is dropped and the rest still applies. It returns the new
// parameters, the dropped parts, and a rejection reason when nothing
// applies.
func (l *EvolutionLoop) validate(cur Params, p *Proposal) (Params, []string, string) {
	if p.zero() {
		return cur, nil, RejectNoChange
	}
	const eps = 1e-9
	next := cur.clone()
	var dropped []string
	applied := false

	d := p.Retrieval
	if math.Abs(d.Lexical) > eps || math.Abs(d.Vector) > eps || math.Abs(d.Strength) > eps {
		r := RetrievalWeights{
			Lexical:  cur.Retrieval.Lexical + d.Lexical,
			Vector:   cur.Retrieval.Vector + d.Vector,
			Strength: cur.Retrieval.Strength + d.Strength,
		}.Normalize()
		if l.retrievalInBounds(r) {
			next.Retrieval = r
			applied = true
		} else {
			dropped = append(dropped, "retrieval")
		}
	}

	scopes := make([]string, 0, len(p.Scopes))
	for s := range p.Scopes {
		scopes = append(scopes, string(s))
	}
	sort.Strings(scopes)
	for _, name := range scopes {
		s := Scope(name)
		delta := p.Scopes[s]
		if math.Abs(delta) <= eps {
			continue
		}
		w := next.ScopeWeight(s) + delta
		if w < l.cfg.MinScopeWeight || w > l.cfg.MaxScopeWeight {
			dropped = append(dropped, "scope:"+name)
			continue
		}
		next.Scopes[s] = w
		applied = true
	}

	if !applied {
		return cur, dropped, RejectOutOfBounds
	}
	if err := next.Validate(); err != nil {
		return cur, dropped, RejectOutOfBounds
	}
	return next, dropped, ""
}

func (l *EvolutionLoop) retrievalInBounds(r RetrievalWeights) bool {
	for _, w := range []float64{r.Lexical, r.Vector, r.Strength} {
		if w < l.cfg.MinWeight-weightTolerance || w > l.cfg.MaxWeight+weightTolerance {
			return false
		}
	}
	return true
}

func (l *EvolutionLoop) commit(ctx context.Context, cur *EvolutionState, params Params, cursor, reason string) (*EvolutionState, error) {
	next := cur.next(params, cursor, reason, l.now(), l.cfg.HistorySize)
	if err := l.state.CompareAndSwap(ctx, cur.Version, next); err != nil {
		return nil, fmt.Errorf("commit evolution state: %w", err)
	}
	return next, nil
}

// Rollback restores the most recent prior parameter set as a new version.
func (l *EvolutionLoop) Rollback(ctx context.Context) (*EvolutionState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.gate != nil {
		release, err := l.gate.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire evolution gate: %w", err)
		}
		defer release()
		if err := l.state.Load(ctx); err != nil {
			return nil, err
		}
	}

	cur := l.state.Snapshot()
	if len(cur.History) == 0 {
		return nil, ErrNoHistory
	}
	restored := cur.History[0]
	if err := restored.Params.Validate(); err != nil {
		return nil, err
	}
	trimmed := *cur
	trimmed.History = cur.History[1:]
	next := trimmed.next(restored.Params, cur.LogCursor, "rollback", l.now(), l.cfg.HistorySize)
	if err := l.state.CompareAndSwap(ctx, cur.Version, next); err != nil {
		return nil, fmt.Errorf("commit rollback: %w", err)
	}
	l.logger.Info("Evolution state rolled back", "version", next.Version, "restored_version", restored.Version)
	return next, nil
}
