package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// QueueReason is why a memory was queued for consolidation.
type QueueReason string

const (
	ReasonStale              QueueReason = "stale"
	ReasonPromotable         QueueReason = "promotable"
	ReasonDuplicateCandidate QueueReason = "duplicate-candidate"
)

// QueueStatus is the processing state of a queue item.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueDone    QueueStatus = "done"
	QueueFailed  QueueStatus = "failed"
)

// Actions recorded on processed queue items.
const (
	ActionPromoted = "promoted"
	ActionArchived = "archived"
	ActionMerged   = "merged"
	ActionSkipped  = "skipped"
)

var reasonPriority = map[QueueReason]int{
	ReasonPromotable:         3,
	ReasonDuplicateCandidate: 2,
	ReasonStale:              1,
}

// QueueItem is one unit of consolidation work, kept after processing for
// audit.
type QueueItem struct {
	ID       string      `json:"id"`
	MemoryID string      `json:"memory_id"`
	// PairID is the other record of a duplicate candidate.
	PairID   string      `json:"pair_id,omitempty"`
	Reason   QueueReason `json:"reason"`
	Priority int         `json:"priority"`
	Status   QueueStatus `json:"status"`

	Action   string `json:"action,omitempty"`
	ResultID string `json:"result_id,omitempty"`
	Error    string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition describes the outcome of one processed queue item.
type Transition struct {
	ItemID   string      `json:"item_id"`
	MemoryID string      `json:"memory_id"`
	Reason   QueueReason `json:"reason"`
	Action   string      `json:"action,omitempty"`
	ResultID string      `json:"result_id,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// ConsolidationSummary reports one consolidation pass.
type ConsolidationSummary struct {
	Scanned  int `json:"scanned"`
	Enqueued int `json:"enqueued"`
	Promoted int `json:"promoted"`
	Archived int `json:"archived"`
	Merged   int `json:"merged"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`

	Transitions []Transition `json:"transitions"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
}

// ConsolidationConfig tunes the consolidation pass.
type ConsolidationConfig struct {
	// ArchiveThreshold is the strength below which a memory is archived.
	ArchiveThreshold float64
	// MergeThreshold is the cosine similarity at or above which two
	// memories in the same scope are merged.
	MergeThreshold float64
	// BatchSize caps the queue items processed per pass.
	BatchSize int
}

// DefaultConsolidationConfig returns conservative defaults.
func DefaultConsolidationConfig() ConsolidationConfig {
	return ConsolidationConfig{ArchiveThreshold: 0.05, MergeThreshold: 0.92, BatchSize: 500}
}

// ConsolidationEngine runs the promote/archive/merge state machine.
type ConsolidationEngine struct {
	store    Store
	index    Index
	decay    *DecayModel
	registry *ScopeRegistry
	cfg      ConsolidationConfig
	logger   hubLogger
	now      func() time.Time
	newID    func() string
}

// NewConsolidationEngine creates an engine.
func NewConsolidationEngine(store Store, index Index, decay *DecayModel, registry *ScopeRegistry, cfg ConsolidationConfig, logger hubLogger) *ConsolidationEngine {
	def := DefaultConsolidationConfig()
	if cfg.ArchiveThreshold <= 0 {
		cfg.ArchiveThreshold = def.ArchiveThreshold
	}
	if cfg.MergeThreshold <= 0 || cfg.MergeThreshold > 1 {
		cfg.MergeThreshold = def.MergeThreshold
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &ConsolidationEngine{
		store:    store,
		index:    index,
		decay:    decay,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// RunPass scans active memories, queues work and processes pending items.
// A failing item is marked failed and the pass continues.
func (c *ConsolidationEngine) RunPass(ctx context.Context) (*ConsolidationSummary, error) {
	summary := &ConsolidationSummary{StartedAt: c.now()}

	enqueued, scanned, err := c.scan(ctx)
	if err != nil {
		return nil, err
	}
	summary.Scanned = scanned
	summary.Enqueued = enqueued

	items, err := c.store.ListQueue(ctx, QueuePending, 0)
	if err != nil {
		return nil, fmt.Errorf("list consolidation queue: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].ID < items[j].ID
	})
	if len(items) > c.cfg.BatchSize {
		items = items[:c.cfg.BatchSize]
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = c.now()
			return summary, err
		}
		action, resultID, perr := c.process(ctx, item)
		item.UpdatedAt = c.now()
		t := Transition{ItemID: item.ID, MemoryID: item.MemoryID, Reason: item.Reason}
		if perr != nil {
			item.Status = QueueFailed
			item.Error = perr.Error()
			t.Error = item.Error
			summary.Failed++
			c.logger.Warn("Consolidation item failed", "item_id", item.ID, "memory_id", item.MemoryID, "reason", item.Reason, "error", perr)
		} else {
			item.Status = QueueDone
			item.Action = action
			item.ResultID = resultID
			t.Action = action
			t.ResultID = resultID
			switch action {
			case ActionPromoted:
				summary.Promoted++
			case ActionArchived:
				summary.Archived++
			case ActionMerged:
				summary.Merged++
			default:
				summary.Skipped++
			}
		}
		if err := c.store.PutQueueItem(ctx, item); err != nil {
			c.logger.Error("Failed to record consolidation item", "item_id", item.ID, "error", err)
		}
		summary.Transitions = append(summary.Transitions, t)
	}

	summary.FinishedAt = c.now()
	return summary, nil
}

// scan queues promotable, stale and duplicate-candidate memories that are
// not already pending.
func (c *ConsolidationEngine) scan(ctx context.Context) (int, int, error) {
	active, err := c.store.ListMemories(ctx, Filter{Status: StatusActive})
	if err != nil {
		return 0, 0, fmt.Errorf("list active memories: %w", err)
	}
	pending, err := c.store.ListQueue(ctx, QueuePending, 0)
	if err != nil {
		return 0, 0, fmt.Errorf("list consolidation queue: %w", err)
	}
	queued := make(map[string]struct{}, len(pending))
	for _, item := range pending {
		queued[string(item.Reason)+"/"+item.MemoryID] = struct{}{}
	}

	now := c.now()
	enqueued := 0
	enqueue := func(m *Memory, pair string, reason QueueReason) error {
		if _, ok := queued[string(reason)+"/"+m.ID]; ok {
			return nil
		}
		item := &QueueItem{
			ID:        NewLogID(),
			MemoryID:  m.ID,
			PairID:    pair,
			Reason:    reason,
			Priority:  reasonPriority[reason],
			Status:    QueuePending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := c.store.PutQueueItem(ctx, item); err != nil {
			return fmt.Errorf("enqueue %s for %s: %w", reason, m.ID, err)
		}
		queued[string(reason)+"/"+m.ID] = struct{}{}
		enqueued++
		return nil
	}

	for _, m := range active {
		if _, ok := c.registry.Promotable(m); ok {
			if err := enqueue(m, "", ReasonPromotable); err != nil {
				return enqueued, len(active), err
			}
			continue
		}
		if c.decay.Strength(m.Importance, m.Type, m.LastAccessedAt, now) < c.cfg.ArchiveThreshold {
			if err := enqueue(m, "", ReasonStale); err != nil {
				return enqueued, len(active), err
			}
		}
	}

	for _, pair := range c.duplicatePairs(active) {
		if err := enqueue(pair[0], pair[1].ID, ReasonDuplicateCandidate); err != nil {
			return enqueued, len(active), err
		}
	}
	return enqueued, len(active), nil
}

// duplicatePairs pairs memories in the same scope owner whose vectors are
// at least MergeThreshold similar. Each memory joins at most one pair.
func (c *ConsolidationEngine) duplicatePairs(active []*Memory) [][2]*Memory {
	groups := make(map[ScopeKey][]*Memory)
	for _, m := range active {
		if len(m.Vector) > 0 {
			groups[m.Key()] = append(groups[m.Key()], m)
		}
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var pairs [][2]*Memory
	for _, k := range keys {
		group := groups[ScopeKey(k)]
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		paired := make(map[string]bool)
		for i := 0; i < len(group); i++ {
			if paired[group[i].ID] {
				continue
			}
			for j := i + 1; j < len(group); j++ {
				if paired[group[j].ID] {
					continue
				}
				if Cosine(group[i].Vector, group[j].Vector) >= c.cfg.MergeThreshold {
					pairs = append(pairs, [2]*Memory{group[i], group[j]})
					paired[group[i].ID] = true
					paired[group[j].ID] = true
					break
				}
			}
		}
	}
	return pairs
}

func (c *ConsolidationEngine) process(ctx context.Context, item *QueueItem) (string, string, error) {
	m, err := c.store.GetMemory(ctx, item.MemoryID)
	if errors.Is(err, ErrNotFound) {
		return ActionSkipped, "", nil
	}
	if err != nil {
		return "", "", err
	}
	if m.Status != StatusActive {
		return ActionSkipped, "", nil
	}
	switch item.Reason {
	case ReasonPromotable:
		return c.promote(ctx, m)
	case ReasonStale:
		return c.archive(ctx, m)
	case ReasonDuplicateCandidate:
		return c.merge(ctx, m, item.PairID)
	}
	return "", "", fmt.Errorf("unknown consolidation reason %q", item.Reason)
}

func (c *ConsolidationEngine) promote(ctx context.Context, m *Memory) (string, string, error) {
	target, ok := c.registry.Promotable(m)
	if !ok {
		return ActionSkipped, "", nil
	}
	now := c.now()
	copied := m.Clone()
	copied.ID = c.newID()
	copied.Scope = target
	copied.PromotedFrom = m.ID
	copied.PromotedTo = ""
	copied.CreatedAt = now
	// Usage is counted per scope; the copy earns its own.
	copied.AccessCount = 0
	copied.AccessSessions = nil
	copied.LastAccessedAt = now
	if err := c.store.PutMemory(ctx, copied); err != nil {
		return "", "", fmt.Errorf("write promoted copy: %w", err)
	}
	if _, err := indexWithFallback(ctx, c.index, copied, c.logger); err != nil {
		c.logger.Warn("Failed to index promoted memory", "memory_id", copied.ID, "error", err)
	}

	_, err := c.store.UpdateMemory(ctx, m.ID, func(src *Memory) error {
		if src.Status != StatusActive || src.PromotedTo != "" {
			return fmt.Errorf("%w: source %s changed during promotion", ErrIllegalTransition, src.ID)
		}
		src.Status = StatusArchived
		src.PromotedTo = copied.ID
		return nil
	})
	if err != nil {
		c.rollbackCopy(ctx, copied.ID)
		return "", "", fmt.Errorf("retire promoted source: %w", err)
	}
	if err := c.index.Remove(ctx, m.ID); err != nil {
		c.logger.Warn("Failed to unindex promoted source", "memory_id", m.ID, "error", err)
	}
	c.logger.Info("Memory promoted", "memory_id", m.ID, "new_id", copied.ID, "from", m.Scope, "to", target)
	return ActionPromoted, copied.ID, nil
}

func (c *ConsolidationEngine) rollbackCopy(ctx context.Context, id string) {
	_, err := c.store.UpdateMemory(ctx, id, func(m *Memory) error {
		m.Status = StatusForgotten
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to retract promoted copy", "memory_id", id, "error", err)
	}
	if err := c.index.Remove(ctx, id); err != nil {
		c.logger.Warn("Failed to unindex retracted copy", "memory_id", id, "error", err)
	}
}

func (c *ConsolidationEngine) archive(ctx context.Context, m *Memory) (string, string, error) {
	if _, ok := c.registry.Promotable(m); ok {
		return ActionSkipped, "", nil
	}
	if c.decay.Strength(m.Importance, m.Type, m.LastAccessedAt, c.now()) >= c.cfg.ArchiveThreshold {
		return ActionSkipped, "", nil
	}
	_, err := c.store.UpdateMemory(ctx, m.ID, func(cur *Memory) error {
		return Transit(cur, StatusArchived)
	})
	if err != nil {
		return "", "", fmt.Errorf("archive: %w", err)
	}
	if err := c.index.Remove(ctx, m.ID); err != nil {
		c.logger.Warn("Failed to unindex archived memory", "memory_id", m.ID, "error", err)
	}
	return ActionArchived, "", nil
}

func (c *ConsolidationEngine) merge(ctx context.Context, a *Memory, pairID string) (string, string, error) {
	b, err := c.store.GetMemory(ctx, pairID)
	if errors.Is(err, ErrNotFound) {
		return ActionSkipped, "", nil
	}
	if err != nil {
		return "", "", err
	}
	if b.Status != StatusActive || a.Key() != b.Key() || len(a.Vector) == 0 || len(b.Vector) == 0 ||
		Cosine(a.Vector, b.Vector) < c.cfg.MergeThreshold {
		return ActionSkipped, "", nil
	}

	keep, drop := a, b
	if mergeKeepsSecond(a, b) {
		keep, drop = b, a
	}
	_, err = c.store.UpdateMemory(ctx, keep.ID, func(m *Memory) error {
		m.AddTags(drop.Tags...)
		m.Importance = math.Max(m.Importance, drop.Importance)
		return nil
	})
	if err != nil {
		return "", "", fmt.Errorf("update merge survivor: %w", err)
	}
	_, err = c.store.UpdateMemory(ctx, drop.ID, func(m *Memory) error {
		if err := Transit(m, StatusForgotten); err != nil {
			return err
		}
		m.MergedInto = keep.ID
		return nil
	})
	if err != nil {
		return "", "", fmt.Errorf("forget merged memory: %w", err)
	}
	if err := c.index.Remove(ctx, drop.ID); err != nil {
		c.logger.Warn("Failed to unindex merged memory", "memory_id", drop.ID, "error", err)
	}
	c.logger.Info("Memories merged", "kept", keep.ID, "forgotten", drop.ID)
	return ActionMerged, keep.ID, nil
}

// mergeKeepsSecond picks the survivor: higher importance, then more recent
// access, then smaller id.
func mergeKeepsSecond(a, b *Memory) bool {
	if a.Importance != b.Importance {
		return b.Importance > a.Importance
	}
	if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
		return b.LastAccessedAt.After(a.LastAccessedAt)
	}
	return b.ID < a.ID
}

// Transit moves m to status to, rejecting transitions outside the state
// machine. Archived memories return to active only through an explicit
// operator action.
func Transit(m *Memory, to Status) error {
	switch {
	case m.Status == to:
		return nil
	case m.Status == StatusActive && (to == StatusArchived || to == StatusForgotten):
	case m.Status == StatusArchived && (to == StatusActive || to == StatusForgotten):
	default:
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, m.Status, to)
	}
	m.Status = to
	return nil
}

// Cosine returns the cosine similarity of a and b, 0 when lengths differ or
// either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
