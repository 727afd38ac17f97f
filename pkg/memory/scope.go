package memory

// PromotionRules holds the thresholds for moving a memory up the scope chain.
type PromotionRules struct {
	// MinImportance and MinAccessCount gate session to project promotion.
	MinImportance  float64
	MinAccessCount int

	// MinDistinctSessions gates project to user promotion.
	MinDistinctSessions int

	// MaxTrackedSessions caps the per-memory session provenance set.
	MaxTrackedSessions int
}

// DefaultPromotionRules returns the standard thresholds.
func DefaultPromotionRules() PromotionRules {
	return PromotionRules{
		MinImportance:       0.5,
		MinAccessCount:      2,
		MinDistinctSessions: 3,
		MaxTrackedSessions:  16,
	}
}

// ScopeRegistry knows the scope chain and evaluates promotion predicates.
// It never mutates records.
type ScopeRegistry struct {
	rules PromotionRules
}

// NewScopeRegistry creates a registry. Zero fields in rules take defaults.
func NewScopeRegistry(rules PromotionRules) *ScopeRegistry {
	def := DefaultPromotionRules()
	if rules.MinImportance <= 0 {
		rules.MinImportance = def.MinImportance
	}
	if rules.MinAccessCount <= 0 {
		rules.MinAccessCount = def.MinAccessCount
	}
	if rules.MinDistinctSessions <= 0 {
		rules.MinDistinctSessions = def.MinDistinctSessions
	}
	if rules.MaxTrackedSessions < rules.MinDistinctSessions {
		rules.MaxTrackedSessions = max(def.MaxTrackedSessions, rules.MinDistinctSessions)
	}
	return &ScopeRegistry{rules: rules}
}

// Rules returns the active thresholds.
func (r *ScopeRegistry) Rules() PromotionRules {
	return r.rules
}

// Chain returns the ordered scope chain.
func (r *ScopeRegistry) Chain() []Scope {
	return append([]Scope(nil), Scopes...)
}

// Next returns the scope above s, or false at the top of the chain.
func (r *ScopeRegistry) Next(s Scope) (Scope, bool) {
	switch s {
	case ScopeSession:
		return ScopeProject, true
	case ScopeProject:
		return ScopeUser, true
	}
	return "", false
}

// Promotable reports whether m qualifies for promotion and to which scope.
// Only active memories with an owner in the target scope qualify.
func (r *ScopeRegistry) Promotable(m *Memory) (Scope, bool) {
	if m == nil || m.Status != StatusActive || m.PromotedTo != "" {
		return "", false
	}
	target, ok := r.Next(m.Scope)
	if !ok || m.Owners.For(target) == "" {
		return "", false
	}
	switch m.Scope {
	case ScopeSession:
		if m.Importance >= r.rules.MinImportance && m.AccessCount >= r.rules.MinAccessCount {
			return target, true
		}
	case ScopeProject:
		if len(m.AccessSessions) >= r.rules.MinDistinctSessions {
			return target, true
		}
	}
	return "", false
}
