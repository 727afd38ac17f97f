package memory

import (
	"fmt"
	"math"
	"time"
)

// Default half-lives per memory type.
var DefaultHalfLives = map[MemoryType]time.Duration{
	TypeWorking:    time.Hour,
	TypeEpisodic:   24 * time.Hour,
	TypeSemantic:   168 * time.Hour,
	TypeProcedural: 720 * time.Hour,
}

// DecayModel computes memory strength as exponential decay of importance
// since the last access.
type DecayModel struct {
	halfLives map[MemoryType]time.Duration
}

// NewDecayModel creates a decay model. Missing or non-positive entries in
// halfLives fall back to DefaultHalfLives.
func NewDecayModel(halfLives map[MemoryType]time.Duration) *DecayModel {
	hl := make(map[MemoryType]time.Duration, len(DefaultHalfLives))
	for t, d := range DefaultHalfLives {
		hl[t] = d
	}
	for t, d := range halfLives {
		if t.Valid() && d > 0 {
			hl[t] = d
		}
	}
	return &DecayModel{halfLives: hl}
}

// HalfLife returns the half-life for t.
func (d *DecayModel) HalfLife(t MemoryType) time.Duration {
	if h, ok := d.halfLives[t]; ok {
		return h
	}
	return DefaultHalfLives[TypeEpisodic]
}

// Strength returns importance * exp(-ln2/H * elapsedHours). Negative elapsed
// time is treated as zero.
func (d *DecayModel) Strength(importance float64, t MemoryType, lastAccessed, now time.Time) float64 {
	if importance <= 0 {
		return 0
	}
	elapsed := now.Sub(lastAccessed)
	if elapsed <= 0 {
		return importance
	}
	k := math.Ln2 / d.HalfLife(t).Hours()
	return importance * math.Exp(-k*elapsed.Hours())
}

// CheckedStrength is Strength with the [0, importance] bound verified. On
// violation the clamped value is returned together with the error.
func (d *DecayModel) CheckedStrength(m *Memory, now time.Time) (float64, error) {
	s := d.Strength(m.Importance, m.Type, m.LastAccessedAt, now)
	if math.IsNaN(s) || s < 0 || s > m.Importance {
		clamped := math.Max(0, math.Min(m.Importance, s))
		if math.IsNaN(s) {
			clamped = 0
		}
		return clamped, &InvariantViolation{
			Invariant: "strength within [0, importance]",
			Detail:    fmt.Sprintf("memory %s: strength %v, importance %v", m.ID, s, m.Importance),
		}
	}
	return s, nil
}

// RecordAccess applies access strengthening: the decay clock resets to now,
// the access count grows and the session joins the bounded provenance set.
func RecordAccess(m *Memory, sessionID string, now time.Time, maxSessions int) {
	if now.After(m.LastAccessedAt) {
		m.LastAccessedAt = now
	}
	m.AccessCount++
	if sessionID == "" {
		return
	}
	for _, s := range m.AccessSessions {
		if s == sessionID {
			return
		}
	}
	if maxSessions > 0 && len(m.AccessSessions) >= maxSessions {
		return
	}
	m.AccessSessions = append(m.AccessSessions, sessionID)
}
