package memory

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecayModel_Strength(t *testing.T) {
	d := NewDecayModel(nil)

	tests := []struct {
		name       string
		importance float64
		typ        MemoryType
		elapsed    time.Duration
		want       float64
	}{
		{"no elapsed time", 0.8, TypeEpisodic, 0, 0.8},
		{"one half-life", 0.8, TypeEpisodic, 24 * time.Hour, 0.4},
		{"two half-lives", 0.8, TypeEpisodic, 48 * time.Hour, 0.2},
		{"working decays in an hour", 1, TypeWorking, time.Hour, 0.5},
		{"semantic after a week", 1, TypeSemantic, 168 * time.Hour, 0.5},
		{"procedural after a month", 0.6, TypeProcedural, 720 * time.Hour, 0.3},
		{"clock skew", 0.7, TypeEpisodic, -time.Hour, 0.7},
		{"zero importance", 0, TypeEpisodic, time.Hour, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Strength(tt.importance, tt.typ, t0, t0.Add(tt.elapsed))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestDecayModel_Monotonic(t *testing.T) {
	d := NewDecayModel(nil)
	for _, typ := range MemoryTypes {
		prev := math.Inf(1)
		for h := 0; h <= 2000; h += 7 {
			s := d.Strength(0.9, typ, t0, t0.Add(time.Duration(h)*time.Hour))
			assert.LessOrEqual(t, s, prev, "type %s at %dh", typ, h)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 0.9)
			prev = s
		}
	}
}

func TestNewDecayModel_Overrides(t *testing.T) {
	d := NewDecayModel(map[MemoryType]time.Duration{
		TypeEpisodic:        2 * time.Hour,
		TypeWorking:         0,
		MemoryType("bogus"): time.Minute,
	})
	assert.Equal(t, 2*time.Hour, d.HalfLife(TypeEpisodic))
	assert.Equal(t, time.Hour, d.HalfLife(TypeWorking))
	assert.Equal(t, 24*time.Hour, d.HalfLife(MemoryType("bogus")))
}

func TestDecayModel_CheckedStrength(t *testing.T) {
	d := NewDecayModel(nil)
	m := newMemory("m1", ScopeSession, "x")
	m.Importance = 0.6

	s, err := d.CheckedStrength(m, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, s, 1e-9)

	m.Importance = math.NaN()
	s, err = d.CheckedStrength(m, t0.Add(time.Hour))
	var iv *InvariantViolation
	require.ErrorAs(t, err, &iv)
	assert.Zero(t, s)
}

func TestRecordAccess(t *testing.T) {
	d := NewDecayModel(nil)
	m := newMemory("m1", ScopeProject, "x")
	m.Importance = 0.8
	later := t0.Add(72 * time.Hour)

	require.Less(t, d.Strength(m.Importance, m.Type, m.LastAccessedAt, later), 0.8)

	RecordAccess(m, "s1", later, 2)
	assert.Equal(t, later, m.LastAccessedAt)
	assert.Equal(t, 1, m.AccessCount)
	assert.Equal(t, 0.8, d.Strength(m.Importance, m.Type, m.LastAccessedAt, later))

	RecordAccess(m, "s1", later, 2)
	RecordAccess(m, "s2", later, 2)
	RecordAccess(m, "s3", later, 2)
	assert.Equal(t, 4, m.AccessCount)
	assert.Equal(t, []string{"s1", "s2"}, m.AccessSessions)

	// An out-of-order access never moves the clock back.
	RecordAccess(m, "", t0, 2)
	assert.Equal(t, later, m.LastAccessedAt)
	assert.Equal(t, 5, m.AccessCount)
}
