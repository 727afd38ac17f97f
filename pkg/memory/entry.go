// Package memory provides a scoped, self-tuning memory store for coding
// assistants: time-decayed strength, hybrid lexical/vector retrieval fused
// across scopes, a consolidation state machine and a bounded evolution loop
// that adjusts ranking weights from logged retrieval outcomes.
package memory

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// MemoryType classifies a memory and fixes its decay half-life.
type MemoryType string

const (
	TypeWorking    MemoryType = "working"
	TypeEpisodic   MemoryType = "episodic"
	TypeSemantic   MemoryType = "semantic"
	TypeProcedural MemoryType = "procedural"
)

// MemoryTypes lists every recognised memory type.
var MemoryTypes = []MemoryType{TypeWorking, TypeEpisodic, TypeSemantic, TypeProcedural}

// Valid reports whether t is a recognised memory type.
func (t MemoryType) Valid() bool {
	switch t {
	case TypeWorking, TypeEpisodic, TypeSemantic, TypeProcedural:
		return true
	}
	return false
}

// Scope is the isolation boundary a memory belongs to.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeProject Scope = "project"
	ScopeUser    Scope = "user"
)

// Scopes lists the scope chain in promotion order.
var Scopes = []Scope{ScopeSession, ScopeProject, ScopeUser}

// Valid reports whether s is a recognised scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeSession, ScopeProject, ScopeUser:
		return true
	}
	return false
}

// Status is the lifecycle state of a memory.
type Status string

const (
	StatusActive    Status = "active"
	StatusArchived  Status = "archived"
	StatusForgotten Status = "forgotten"
)

// Valid reports whether s is a recognised status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusForgotten:
		return true
	}
	return false
}

// Owners carries the identifiers of the session, project and user a memory
// was recorded under. The owner for the memory's current scope is the one
// the memory is filed under.
type Owners struct {
	SessionID string `json:"session_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// For returns the owner identifier for the given scope.
func (o Owners) For(scope Scope) string {
	switch scope {
	case ScopeSession:
		return o.SessionID
	case ScopeProject:
		return o.ProjectID
	case ScopeUser:
		return o.UserID
	}
	return ""
}

// ScopeKey identifies one scope owner, e.g. "project:mnemo".
type ScopeKey string

// KeyFor builds the key for a scope and owner identifier.
func KeyFor(scope Scope, owner string) ScopeKey {
	return ScopeKey(string(scope) + ":" + owner)
}

// Scope returns the scope component of the key.
func (k ScopeKey) Scope() Scope {
	s, _, _ := strings.Cut(string(k), ":")
	return Scope(s)
}

// Metadata is the typed attribute set stored with a memory. Declared fields
// are validated; anything else goes into Extra.
type Metadata struct {
	// Source names the producer of the memory (hook, tool, user).
	Source string `json:"source,omitempty"`

	// FilePath is the file the memory refers to, if any.
	FilePath string `json:"file_path,omitempty"`

	// Language is the programming language the memory refers to.
	Language string `json:"language,omitempty"`

	// Tool is the assistant tool that produced the memory.
	Tool string `json:"tool,omitempty"`

	// Extra is the opaque metadata slot.
	Extra map[string]string `json:"extra,omitempty"`
}

const (
	maxMetadataValue = 1024
	maxExtraEntries  = 32
)

func (m Metadata) validate() error {
	for name, v := range map[string]string{
		"source": m.Source, "file_path": m.FilePath, "language": m.Language, "tool": m.Tool,
	} {
		if len(v) > maxMetadataValue {
			return fmt.Errorf("%w: metadata %s exceeds %d bytes", ErrInvalidMemory, name, maxMetadataValue)
		}
	}
	if len(m.Extra) > maxExtraEntries {
		return fmt.Errorf("%w: metadata extra has %d entries (max %d)", ErrInvalidMemory, len(m.Extra), maxExtraEntries)
	}
	for k, v := range m.Extra {
		if k == "" {
			return fmt.Errorf("%w: metadata extra key is empty", ErrInvalidMemory)
		}
		if len(v) > maxMetadataValue {
			return fmt.Errorf("%w: metadata extra %q exceeds %d bytes", ErrInvalidMemory, k, maxMetadataValue)
		}
	}
	return nil
}

// Memory is a persisted note.
type Memory struct {
	// ID is the immutable unique identifier.
	ID string `json:"id"`

	// Content is the note text. It never changes after creation.
	Content string `json:"content"`

	// Type is fixed at creation and selects the decay half-life.
	Type MemoryType `json:"memory_type"`

	// Scope changes only through promotion.
	Scope Scope `json:"scope"`

	// Owners records the session, project and user identifiers.
	Owners Owners `json:"owners"`

	// Importance is in [0,1].
	Importance float64 `json:"importance"`

	// Tags only ever grow.
	Tags []string `json:"tags,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// AccessCount is incremented on every retrieval that leads to use.
	AccessCount int `json:"access_count"`

	// AccessSessions is the bounded set of distinct sessions that used
	// this memory.
	AccessSessions []string `json:"access_sessions,omitempty"`

	Status Status `json:"status"`

	// PromotedFrom is the id of the lower-scope record this one was copied from.
	PromotedFrom string `json:"promoted_from,omitempty"`

	// PromotedTo is the id of the higher-scope copy once promoted.
	PromotedTo string `json:"promoted_to,omitempty"`

	// MergedInto is the id of the surviving record after a merge.
	MergedInto string `json:"merged_into,omitempty"`

	// Vector is the content embedding, nil when no provider was available.
	Vector []float32 `json:"vector,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// Key returns the scope owner key the memory is filed under.
func (m *Memory) Key() ScopeKey {
	return KeyFor(m.Scope, m.Owners.For(m.Scope))
}

// HasTag reports whether the memory carries tag.
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTags appends tags not already present and reports whether any were added.
func (m *Memory) AddTags(tags ...string) bool {
	added := false
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || m.HasTag(tag) {
			continue
		}
		m.Tags = append(m.Tags, tag)
		added = true
	}
	return added
}

// Validate checks the record against the schema. Stores call it before
// every write.
func (m *Memory) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil memory", ErrInvalidMemory)
	}
	if m.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidMemory)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidMemory)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unrecognized memory_type %q", ErrInvalidMemory, m.Type)
	}
	if !m.Scope.Valid() {
		return fmt.Errorf("%w: unrecognized scope %q", ErrInvalidMemory, m.Scope)
	}
	if m.Owners.For(m.Scope) == "" {
		return fmt.Errorf("%w: no %s owner", ErrInvalidMemory, m.Scope)
	}
	if !m.Status.Valid() {
		return fmt.Errorf("%w: unrecognized status %q", ErrInvalidMemory, m.Status)
	}
	if math.IsNaN(m.Importance) || m.Importance < 0 || m.Importance > 1 {
		return fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidMemory, m.Importance)
	}
	if m.AccessCount < 0 {
		return fmt.Errorf("%w: negative access_count", ErrInvalidMemory)
	}
	if m.CreatedAt.IsZero() || m.LastAccessedAt.IsZero() {
		return fmt.Errorf("%w: missing timestamps", ErrInvalidMemory)
	}
	for _, v := range m.Vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: vector contains non-finite values", ErrInvalidMemory)
		}
	}
	return m.Metadata.validate()
}

// Clone returns a deep copy of m.
func (m *Memory) Clone() *Memory {
	if m == nil {
		return nil
	}
	c := *m
	c.Tags = append([]string(nil), m.Tags...)
	c.AccessSessions = append([]string(nil), m.AccessSessions...)
	if m.Vector != nil {
		c.Vector = append([]float32(nil), m.Vector...)
	}
	if m.Metadata.Extra != nil {
		c.Metadata.Extra = make(map[string]string, len(m.Metadata.Extra))
		for k, v := range m.Metadata.Extra {
			c.Metadata.Extra[k] = v
		}
	}
	return &c
}

// Filter selects memories in List calls. Zero fields match everything.
type Filter struct {
	Scope  Scope      `json:"scope,omitempty"`
	Owner  string     `json:"owner,omitempty"`
	Type   MemoryType `json:"memory_type,omitempty"`
	Status Status     `json:"status,omitempty"`
	Tag    string     `json:"tag,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

// Match reports whether m satisfies the filter, ignoring paging.
func (f Filter) Match(m *Memory) bool {
	if f.Scope != "" && m.Scope != f.Scope {
		return false
	}
	if f.Owner != "" && m.Owners.For(m.Scope) != f.Owner {
		return false
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.Tag != "" && !m.HasTag(f.Tag) {
		return false
	}
	return true
}

// Stats holds counts over the stored memories.
type Stats struct {
	Total    int                `json:"total"`
	ByStatus map[Status]int     `json:"by_status"`
	ByScope  map[Scope]int      `json:"by_scope"`
	ByType   map[MemoryType]int `json:"by_type"`

	// AverageStrength is the mean current strength of active memories.
	AverageStrength float64 `json:"average_strength"`
}
