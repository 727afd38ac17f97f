package memory

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the memory system.
var (
	ErrNotFound             = errors.New("memory: not found")
	ErrInvalidMemory        = errors.New("memory: invalid record")
	ErrInvalidQuery         = errors.New("memory: invalid query")
	ErrEmbeddingUnavailable = errors.New("memory: embedding unavailable")
	ErrStateConflict        = errors.New("memory: evolution state version conflict")
	ErrFeedbackRecorded     = errors.New("memory: feedback already recorded")
	ErrNoHistory            = errors.New("memory: no evolution history to roll back to")
	ErrIllegalTransition    = errors.New("memory: illegal status transition")
)

// ConfigurationError reports malformed parameters. The caller falls back to
// compiled-in defaults.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("memory: configuration %s: %s", e.Key, e.Reason)
}

// IndexUnavailableError reports a failure of the index primitive for a scope.
type IndexUnavailableError struct {
	Key   ScopeKey
	Cause error
}

func (e *IndexUnavailableError) Error() string {
	return fmt.Sprintf("memory: index unavailable for %s: %v", e.Key, e.Cause)
}

func (e *IndexUnavailableError) Unwrap() error {
	return e.Cause
}

// InvariantViolation reports a programming error such as a strength outside
// [0, importance].
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("memory: invariant %q violated: %s", e.Invariant, e.Detail)
}

// Store is the persistence primitive. Implementations validate records at
// the boundary and return ErrNotFound for missing keys.
type Store interface {
	PutMemory(ctx context.Context, m *Memory) error
	GetMemory(ctx context.Context, id string) (*Memory, error)
	// UpdateMemory applies fn to the stored record atomically.
	UpdateMemory(ctx context.Context, id string, fn func(*Memory) error) (*Memory, error)
	ListMemories(ctx context.Context, filter Filter) ([]*Memory, error)

	AppendLog(ctx context.Context, entry *RetrievalLogEntry) error
	GetLog(ctx context.Context, id string) (*RetrievalLogEntry, error)
	UpdateLog(ctx context.Context, id string, fn func(*RetrievalLogEntry) error) (*RetrievalLogEntry, error)
	// ListLog returns entries with ids strictly greater than after, oldest first.
	ListLog(ctx context.Context, after string, limit int) ([]*RetrievalLogEntry, error)

	// LoadState returns the persisted evolution state, or nil when none exists.
	LoadState(ctx context.Context) (*EvolutionState, error)
	// SwapState replaces the state row if its version equals expected.
	// A missing row has version 0. Returns ErrStateConflict otherwise.
	SwapState(ctx context.Context, expected uint64, next *EvolutionState) error

	PutQueueItem(ctx context.Context, item *QueueItem) error
	ListQueue(ctx context.Context, status QueueStatus, limit int) ([]*QueueItem, error)

	Close() error
}

// Index is the lexical and vector scoring primitive. Scores are only
// returned for active candidates filed under key.
type Index interface {
	LexicalScores(ctx context.Context, key ScopeKey, query string, limit int) (map[string]float64, error)
	VectorScores(ctx context.Context, key ScopeKey, vector []float32, limit int) (map[string]float64, error)
	Upsert(ctx context.Context, m *Memory) error
	Remove(ctx context.Context, id string) error
}

// Embedder turns text into a fixed-length vector. Returning
// ErrEmbeddingUnavailable degrades retrieval to lexical-only.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// WriterGate serialises evolution commits across processes.
type WriterGate interface {
	// Acquire blocks until the gate is held or ctx ends. The returned func
	// releases it.
	Acquire(ctx context.Context) (release func(), err error)
}

type hubLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
