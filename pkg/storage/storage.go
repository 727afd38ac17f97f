// Package storage holds the shared pieces of the persistent memory stores:
// error types, the record codec, and the read-through cache.
package storage

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/goclaw/mnemo/pkg/memory"
)

// StorageUnavailableError indicates that the storage backend is unavailable.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Cause
}

// SerializationError indicates a failure in data serialization/deserialization.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error during %s: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// Encode marshals a record for storage.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &SerializationError{Operation: "marshal", Cause: err}
	}
	return data, nil
}

// Decode unmarshals a stored record.
func Decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &SerializationError{Operation: "unmarshal", Cause: err}
	}
	return nil
}

// NotFound wraps memory.ErrNotFound with the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", memory.ErrNotFound, entity, id)
}

// Page sorts memories oldest first, ids breaking ties, and applies the
// filter's offset and limit.
func Page(ms []*memory.Memory, f memory.Filter) []*memory.Memory {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(ms) {
			return nil
		}
		ms = ms[f.Offset:]
	}
	if f.Limit > 0 && len(ms) > f.Limit {
		ms = ms[:f.Limit]
	}
	return ms
}

// ValidateLogEntry checks a retrieval log entry before it is written.
func ValidateLogEntry(e *memory.RetrievalLogEntry) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: log entry without id", memory.ErrInvalidMemory)
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("%w: log entry %s without timestamp", memory.ErrInvalidMemory, e.ID)
	}
	return nil
}

// ValidateQueueItem checks a consolidation queue item before it is written.
func ValidateQueueItem(item *memory.QueueItem) error {
	if item == nil || item.ID == "" || item.MemoryID == "" {
		return fmt.Errorf("%w: queue item without id", memory.ErrInvalidMemory)
	}
	switch item.Status {
	case memory.QueuePending, memory.QueueDone, memory.QueueFailed:
	default:
		return fmt.Errorf("%w: queue item %s has status %q", memory.ErrInvalidMemory, item.ID, item.Status)
	}
	return nil
}
