// Package models defines the request and response bodies of the HTTP API.
package models

import (
	"time"

	"github.com/goclaw/mnemo/pkg/memory"
)

// DefaultImportance is applied when a remember request omits importance.
const DefaultImportance = 0.5

// RememberRequest is the body of POST /api/v1/memories.
type RememberRequest struct {
	Content    string          `json:"content" validate:"required,max=65536"`
	MemoryType string          `json:"memory_type,omitempty" validate:"omitempty,oneof=working episodic semantic procedural"`
	Scope      string          `json:"scope,omitempty" validate:"omitempty,oneof=session project user"`
	Owners     memory.Owners   `json:"owners"`
	Importance *float64        `json:"importance,omitempty" validate:"omitempty,gte=0,lte=1"`
	Tags       []string        `json:"tags,omitempty" validate:"max=64,dive,required,max=128"`
	Metadata   memory.Metadata `json:"metadata"`
}

// ToMemory converts the request for the hub.
func (r RememberRequest) ToMemory() memory.RememberRequest {
	importance := DefaultImportance
	if r.Importance != nil {
		importance = *r.Importance
	}
	return memory.RememberRequest{
		Content:    r.Content,
		Type:       memory.MemoryType(r.MemoryType),
		Scope:      memory.Scope(r.Scope),
		Owners:     r.Owners,
		Importance: importance,
		Tags:       r.Tags,
		Metadata:   r.Metadata,
	}
}

// RetrieveRequest is the body of POST /api/v1/retrieve.
type RetrieveRequest struct {
	Query    string        `json:"query" validate:"required,max=4096"`
	Scopes   []string      `json:"scopes,omitempty" validate:"max=3,dive,oneof=session project user"`
	Owners   memory.Owners `json:"owners"`
	Strategy string        `json:"strategy,omitempty" validate:"omitempty,oneof=auto hybrid lexical fused"`
	Limit    int           `json:"limit,omitempty" validate:"gte=0"`
}

// ToQuery converts the request for the hub.
func (r RetrieveRequest) ToQuery() memory.RetrieveRequest {
	scopes := make([]memory.Scope, 0, len(r.Scopes))
	for _, s := range r.Scopes {
		scopes = append(scopes, memory.Scope(s))
	}
	return memory.RetrieveRequest{
		Query:    r.Query,
		Scopes:   scopes,
		Owners:   r.Owners,
		Strategy: memory.Strategy(r.Strategy),
		Limit:    r.Limit,
	}
}

// FeedbackRequest is the body of POST /api/v1/retrievals/{id}/feedback.
type FeedbackRequest struct {
	Useful    *bool    `json:"useful,omitempty"`
	UsedIDs   []string `json:"used_ids,omitempty" validate:"max=100,dive,required"`
	SessionID string   `json:"session_id,omitempty"`
}

// TagRequest is the body of POST /api/v1/memories/{id}/tags.
type TagRequest struct {
	Tags []string `json:"tags" validate:"required,min=1,max=64,dive,required,max=128"`
}

// ImportanceRequest is the body of PUT /api/v1/memories/{id}/importance.
type ImportanceRequest struct {
	Importance *float64 `json:"importance" validate:"required,gte=0,lte=1"`
}

// MemoryResponse is a memory with its strength at read time.
type MemoryResponse struct {
	*memory.Memory
	Strength float64 `json:"strength"`
}

// MemoryListResponse is a page of memories.
type MemoryListResponse struct {
	Memories []MemoryResponse `json:"memories"`
	Count    int              `json:"count"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// StrengthResponse is the body of GET /api/v1/memories/{id}/strength.
type StrengthResponse struct {
	ID         string    `json:"id"`
	Strength   float64   `json:"strength"`
	ComputedAt time.Time `json:"computed_at"`
}

// QueueResponse lists consolidation queue items.
type QueueResponse struct {
	Items []*memory.QueueItem `json:"items"`
	Count int                 `json:"count"`
}
