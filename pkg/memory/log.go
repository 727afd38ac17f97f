package memory

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// LoggedResult is one returned memory in a retrieval log entry.
type LoggedResult struct {
	ID    string `json:"id"`
	Scope Scope  `json:"scope"`
}

// RetrievalLogEntry records one completed query. Entries are append-only;
// only the feedback fields are ever set after creation, and only once.
type RetrievalLogEntry struct {
	// ID is a ULID, so ids sort by creation time.
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	SessionID string   `json:"session_id,omitempty"`
	Scopes    []Scope  `json:"scopes"`
	Strategy  Strategy `json:"strategy"`

	Count   int            `json:"count"`
	Results []LoggedResult `json:"results,omitempty"`

	// Useful is the caller's optional verdict on the result set.
	Useful *bool `json:"useful,omitempty"`

	// UsedIDs are the returned memories the caller went on to use.
	UsedIDs    []string   `json:"used_ids,omitempty"`
	FeedbackAt *time.Time `json:"feedback_at,omitempty"`
}

// HasFeedback reports whether feedback was attached.
func (e *RetrievalLogEntry) HasFeedback() bool {
	return e.FeedbackAt != nil
}

// Returned reports whether id was in the result set.
func (e *RetrievalLogEntry) Returned(id string) (Scope, bool) {
	for _, r := range e.Results {
		if r.ID == id {
			return r.Scope, true
		}
	}
	return "", false
}

// NewLogID returns a new time-ordered log identifier.
func NewLogID() string {
	return ulid.Make().String()
}
