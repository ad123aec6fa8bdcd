// Package domain holds the data model shared by the registry, the
// event bus and the store: spec.md §3's Session and Transfer records,
// their status enums, and the typed errors the core operations of
// spec.md §4.3 return.
package domain

import "time"

// SessionStatus is the lifecycle state of a Session (spec.md §3).
type SessionStatus string

const (
	SessionPending   SessionStatus = "PENDING"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionExpired   SessionStatus = "EXPIRED"
	SessionFailed    SessionStatus = "FAILED"
)

// Session is a time-bounded expectation of a specific payment amount
// on a specific chain (spec.md §3).
type Session struct {
	ID                string            `json:"id"`
	Amount            string            `json:"amount"` // decimal string, >0
	Currency          string            `json:"currency"` // "USDT"
	Network           string            `json:"network"` // Chain.ID
	Address           string            `json:"address"` // recipient address assigned to this session
	Status            SessionStatus     `json:"status"`
	CreatedAt         time.Time         `json:"createdAt"`
	ExpiresAt         time.Time         `json:"expiresAt"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
	ClientRefID       string            `json:"clientRefId,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	OriginalSessionID string            `json:"originalSessionId,omitempty"`
	MatchedTransferID string            `json:"matchedTransferId,omitempty"`
}

// Clone returns a deep-enough copy safe to hand to callers outside
// the registry's single-writer goroutine.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Metadata != nil {
		clone.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			clone.Metadata[k] = v
		}
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		clone.CompletedAt = &t
	}
	return &clone
}

// CreateSessionInput is the validated input to Registry.CreateSession.
type CreateSessionInput struct {
	Amount            string
	Currency          string
	Network           string
	ExpirationMinutes int
	ClientRefID       string
	Metadata          map[string]string
}

// SessionFilter narrows ListSessions results (spec.md §4.3).
type SessionFilter struct {
	Status      SessionStatus
	Network     string
	ClientRefID string
	FromDate    *time.Time
	ToDate      *time.Time
}

// Page describes pagination input/output for list operations.
type Page struct {
	Page  int
	Limit int
}

// PageResult carries pagination metadata alongside a result slice.
type PageResult struct {
	Page       int
	Limit      int
	Total      int
	TotalPages int
}
