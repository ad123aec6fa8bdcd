// Package eventbus is the typed, bounded-queue pub/sub of spec.md
// §4.5: a single-producer (the registry), multi-consumer broadcast of
// the domain event taxonomy, with per-subscriber bounded queues so a
// slow subscriber can never block the registry.
//
// This replaces the "implicit listener chaining" the teacher's
// service layer uses (push service connections directly calling into
// other services) with explicit subscriber identities and per-
// subscriber lag counters (spec.md §9).
package eventbus

import (
	"time"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
)

// Type is one member of the event taxonomy of spec.md §4.5.
type Type string

const (
	SessionCreated   Type = "session.created"
	SessionRecreated Type = "session.recreated"
	SessionExpired   Type = "session.expired"
	SessionCompleted Type = "session.completed"
	TransferDetected Type = "transfer.detected"
	TransferUpdated  Type = "transfer.updated"
	TransferConfirmed Type = "transfer.confirmed"
	ChainHalted      Type = "chain.halted"
)

// Event is the envelope published on the bus. Data holds one of the
// payload structs below; payload shapes are a contract, not a type
// hierarchy (spec.md §4.5).
type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"type"`
	CreatedAt time.Time   `json:"createdAt"`
	Data      interface{} `json:"data"`
}

type SessionCreatedData struct {
	Session *domain.Session `json:"session"`
}

type SessionRecreatedData struct {
	Session           *domain.Session `json:"session"`
	OriginalSessionID string          `json:"originalSessionId"`
}

type SessionExpiredData struct {
	SessionID string `json:"sessionId"`
}

type SessionCompletedData struct {
	SessionID  string `json:"sessionId"`
	TransferID string `json:"transferId"`
}

type TransferDetectedData struct {
	Transfer *domain.Transfer `json:"transfer"`
	SessionID string          `json:"sessionId,omitempty"`
	Matched   bool            `json:"matched"`
	Reason    string          `json:"reason,omitempty"`
}

type TransferUpdatedData struct {
	TransferID    string `json:"transferId"`
	Confirmations uint64 `json:"confirmations"`
}

type TransferConfirmedData struct {
	TransferID string `json:"transferId"`
	SessionID  string `json:"sessionId,omitempty"`
}

type ChainHaltedData struct {
	Network string `json:"network"`
	Reason  string `json:"reason"`
}
