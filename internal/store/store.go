// Package store is the pluggable durability layer of spec.md §1/§9:
// the registry's in-memory state is authoritative for matching
// decisions, but every committed transition is mirrored here so a
// restart (or an operator audit) can recover session/transfer history.
// The registry never blocks a match decision on a Store write.
package store

import (
	"context"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
)

// Store persists sessions and transfers for recovery and audit. It is
// not consulted for matching decisions; the registry is authoritative
// while the process is running.
type Store interface {
	SaveSession(ctx context.Context, sess *domain.Session) error
	SaveTransfer(ctx context.Context, t *domain.Transfer) error
	LoadSessions(ctx context.Context) ([]*domain.Session, error)
	LoadTransfers(ctx context.Context) ([]*domain.Transfer, error)
	Close() error
}
