package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
)

func TestMemoryStore_SaveAndLoadSessions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	sess := &domain.Session{
		ID:        "sess-1",
		Network:   "BEP20_TESTNET",
		Address:   "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA",
		Status:    domain.SessionPending,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.SaveSession(ctx, sess))

	loaded, err := s.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, sess.ID, loaded[0].ID)

	// The store must hold an independent copy: mutating the caller's
	// struct after save must not affect what was persisted.
	sess.Status = domain.SessionCompleted
	loaded2, err := s.LoadSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.SessionPending, loaded2[0].Status)
}

func TestMemoryStore_SaveAndLoadTransfers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tr := &domain.Transfer{
		ID:      "t-1",
		Network: "BEP20_TESTNET",
		TxHash:  "0xabc",
		Status:  domain.TransferPending,
	}
	require.NoError(t, s.SaveTransfer(ctx, tr))

	loaded, err := s.LoadTransfers(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "t-1", loaded[0].ID)
	require.NoError(t, s.Close())
}
