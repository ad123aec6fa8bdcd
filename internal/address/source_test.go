package address

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/config"
)

func testChains() map[string]*config.ChainConfig {
	return map[string]*config.ChainConfig{
		"BEP20_TESTNET": {ID: "BEP20_TESTNET", Recipient: "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
	}
}

func TestPoolSource_NewAddressThenUnavailable(t *testing.T) {
	p := NewPoolSource(testChains())

	addr, err := p.NewAddress("BEP20_TESTNET", "sess-1")
	require.NoError(t, err)
	require.Equal(t, "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", addr)

	_, err = p.NewAddress("BEP20_TESTNET", "sess-2")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestPoolSource_ReleaseFreesSlot(t *testing.T) {
	p := NewPoolSource(testChains())

	addr, err := p.NewAddress("BEP20_TESTNET", "sess-1")
	require.NoError(t, err)

	p.Release("BEP20_TESTNET", addr)

	again, err := p.NewAddress("BEP20_TESTNET", "sess-2")
	require.NoError(t, err)
	require.Equal(t, addr, again)
}

func TestPoolSource_UnconfiguredNetwork(t *testing.T) {
	p := NewPoolSource(testChains())

	_, err := p.NewAddress("UNKNOWN_CHAIN", "sess-1")
	require.Error(t, err)
}

// Reserve marks a known address busy without allocating, used when
// restoring a PENDING session on startup; it must not affect unknown
// addresses or networks.
func TestPoolSource_Reserve(t *testing.T) {
	p := NewPoolSource(testChains())

	p.Reserve("BEP20_TESTNET", "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	_, err := p.NewAddress("BEP20_TESTNET", "sess-1")
	require.ErrorIs(t, err, ErrUnavailable)

	// Unknown network/address: no-op, must not panic.
	p.Reserve("UNKNOWN_CHAIN", "0xDEADDEADDEADDEADDEADDEADDEADDEADDEADDEAD")
}
