package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func TestBuildTransferFilter_MatchesOnWireShape(t *testing.T) {
	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient := common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	f := BuildTransferFilter(token, recipient, 100, 200)

	require.Equal(t, token, f.Address)
	require.Equal(t, uint64(100), f.FromBlock)
	require.Equal(t, uint64(200), f.ToBlock)
	require.Len(t, f.Topics, 3)
	require.Equal(t, []common.Hash{TransferEventSignature}, f.Topics[0])
	require.Nil(t, f.Topics[1])
	require.Equal(t, []common.Hash{common.BytesToHash(recipient.Bytes())}, f.Topics[2])
}

func TestParseTransferLog_Valid(t *testing.T) {
	from := common.HexToAddress("0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC")
	to := common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	value := new(big.Int)
	value.SetString("1000000000000000000", 10)
	data := make([]byte, 32)
	value.FillBytes(data)

	log := types.Log{
		Topics: []common.Hash{
			TransferEventSignature,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:        data,
		BlockNumber: 42,
		TxHash:      common.HexToHash("0xbeef"),
		Index:       3,
	}

	parsed, err := ParseTransferLog(log)
	require.NoError(t, err)
	require.Equal(t, from, parsed.From)
	require.Equal(t, to, parsed.To)
	require.Equal(t, 0, value.Cmp(parsed.RawValue))
	require.Equal(t, uint64(42), parsed.BlockNumber)
	require.Equal(t, uint(3), parsed.LogIndex)
}

func TestParseTransferLog_RejectsWrongTopicCount(t *testing.T) {
	log := types.Log{Topics: []common.Hash{TransferEventSignature}}
	_, err := ParseTransferLog(log)
	require.Error(t, err)
}

func TestParseTransferLog_RejectsWrongSignature(t *testing.T) {
	log := types.Log{
		Topics: []common.Hash{
			common.HexToHash("0xdeadbeef"),
			common.Hash{},
			common.Hash{},
		},
		Data: make([]byte, 32),
	}
	_, err := ParseTransferLog(log)
	require.Error(t, err)
}

func TestParseTransferLog_RejectsShortData(t *testing.T) {
	log := types.Log{
		Topics: []common.Hash{TransferEventSignature, {}, {}},
		Data:   make([]byte, 10),
	}
	_, err := ParseTransferLog(log)
	require.Error(t, err)
}

func TestClassifyError_RangeTooWideSubstrings(t *testing.T) {
	err := classifyError("get_logs", &testErr{"query returned more than 10000 results"})
	var rangeErr *RangeTooWideError
	require.ErrorAs(t, err, &rangeErr)
}

func TestClassifyError_OtherwiseTransient(t *testing.T) {
	err := classifyError("get_logs", &testErr{"connection reset by peer"})
	var transientErr *TransientError
	require.ErrorAs(t, err, &transientErr)
}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }
