package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransferEventSignature is "Transfer(address,address,uint256)",
// hashed once at package init per spec.md §6 "on-wire log filter".
var TransferEventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// BuildTransferFilter builds the exact getLogs filter of spec.md §6:
// topic0 = Transfer signature, topic2 = left-padded recipient,
// address = tokenContract.
func BuildTransferFilter(tokenContract, recipient common.Address, fromBlock, toBlock uint64) LogFilter {
	return LogFilter{
		Address: tokenContract,
		Topics: [][]common.Hash{
			{TransferEventSignature},
			nil,
			{common.BytesToHash(recipient.Bytes())},
		},
		FromBlock: fromBlock,
		ToBlock:   toBlock,
	}
}

// ParsedTransfer is a raw ERC-20 Transfer log decoded into its
// constituent fields, still chain-specific (spec.md §4.2 step 6).
type ParsedTransfer struct {
	From        common.Address
	To          common.Address
	RawValue    *big.Int
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// ParseTransferLog decodes a Transfer(address,address,uint256) log.
// Malformed logs return an error and must be skipped by the caller,
// not abort the whole tick (spec.md §7).
func ParseTransferLog(log types.Log) (*ParsedTransfer, error) {
	if len(log.Topics) != 3 {
		return nil, fmt.Errorf("transfer log: expected 3 topics, got %d", len(log.Topics))
	}
	if log.Topics[0] != TransferEventSignature {
		return nil, fmt.Errorf("transfer log: unexpected topic0 %s", log.Topics[0].Hex())
	}
	if len(log.Data) < 32 {
		return nil, fmt.Errorf("transfer log: data too short (%d bytes)", len(log.Data))
	}

	from := common.BytesToAddress(log.Topics[1].Bytes())
	to := common.BytesToAddress(log.Topics[2].Bytes())
	rawValue := new(big.Int).SetBytes(log.Data[:32])

	return &ParsedTransfer{
		From:        from,
		To:          to,
		RawValue:    rawValue,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}, nil
}
