package tron

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"transfer-alerts/internal/chain"
)

// transferSelector is the first 4 bytes of keccak256("transfer(address,uint256)").
var transferSelector = []byte{0xa9, 0x05, 0x9c, 0xbb}

// minCalldataLen covers selector + destination slot + amount slot.
const minCalldataLen = 4 + 32 + 32

const triggerSmartContract = "TriggerSmartContract"

// DecodeBlock extracts TRC-20 transfers from a fetched block. Only
// successful transactions whose contract invocation targets one of the
// tracked contracts are considered; anything that does not parse as a
// transfer call is skipped, never an error. Contract keys in tracked must be
// lower-cased canonical base58.
func DecodeBlock(block *Block, tracked map[string]struct{}) []chain.RawTransfer {
	if block == nil || len(block.Transactions) == 0 {
		return nil
	}

	blockTime := time.UnixMilli(block.Header.RawData.Timestamp).UTC()
	height := block.Header.RawData.Number

	var transfers []chain.RawTransfer
	for _, tx := range block.Transactions {
		if !txSucceeded(tx) {
			continue
		}
		for _, instruction := range tx.RawData.Contract {
			if instruction.Type != triggerSmartContract {
				continue
			}

			contractAddr := Canonical(instruction.Parameter.Value.ContractAddress)
			if _, ok := tracked[strings.ToLower(contractAddr)]; !ok {
				continue
			}

			to, amount, ok := decodeTransferCall(instruction.Parameter.Value.Data)
			if !ok {
				continue
			}

			transfers = append(transfers, chain.RawTransfer{
				Chain:     chain.Tron,
				TxID:      tx.TxID,
				Height:    height,
				BlockTime: blockTime,
				Contract:  contractAddr,
				From:      Canonical(instruction.Parameter.Value.OwnerAddress),
				To:        to,
				RawAmount: amount,
			})
		}
	}
	return transfers
}

func txSucceeded(tx BlockTx) bool {
	for _, ret := range tx.Ret {
		if ret.ContractRet == "SUCCESS" {
			return true
		}
	}
	return false
}

// decodeTransferCall recognizes a transfer(address,uint256) invocation and
// returns the destination address and raw amount. The source address is the
// transaction's authorizing account, not a call parameter, so it is resolved
// by the caller.
func decodeTransferCall(data string) (string, *big.Int, bool) {
	cleaned := strings.TrimPrefix(data, "0x")
	raw, err := hex.DecodeString(cleaned)
	if err != nil || len(raw) < minCalldataLen {
		return "", nil, false
	}
	if !bytes.Equal(raw[:4], transferSelector) {
		return "", nil, false
	}

	// Destination occupies the last 20 bytes of the first 32-byte slot.
	dest := raw[4+12 : 4+32]
	to, err := FromRawHex(hex.EncodeToString(append([]byte{addressPrefix}, dest...)))
	if err != nil {
		// Fall back to the hex spelling; it will fail address-set membership
		// downstream instead of aborting the decode.
		to = hex.EncodeToString(dest)
	}

	amount := new(big.Int).SetBytes(raw[4+32 : 4+64])
	return to, amount, true
}
