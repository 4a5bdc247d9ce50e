package tron

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// addressPrefix is the Tron mainnet version byte prepended to the 20-byte
// account hash before base58check encoding.
const addressPrefix = 0x41

// FromRawHex converts a fullnode-style "41"-prefixed hex address into its
// canonical base58check form.
func FromRawHex(raw string) (string, error) {
	cleaned := strings.TrimPrefix(strings.ToLower(raw), "0x")
	payload, err := hex.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("decode tron hex address: %w", err)
	}
	if len(payload) != 21 || payload[0] != addressPrefix {
		return "", fmt.Errorf("unexpected tron address payload %q", raw)
	}
	return base58.CheckEncode(payload[1:], addressPrefix), nil
}

// FromEVMHex converts an EVM-style 20-byte hex address (as returned by the
// event indexer) into canonical base58check form.
func FromEVMHex(addr string) (string, error) {
	cleaned := strings.TrimPrefix(strings.ToLower(addr), "0x")
	payload, err := hex.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("decode evm hex address: %w", err)
	}
	if len(payload) != 20 {
		return "", fmt.Errorf("unexpected evm address length %d", len(payload))
	}
	return base58.CheckEncode(payload, addressPrefix), nil
}

// ToRawHex converts a base58check address back to "41"-prefixed hex.
func ToRawHex(addr string) (string, error) {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return "", fmt.Errorf("decode base58 address: %w", err)
	}
	if version != addressPrefix || len(payload) != 20 {
		return "", fmt.Errorf("address %q is not a tron account address", addr)
	}
	return hex.EncodeToString(append([]byte{addressPrefix}, payload...)), nil
}

// Canonical normalizes any supported spelling of a Tron address to its
// base58check display form. Conversion failures return the input unchanged;
// such values never match the registry and are rejected downstream instead
// of failing the decoder.
func Canonical(addr string) string {
	if addr == "" || strings.HasPrefix(addr, "T") {
		return addr
	}
	if strings.HasPrefix(strings.ToLower(addr), "0x") {
		if converted, err := FromEVMHex(addr); err == nil {
			return converted
		}
		return addr
	}
	if converted, err := FromRawHex(addr); err == nil {
		return converted
	}
	return addr
}
