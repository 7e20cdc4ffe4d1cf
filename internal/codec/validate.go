// File: internal/codec/validate.go
package codec

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var addressParams = []*chaincfg.Params{
	&chaincfg.MainNetParams,
	&chaincfg.TestNet3Params,
	&chaincfg.RegressionNetParams,
}

// IsValidAddress reports whether address decodes as a Bitcoin address on any
// supported network. Pure predicate, never panics.
func IsValidAddress(address string) bool {
	if address == "" {
		return false
	}
	for _, params := range addressParams {
		if _, err := btcutil.DecodeAddress(address, params); err == nil {
			return true
		}
	}
	return false
}

// IsValidPublicKey reports whether pubKey is a structurally valid secp256k1
// public key: compressed 33 bytes with 0x02/0x03 prefix, or uncompressed
// 65 bytes with 0x04 prefix.
func IsValidPublicKey(pubKey []byte) bool {
	switch len(pubKey) {
	case 33:
		return pubKey[0] == 0x02 || pubKey[0] == 0x03
	case 65:
		return pubKey[0] == 0x04
	default:
		return false
	}
}

// IsValidTxHash reports whether s is a 64-character hex transaction id.
func IsValidTxHash(s string) bool {
	if len(s) != chainhash.HashSize*2 {
		return false
	}
	_, err := chainhash.NewHashFromStr(s)
	return err == nil
}

// ReverseBytes returns a new slice with the bytes of b in reverse order.
// Chain-side 32-byte hashes are big-endian relative to Bitcoin's
// little-endian internal convention; every value crossing the chain boundary
// goes through this bridge exactly once.
func ReverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// ChainBoundaryHash converts an internal little-endian Bitcoin hash into the
// big-endian 32-byte value the EVM ledger stores.
func ChainBoundaryHash(h chainhash.Hash) [32]byte {
	var out [32]byte
	copy(out[:], ReverseBytes(h[:]))
	return out
}

// ParseChainHash parses a display-order (big-endian) transaction id string
// into an internal little-endian hash.
func ParseChainHash(s string) (*chainhash.Hash, error) {
	return chainhash.NewHashFromStr(s)
}

// HexToBytes decodes hex, tolerating an absent input by returning nil.
func HexToBytes(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
