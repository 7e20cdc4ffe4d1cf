package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GenerateID generates a random hex ID
func GenerateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// IsValidAddress checks if a string is a valid EVM ledger address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// CreateEventID creates a unique ID for a ledger event
func CreateEventID(blockHash, txHash string, logIndex uint) string {
	data := fmt.Sprintf("%s-%s-%d", blockHash, txHash, logIndex)
	hash := crypto.Keccak256Hash([]byte(data))
	return hash.Hex()
}
