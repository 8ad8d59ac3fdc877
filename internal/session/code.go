package session

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	CodeLength   = 7
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewCode returns a room code, each character drawn uniformly from A-Z0-9.
func NewCode() (string, error) {
	code := make([]byte, CodeLength)
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// NormalizeCode cleans up a code typed by a player.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
