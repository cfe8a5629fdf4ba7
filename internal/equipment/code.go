package equipment

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	// CodeLength is the number of characters in an access code.
	CodeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateCode draws a CodeLength access code from r, or crypto/rand when r is nil.
func GenerateCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	limit := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(r, limit)
		if err != nil {
			return "", fmt.Errorf("generate access code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// Hasher derives keyed digests of access codes so plaintext codes are never stored.
type Hasher struct {
	key []byte
}

// NewHasher builds a Hasher. blake2b accepts keys of at most 64 bytes.
func NewHasher(secret string) (*Hasher, error) {
	if secret == "" {
		return nil, errors.New("equipment: code secret is empty")
	}
	if len(secret) > blake2b.Size {
		return nil, fmt.Errorf("equipment: code secret longer than %d bytes", blake2b.Size)
	}
	return &Hasher{key: []byte(secret)}, nil
}

// Digest returns the hex digest of code after case and whitespace folding.
func (h *Hasher) Digest(code string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is validated in NewHasher
		panic(err)
	}
	mac.Write([]byte(strings.ToUpper(strings.TrimSpace(code))))
	return hex.EncodeToString(mac.Sum(nil))
}

// DigestsEqual compares digests in constant time. Empty digests never match.
func DigestsEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
