// Package catalog implements the schema catalog: a per-database
// table-schema catalog and a global database registry, both themselves
// tables built on tablestore.
package catalog

import (
	"crypto/rand"

	"github.com/d-bee/dbee/internal/dbeeerr"
)

// keyAlphabet is the printable character set database and admin keys are
// drawn from.
const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// KeyLength is the fixed length of an admin or database key.
const KeyLength = 32

// GenerateKey draws KeyLength printable characters from a CSPRNG.
func GenerateKey() (string, error) {
	raw := make([]byte, KeyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", dbeeerr.Wrap(dbeeerr.Internal, "generate key", err)
	}
	out := make([]byte, KeyLength)
	for i, b := range raw {
		out[i] = keyAlphabet[int(b)%len(keyAlphabet)]
	}
	return string(out), nil
}
