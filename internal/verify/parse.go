package verify

import (
	"errors"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ErrBadSignatureFormat is returned when user input cannot be read as a
// transaction signature.
var ErrBadSignatureFormat = errors.New("unrecognized transaction signature")

// ParseSignature accepts a bare base58 signature or an explorer URL with a
// /tx/<signature> path segment.
func ParseSignature(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrBadSignatureFormat
	}

	if index := strings.Index(candidate, "/tx/"); index >= 0 {
		candidate = candidate[index+len("/tx/"):]
		if cut := strings.IndexAny(candidate, "?#/"); cut >= 0 {
			candidate = candidate[:cut]
		}
	}

	if _, err := solana.SignatureFromBase58(candidate); err != nil {
		return "", ErrBadSignatureFormat
	}
	return candidate, nil
}
