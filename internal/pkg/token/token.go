package token

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits  = "0123456789"

	// LinkTokenLength is the size of a link-format renewal token.
	LinkTokenLength = 32
	// ManualTokenLength is the size of a manual-entry renewal token.
	ManualTokenLength = 8
)

var (
	linkRe   = regexp.MustCompile(`^[a-zA-Z]{32}$`)
	manualRe = regexp.MustCompile(`^[0-9]{8}$`)
)

// NewLinkToken generates a 32-character token drawn uniformly from the 52
// ASCII letters. Uniqueness is not checked here; the store rejects duplicate
// link tokens on write.
func NewLinkToken() (string, error) {
	return randomString(letters, LinkTokenLength)
}

// NewManualToken generates an 8-digit code for manual entry. Manual tokens
// are only unique per account, never globally.
func NewManualToken() (string, error) {
	return randomString(digits, ManualTokenLength)
}

// IsLinkFormat reports whether tok looks like a link-format token.
func IsLinkFormat(tok string) bool {
	return linkRe.MatchString(tok)
}

// IsManualFormat reports whether tok looks like a manual-entry token.
func IsManualFormat(tok string) bool {
	return manualRe.MatchString(tok)
}

func randomString(alphabet string, length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b), nil
}
