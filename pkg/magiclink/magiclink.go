// Package magiclink issues token-bearing client links.
// only the token hash is meant to be persisted; the raw token lives in the link itself.
package magiclink

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// tokenBytes is the amount of randomness in a token.
const tokenBytes = 32

// ErrMalformed is returned for tokens that can't have been issued by New.
var ErrMalformed = errors.New("malformed magic link token")

// Token is a freshly issued magic link token.
type Token struct {
	Raw       string    // url-safe token, sent to the client and never stored
	Hash      string    // hex sha256 of Raw, stored for lookup
	ExpiresAt time.Time // zero means the link never expires
}

// New issues a random token valid for ttl from now. ttl <= 0 issues a non-expiring token.
func New(ttl time.Duration) (Token, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return Token{}, fmt.Errorf("read random: %w", err)
	}

	raw := base64.RawURLEncoding.EncodeToString(buf)
	tok := Token{Raw: raw, Hash: Hash(raw)}
	if ttl > 0 {
		tok.ExpiresAt = time.Now().Add(ttl).UTC()
	}
	return tok, nil
}

// Hash returns the storage hash of a raw token.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Check validates the token shape and returns its hash.
// it rejects anything that doesn't decode to the expected length before touching storage.
func Check(raw string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(data) != tokenBytes {
		return "", ErrMalformed
	}
	return Hash(raw), nil
}

// Expired reports whether a link with the given expiry is no longer valid at now.
func Expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

// Link builds the client portal URL for a raw token.
func Link(baseURL, raw string) string {
	return strings.TrimRight(baseURL, "/") + "/p/" + url.PathEscape(raw)
}
