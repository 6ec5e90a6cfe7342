// Package tracking generates signed per-recipient tracking tokens, rewrites
// outbound HTML to route opens and clicks through tracking endpoints, and
// records engagement against delivery records.
package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidToken is returned when a token cannot be decoded or its
// signature does not verify.
var ErrInvalidToken = errors.New("invalid tracking token")

// Tokenizer signs and resolves tracking tokens. A token is
// base64url("recordID:unixts:sig") where sig is the first 16 hex chars of
// HMAC-SHA256 over "recordID:unixts". The signature is re-verified on every
// decode; a token is never trusted on shape alone.
type Tokenizer struct {
	signingKey []byte
	now        func() time.Time
}

// NewTokenizer creates a tokenizer with the process-wide signing key.
func NewTokenizer(signingKey string) *Tokenizer {
	return &Tokenizer{signingKey: []byte(signingKey), now: time.Now}
}

// TagForTracking produces the token for a delivery record.
func (t *Tokenizer) TagForTracking(recordID string) string {
	ts := t.now().Unix()
	payload := fmt.Sprintf("%s:%d", recordID, ts)
	return base64.URLEncoding.EncodeToString([]byte(payload + ":" + t.sign(payload)))
}

// ResolveToken recovers the delivery record id from a token, verifying the
// signature first. Returns ErrInvalidToken on any decode or verify failure.
func (t *Tokenizer) ResolveToken(token string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidToken
	}

	// recordID:unixts:sig, split from the right so ids may contain colons
	raw := string(decoded)
	sigIdx := strings.LastIndex(raw, ":")
	if sigIdx < 0 {
		return "", ErrInvalidToken
	}
	payload, sig := raw[:sigIdx], raw[sigIdx+1:]
	if !hmac.Equal([]byte(t.sign(payload)), []byte(sig)) {
		return "", ErrInvalidToken
	}

	tsIdx := strings.LastIndex(payload, ":")
	if tsIdx < 0 {
		return "", ErrInvalidToken
	}
	recordID := payload[:tsIdx]
	if recordID == "" {
		return "", ErrInvalidToken
	}
	return recordID, nil
}

func (t *Tokenizer) sign(payload string) string {
	h := hmac.New(sha256.New, t.signingKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
