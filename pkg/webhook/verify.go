// Package webhook implements the inbound event router for the realtime
// communication platform: signature verification, event decoding, and the
// guarded state transitions each event kind drives on a meeting record.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// VerifySignature validates the platform's HMAC-SHA256 signature over the
// raw request body. It must run before any JSON parsing so unverified
// payloads are never processed.
func VerifySignature(apiSecret, signature string, body []byte) error {
	if signature == "" {
		return ErrMissingSignature
	}

	expected := Sign(apiSecret, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}

	return nil
}

// Sign computes the hex-encoded HMAC-SHA256 signature the platform attaches
// to webhook deliveries. Exposed for tests and local delivery tooling.
func Sign(apiSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(apiSecret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
