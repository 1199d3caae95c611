package notification

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Headers set on signed webhook deliveries.
const (
	HeaderSignature = "X-Offline-Agent-Signature"
	HeaderTimestamp = "X-Offline-Agent-Timestamp"
)

const signaturePrefix = "sha256="

// Signer signs push deliveries with HMAC-SHA256 over "<unix>.<payload>".
type Signer struct {
	secret []byte
}

// NewSigner creates a signer for the shared secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the signature for payload sent at the given time.
func (s *Signer) Sign(payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(at.Unix(), 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Headers returns the signature and timestamp headers for payload.
func (s *Signer) Headers(payload []byte, at time.Time) map[string]string {
	return map[string]string{
		HeaderSignature: s.Sign(payload, at),
		HeaderTimestamp: strconv.FormatInt(at.Unix(), 10),
	}
}

// Verify checks a signature and rejects timestamps further than tolerance
// from now.
func (s *Signer) Verify(payload []byte, signature string, timestamp int64, tolerance time.Duration) bool {
	at := time.Unix(timestamp, 0)
	if d := time.Since(at); d > tolerance || d < -tolerance {
		return false
	}
	return hmac.Equal([]byte(s.Sign(payload, at)), []byte(signature))
}
