// Package webhook receives GitHub webhook deliveries, verifies their
// signatures and turns them into Telegram notifications.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// VerifySignature checks an X-Hub-Signature-256 header against the raw
// request body. The comparison is constant-time. A malformed header
// returns false rather than an error.
func VerifySignature(body []byte, header string, secret []byte) bool {
	if len(secret) == 0 {
		return false
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	got, err := hex.DecodeString(header[len(signaturePrefix):])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

// SignBody produces the header value GitHub would send for body.
func SignBody(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
