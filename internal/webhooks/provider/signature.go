package provider

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Header names the render provider signs its callbacks with.
const (
	HeaderRequestID = "X-Webhook-Request-Id"
	HeaderUserID    = "X-Webhook-User-Id"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"
)

// SignedMessage rebuilds the exact byte string the provider signed: the three
// header values plus the hex digest of the raw body, newline-joined.
func SignedMessage(requestID, externalUserID, timestamp string, body []byte) []byte {
	digest := sha256.Sum256(body)
	return []byte(strings.Join([]string{
		requestID,
		externalUserID,
		timestamp,
		hex.EncodeToString(digest[:]),
	}, "\n"))
}

// VerifySignature accepts the message if any key in the set matches.
func VerifySignature(keys []ed25519.PublicKey, message, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	for _, key := range keys {
		if len(key) == ed25519.PublicKeySize && ed25519.Verify(key, message, signature) {
			return true
		}
	}
	return false
}
