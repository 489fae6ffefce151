package auth

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"lodestar/internal/crypto"
	"lodestar/internal/store"
)

var signatureHex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// SignatureInput carries the side-channel values a device attaches to an
// upload, plus the raw body bytes exactly as received.
type SignatureInput struct {
	Method      string
	Path        string
	TimestampMs int64
	Nonce       string
	Signature   string
	Body        []byte
}

// SignatureVerifier validates the per-request HMAC after a bearer token has
// already resolved the device identity. The HMAC key is the device's stored
// secret hash, so the server never needs the plaintext secret after
// registration.
type SignatureVerifier struct {
	store  store.Store
	window time.Duration
}

func NewSignatureVerifier(st store.Store, window time.Duration) *SignatureVerifier {
	return &SignatureVerifier{store: st, window: window}
}

// Verify runs the checks in a fixed order: header presence, timestamp
// freshness, device lookup, signature match, then the nonce check-and-set.
// Checking the signature before the nonce means a forged request cannot
// burn a nonce the legitimate device has not used yet.
func (v *SignatureVerifier) Verify(ctx context.Context, deviceID string, in SignatureInput) error {
	if in.TimestampMs == 0 || in.Nonce == "" || in.Signature == "" {
		return ErrMissingSignatureHeaders
	}

	skew := time.Now().UnixMilli() - in.TimestampMs
	if skew < 0 {
		skew = -skew
	}
	if skew > v.window.Milliseconds() {
		return ErrTimestampOutOfRange
	}

	device, err := v.store.FindDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return ErrUnknownDevice
	}

	expected := Sign(device.SecretHash, in.Method, in.Path, in.TimestampMs, in.Nonce, in.Body)
	if !signatureHex.MatchString(in.Signature) || !crypto.TimingSafeEqualHex(in.Signature, expected) {
		return ErrInvalidSignature
	}

	seen, err := v.store.SeenNonce(ctx, deviceID, in.Nonce, in.TimestampMs)
	if err != nil {
		return err
	}
	if seen {
		return ErrReplayedNonce
	}
	return nil
}

// CanonicalMessage builds the exact byte sequence a signature covers.
// Binding method and path prevents replaying a signature against another
// endpoint; binding the body digest covers the payload itself.
func CanonicalMessage(method, path string, timestampMs int64, nonce string, body []byte) string {
	return fmt.Sprintf("%s\n%s\n%d\n%s\n%s",
		method, path, timestampMs, nonce, crypto.SHA256HexBytes(body))
}

// Sign computes the hex HMAC-SHA256 a device is expected to send. Clients
// use sha256(secret) as the key, which equals the stored secret hash.
func Sign(secretHash, method, path string, timestampMs int64, nonce string, body []byte) string {
	return crypto.HMACSHA256Hex(secretHash, CanonicalMessage(method, path, timestampMs, nonce, body))
}
