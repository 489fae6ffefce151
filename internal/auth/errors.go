package auth

import "errors"

var (
	// ErrInvalidCredential covers bad logins and forged, malformed or
	// expired tokens alike; callers never learn which, so the API cannot be
	// used as a device-enumeration oracle.
	ErrInvalidCredential = errors.New("invalid credential")

	ErrMissingSignatureHeaders = errors.New("missing signature headers")
	ErrTimestampOutOfRange     = errors.New("timestamp out of range")
	ErrUnknownDevice           = errors.New("unknown device")
	ErrInvalidSignature        = errors.New("invalid signature")
	ErrReplayedNonce           = errors.New("replayed nonce")
)
