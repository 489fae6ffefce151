package models

// Device is the identity record for a tracked device. SecretHash holds the
// SHA-256 digest of the provisioned shared secret; the plaintext secret is
// never persisted. Timestamps are RFC3339 strings to keep the stored layout
// stable across backends.
type Device struct {
	DeviceID   string `json:"deviceId"`
	SecretHash string `json:"secretHash"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}
