package store

import (
	"context"
	"errors"

	"lodestar/internal/models"
)

const (
	// DefaultListLimit applies when a caller does not ask for a limit.
	DefaultListLimit = 50
	// MaxListLimit caps any single read from a ledger.
	MaxListLimit = 500
	// RetentionPerKind bounds each ledger on backends that enforce trimming.
	RetentionPerKind = 5000
)

// ErrStoreUnavailable wraps backend I/O failures. It is the only error kind
// a caller may reasonably retry; the store itself never retries, since a
// repeated append could duplicate data.
var ErrStoreUnavailable = errors.New("store unavailable")

// Store is the persistence contract shared by the device registry, the
// telemetry ledger and the nonce guard. One implementation is chosen at
// startup and never switched at runtime.
type Store interface {
	// UpsertDevice creates the device on first sight or rotates its secret
	// hash, preserving createdAt. Returns the stored device.
	UpsertDevice(ctx context.Context, deviceID, secret string) (models.Device, error)

	// FindDevice returns nil (not an error) when the device is unknown.
	FindDevice(ctx context.Context, deviceID string) (*models.Device, error)

	ListDevices(ctx context.Context) ([]models.Device, error)

	// AppendRecord durably stores one record for kind before returning.
	AppendRecord(ctx context.Context, kind models.Kind, rec models.Record) error

	// ListRecent returns up to limit of the most recently appended records.
	// Ordering is backend-native beyond "most recent N": the file backend
	// returns its tail in append order, the redis backend newest-first.
	ListRecent(ctx context.Context, kind models.Kind, limit int) ([]models.Record, error)

	// SeenNonce is an atomic check-and-set: it reports whether (deviceID,
	// nonce) was already accepted inside the TTL window and records it when
	// previously unseen. Entries expire at timestampMs + TTL wall clock.
	SeenNonce(ctx context.Context, deviceID, nonce string, timestampMs int64) (bool, error)

	Close() error
}

// ClampLimit bounds a caller-supplied limit to [1, MaxListLimit], with
// DefaultListLimit substituted when the caller supplied nothing.
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultListLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
