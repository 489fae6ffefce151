package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"lodestar/internal/crypto"
	"lodestar/internal/models"
)

const (
	devicesKey      = "devices"
	recordKeyPrefix = "records:"
	nonceKeyPrefix  = "nonce:"
)

// RedisStore keeps the device collection in a hash, each telemetry kind in a
// bounded list and every outstanding nonce in its own expiring key, so the
// atomicity of ledger trim and nonce check-and-set comes from redis itself
// rather than from read-then-write emulation.
type RedisStore struct {
	client   *redis.Client
	nonceTTL time.Duration
}

func NewRedisStore(client *redis.Client, nonceTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, nonceTTL: nonceTTL}
}

func recordKey(kind models.Kind) string {
	return recordKeyPrefix + string(kind)
}

func nonceKey(deviceID, nonce string) string {
	return fmt.Sprintf("%s%s:%s", nonceKeyPrefix, deviceID, nonce)
}

func (s *RedisStore) UpsertDevice(ctx context.Context, deviceID, secret string) (models.Device, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	device := models.Device{
		DeviceID:   deviceID,
		SecretHash: crypto.SHA256Hex(secret),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	existing, err := s.FindDevice(ctx, deviceID)
	if err != nil {
		return models.Device{}, err
	}
	if existing != nil {
		device.CreatedAt = existing.CreatedAt
	}

	data, err := json.Marshal(device)
	if err != nil {
		return models.Device{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := s.client.HSet(ctx, devicesKey, deviceID, data).Err(); err != nil {
		return models.Device{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return device, nil
}

func (s *RedisStore) FindDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	raw, err := s.client.HGet(ctx, devicesKey, deviceID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var device models.Device
	if err := json.Unmarshal([]byte(raw), &device); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &device, nil
}

func (s *RedisStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	all, err := s.client.HGetAll(ctx, devicesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	devices := make([]models.Device, 0, len(all))
	for _, raw := range all {
		var device models.Device
		if err := json.Unmarshal([]byte(raw), &device); err != nil {
			continue
		}
		devices = append(devices, device)
	}
	return devices, nil
}

func (s *RedisStore) AppendRecord(ctx context.Context, kind models.Kind, rec models.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, recordKey(kind), data)
	pipe.LTrim(ctx, recordKey(kind), 0, RetentionPerKind-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) ListRecent(ctx context.Context, kind models.Kind, limit int) ([]models.Record, error) {
	max := ClampLimit(limit)

	lines, err := s.client.LRange(ctx, recordKey(kind), 0, int64(max)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]models.Record, 0, len(lines))
	for _, line := range lines {
		var rec models.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *RedisStore) SeenNonce(ctx context.Context, deviceID, nonce string, timestampMs int64) (bool, error) {
	// The entry lives until timestamp + TTL on the wall clock; SETNX with
	// that remaining lifetime is the whole check-and-set.
	expiry := time.Until(time.UnixMilli(timestampMs).Add(s.nonceTTL))
	if expiry <= 0 {
		return false, nil
	}

	stored, err := s.client.SetNX(ctx, nonceKey(deviceID, nonce), 1, expiry).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return !stored, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
