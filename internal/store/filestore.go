package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"lodestar/internal/crypto"
	"lodestar/internal/models"
)

// FileStore persists everything under a single data directory: the device
// collection as one pretty-printed JSON array, each telemetry kind as a
// newline-delimited JSON log, and one nonce cache file per device. Writers
// are serialized per concern so concurrent appends cannot interleave lines.
type FileStore struct {
	dataDir  string
	nonceTTL time.Duration

	deviceMu sync.Mutex
	nonceMu  sync.Mutex
	recordMu map[models.Kind]*sync.Mutex
}

type nonceEntry struct {
	Nonce string `json:"nonce"`
	TS    int64  `json:"ts"`
}

func NewFileStore(dataDir string, nonceTTL time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s := &FileStore{
		dataDir:  dataDir,
		nonceTTL: nonceTTL,
		recordMu: make(map[models.Kind]*sync.Mutex, len(models.Kinds)),
	}
	for _, kind := range models.Kinds {
		s.recordMu[kind] = &sync.Mutex{}
	}

	if err := ensureFile(s.devicesFile(), "[]\n"); err != nil {
		return nil, err
	}
	for _, kind := range models.Kinds {
		if err := ensureFile(s.recordFile(kind), ""); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func ensureFile(path, initial string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *FileStore) devicesFile() string {
	return filepath.Join(s.dataDir, "devices.json")
}

func (s *FileStore) recordFile(kind models.Kind) string {
	return filepath.Join(s.dataDir, string(kind)+"s.ndjson")
}

func (s *FileStore) nonceFile(deviceID string) string {
	// Device ids are opaque client strings; escape them so they cannot
	// name a path outside the data directory.
	return filepath.Join(s.dataDir, "nonce-"+url.PathEscape(deviceID)+".json")
}

func (s *FileStore) readDevices() ([]models.Device, error) {
	raw, err := os.ReadFile(s.devicesFile())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var devices []models.Device
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return devices, nil
}

func (s *FileStore) writeDevices(devices []models.Device) error {
	data, err := json.MarshalIndent(devices, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := os.WriteFile(s.devicesFile(), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *FileStore) UpsertDevice(ctx context.Context, deviceID, secret string) (models.Device, error) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()

	devices, err := s.readDevices()
	if err != nil {
		return models.Device{}, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	secretHash := crypto.SHA256Hex(secret)

	idx := -1
	for i := range devices {
		if devices[i].DeviceID == deviceID {
			idx = i
			break
		}
	}

	var device models.Device
	if idx == -1 {
		device = models.Device{DeviceID: deviceID, SecretHash: secretHash, CreatedAt: now, UpdatedAt: now}
		devices = append(devices, device)
	} else {
		devices[idx].SecretHash = secretHash
		devices[idx].UpdatedAt = now
		device = devices[idx]
	}

	if err := s.writeDevices(devices); err != nil {
		return models.Device{}, err
	}
	return device, nil
}

func (s *FileStore) FindDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()

	devices, err := s.readDevices()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].DeviceID == deviceID {
			d := devices[i]
			return &d, nil
		}
	}
	return nil, nil
}

func (s *FileStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()
	return s.readDevices()
}

func (s *FileStore) AppendRecord(ctx context.Context, kind models.Kind, rec models.Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	mu := s.recordMu[kind]
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(s.recordFile(kind), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *FileStore) ListRecent(ctx context.Context, kind models.Kind, limit int) ([]models.Record, error) {
	max := ClampLimit(limit)

	mu := s.recordMu[kind]
	mu.Lock()
	raw, err := os.ReadFile(s.recordFile(kind))
	mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) > max {
		lines = lines[len(lines)-max:]
	}

	records := make([]models.Record, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var rec models.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue // tolerate a torn or corrupt line
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *FileStore) SeenNonce(ctx context.Context, deviceID, nonce string, timestampMs int64) (bool, error) {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()

	path := s.nonceFile(deviceID)
	var entries []nonceEntry
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, &entries); err != nil {
			entries = nil
		}
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := time.Now().UnixMilli()
	live := entries[:0]
	for _, e := range entries {
		if now-e.TS < s.nonceTTL.Milliseconds() {
			live = append(live, e)
		}
	}

	for _, e := range live {
		if e.Nonce == nonce {
			return true, nil
		}
	}

	live = append(live, nonceEntry{Nonce: nonce, TS: timestampMs})
	data, err := json.Marshal(live)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return false, nil
}

func (s *FileStore) Close() error {
	return nil
}
