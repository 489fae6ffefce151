package service

import (
	"context"

	"lodestar/internal/auth"
	"lodestar/internal/crypto"
	"lodestar/internal/models"
	"lodestar/internal/store"
)

type DeviceService interface {
	Upsert(ctx context.Context, deviceID, secret string) (models.Device, error)
	Find(ctx context.Context, deviceID string) (*models.Device, error)
	List(ctx context.Context) ([]models.Device, error)
	VerifySecret(ctx context.Context, deviceID, secret string) (bool, error)
	Login(ctx context.Context, deviceID, secret string) (*LoginResult, error)
}

// LoginResult is what a successful device login returns to the transport
// layer. AutoRegistered marks a first-contact provisioning.
type LoginResult struct {
	Token          string
	ExpiresIn      int
	AutoRegistered bool
}

type deviceService struct {
	store  store.Store
	tokens *auth.TokenService
}

func NewDeviceService(st store.Store, tokens *auth.TokenService) DeviceService {
	return &deviceService{store: st, tokens: tokens}
}

func (s *deviceService) Upsert(ctx context.Context, deviceID, secret string) (models.Device, error) {
	return s.store.UpsertDevice(ctx, deviceID, secret)
}

func (s *deviceService) Find(ctx context.Context, deviceID string) (*models.Device, error) {
	return s.store.FindDevice(ctx, deviceID)
}

func (s *deviceService) List(ctx context.Context) ([]models.Device, error) {
	return s.store.ListDevices(ctx)
}

// VerifySecret reports whether secret matches the stored hash. An unknown
// device verifies as false, not as an error.
func (s *deviceService) VerifySecret(ctx context.Context, deviceID, secret string) (bool, error) {
	device, err := s.store.FindDevice(ctx, deviceID)
	if err != nil {
		return false, err
	}
	if device == nil {
		return false, nil
	}
	return crypto.TimingSafeEqualHex(device.SecretHash, crypto.SHA256Hex(secret)), nil
}

// Login implements the first-contact-wins provisioning policy: an unknown
// device id is registered from the supplied secret and issued a token
// immediately; a known device must present a matching secret. A mismatch
// fails with auth.ErrInvalidCredential and nothing more specific.
func (s *deviceService) Login(ctx context.Context, deviceID, secret string) (*LoginResult, error) {
	existing, err := s.store.FindDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	autoRegistered := false
	if existing == nil {
		if _, err := s.store.UpsertDevice(ctx, deviceID, secret); err != nil {
			return nil, err
		}
		autoRegistered = true
	} else {
		ok, err := s.VerifySecret(ctx, deviceID, secret)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, auth.ErrInvalidCredential
		}
	}

	token, err := s.tokens.Issue(deviceID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:          token,
		ExpiresIn:      int(s.tokens.TTL().Seconds()),
		AutoRegistered: autoRegistered,
	}, nil
}
