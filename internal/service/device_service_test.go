package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"lodestar/internal/auth"
	"lodestar/internal/store"
)

func newDevices(t *testing.T) DeviceService {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir(), 15*time.Minute)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	tokens := auth.NewTokenService("test-secret", 7*24*time.Hour)
	return NewDeviceService(st, tokens)
}

func TestVerifySecret_AfterUpsert(t *testing.T) {
	devices := newDevices(t)
	ctx := context.Background()

	if _, err := devices.Upsert(ctx, "dev-1", "s3cret"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ok, err := devices.VerifySecret(ctx, "dev-1", "s3cret")
	if err != nil {
		t.Fatalf("VerifySecret: %v", err)
	}
	if !ok {
		t.Fatalf("correct secret did not verify")
	}

	ok, err = devices.VerifySecret(ctx, "dev-1", "wrong")
	if err != nil {
		t.Fatalf("VerifySecret wrong: %v", err)
	}
	if ok {
		t.Fatalf("wrong secret verified")
	}

	// Absent device verifies as false, not as an error.
	ok, err = devices.VerifySecret(ctx, "ghost", "s3cret")
	if err != nil {
		t.Fatalf("VerifySecret absent: %v", err)
	}
	if ok {
		t.Fatalf("absent device verified")
	}
}

func TestLogin_AutoRegistersUnknownDevice(t *testing.T) {
	devices := newDevices(t)
	ctx := context.Background()

	result, err := devices.Login(ctx, "dev-new", "first-secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !result.AutoRegistered {
		t.Fatalf("first contact not flagged as auto-registered")
	}
	if result.Token == "" {
		t.Fatalf("no token issued")
	}
	if result.ExpiresIn != 7*24*60*60 {
		t.Fatalf("expiresIn=%d, want 7 days in seconds", result.ExpiresIn)
	}

	// Second login must use the provisioned secret.
	result, err = devices.Login(ctx, "dev-new", "first-secret")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if result.AutoRegistered {
		t.Fatalf("known device flagged as auto-registered")
	}

	if _, err := devices.Login(ctx, "dev-new", "other-secret"); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("wrong secret: got %v, want ErrInvalidCredential", err)
	}
}

func TestLogin_RotatedSecretWins(t *testing.T) {
	devices := newDevices(t)
	ctx := context.Background()

	if _, err := devices.Upsert(ctx, "dev-1", "old"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := devices.Upsert(ctx, "dev-1", "new"); err != nil {
		t.Fatalf("re-Upsert: %v", err)
	}

	if _, err := devices.Login(ctx, "dev-1", "old"); !errors.Is(err, auth.ErrInvalidCredential) {
		t.Fatalf("stale secret: got %v, want ErrInvalidCredential", err)
	}
	if _, err := devices.Login(ctx, "dev-1", "new"); err != nil {
		t.Fatalf("rotated secret rejected: %v", err)
	}
}
