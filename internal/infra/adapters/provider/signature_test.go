//go:build !integration

package provider

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
)

func TestVersionedSignature(t *testing.T) {
	secret := []byte("whsec_test")
	payload := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)
	now := time.Now()

	t.Run("round trip", func(t *testing.T) {
		header := SignVersioned(secret, payload, now)
		if err := verifyVersionedSignature(secret, payload, header, DefaultTolerance, now); err != nil {
			t.Fatalf("valid signature rejected: %v", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := SignVersioned([]byte("other"), payload, now)
		err := verifyVersionedSignature(secret, payload, header, DefaultTolerance, now)
		if !errors.Is(err, domain.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := SignVersioned(secret, payload, now)
		err := verifyVersionedSignature(secret, []byte(`{"id":"evt_2"}`), header, DefaultTolerance, now)
		if !errors.Is(err, domain.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("stale timestamp", func(t *testing.T) {
		header := SignVersioned(secret, payload, now.Add(-10*time.Minute))
		err := verifyVersionedSignature(secret, payload, header, DefaultTolerance, now)
		if !errors.Is(err, domain.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid for stale ts, got %v", err)
		}
	})

	t.Run("future timestamp", func(t *testing.T) {
		header := SignVersioned(secret, payload, now.Add(10*time.Minute))
		err := verifyVersionedSignature(secret, payload, header, DefaultTolerance, now)
		if !errors.Is(err, domain.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid for future ts, got %v", err)
		}
	})

	t.Run("malformed headers", func(t *testing.T) {
		for _, header := range []string{"", "t=,v1=", "garbage", "t=abc,v1=def", "v1=deadbeef"} {
			err := verifyVersionedSignature(secret, payload, header, DefaultTolerance, now)
			if !errors.Is(err, domain.ErrSignatureInvalid) {
				t.Errorf("header %q: expected ErrSignatureInvalid, got %v", header, err)
			}
		}
	})
}

func TestTimestampedSignature(t *testing.T) {
	secret := []byte("whsec_wallet")
	payload := []byte(`{"event_id":"e1"}`)
	now := time.Now()

	t.Run("round trip", func(t *testing.T) {
		header := SignTimestamped(secret, payload, now)
		if err := verifyTimestampedSignature(secret, payload, header, DefaultTolerance, now); err != nil {
			t.Fatalf("valid signature rejected: %v", err)
		}
	})

	t.Run("swapped scheme is rejected", func(t *testing.T) {
		header := SignVersioned(secret, payload, now)
		err := verifyTimestampedSignature(secret, payload, header, DefaultTolerance, now)
		if !errors.Is(err, domain.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})

	t.Run("truncated signature is rejected", func(t *testing.T) {
		header := SignTimestamped(secret, payload, now)
		ts, sig, _ := strings.Cut(header, ":")
		err := verifyTimestampedSignature(secret, payload, ts+":"+sig[:8], DefaultTolerance, now)
		if !errors.Is(err, domain.ErrSignatureInvalid) {
			t.Fatalf("expected ErrSignatureInvalid, got %v", err)
		}
	})
}
