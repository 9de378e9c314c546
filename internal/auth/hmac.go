package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"os"
)

// PinEnvVar is the environment variable an HMACSigner's PIN is read from
// (spec.md §6: "An authentication mode may read a PIN from an environment
// variable; no other environment dependencies").
const PinEnvVar = "UBIFSCK_AUTH_PIN"

// HMACSigner implements Signer with HMAC-SHA256 over a key derived from a
// PIN, the simplest authenticated-superblock mode a UBIFS volume can be
// mounted with.
type HMACSigner struct {
	key []byte
}

// NewHMACSignerFromEnv builds an HMACSigner from the PIN found in
// PinEnvVar, returning ErrNoKey if it is unset or empty.
func NewHMACSignerFromEnv() (*HMACSigner, error) {
	pin := os.Getenv(PinEnvVar)
	if pin == "" {
		return nil, ErrNoKey
	}
	return NewHMACSigner([]byte(pin)), nil
}

// NewHMACSigner builds an HMACSigner from an explicit key, for tests and
// for auth modes that source the key some other way.
func NewHMACSigner(key []byte) *HMACSigner {
	return &HMACSigner{key: key}
}

func (s *HMACSigner) Sign(payload []byte) ([]byte, error) {
	if len(s.key) == 0 {
		return nil, ErrNoKey
	}
	mac := hmac.New(sha256.New, s.key)
	if _, err := mac.Write(payload); err != nil {
		return nil, fmt.Errorf("auth: hmac write: %w", err)
	}
	return mac.Sum(nil), nil
}

func (s *HMACSigner) Verify(payload, tag []byte) (bool, error) {
	want, err := s.Sign(payload)
	if err != nil {
		return false, err
	}
	return hmac.Equal(want, tag), nil
}
