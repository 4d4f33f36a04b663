package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"bookstore-api/internal/apperr"
)

// ChecksumSigner signs outbound gateway requests and verifies inbound
// callback payloads. The gateway contract is HMAC-SHA256 over the exact
// serialized body with a shared merchant secret.
type ChecksumSigner interface {
	Sign(body []byte) (string, error)
	Verify(body []byte, signature string) bool
}

// HMACSigner is the shared-secret ChecksumSigner implementation
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner creates a signer with the merchant secret
func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

// Sign computes the hex HMAC-SHA256 checksum of the body
func (s *HMACSigner) Sign(body []byte) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("gateway secret not configured: %w", apperr.ErrSigning)
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify re-derives the checksum over the received payload and compares
// in constant time. Any mismatch means the payload must be rejected,
// regardless of what the payload itself claims.
func (s *HMACSigner) Verify(body []byte, signature string) bool {
	if len(s.secret) == 0 || signature == "" {
		return false
	}
	expected, err := s.Sign(body)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
