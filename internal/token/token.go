// Package token derives and verifies ticket admission tokens.
//
// A token is the hex encoded HMAC-SHA256 of the ticket's issuance material
// keyed by a process-wide secret. Issuance material is the ticket id for a
// ticket's first holder and "<id>:<generation>" after each transfer, so a
// transfer re-issues the token and the previous QR code stops verifying.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
)

var ErrMissingSecret = errors.New("token: admission secret is not configured")

type Service struct {
	secret []byte
}

// NewService returns a Service keyed by secret. An empty secret is a
// configuration error the caller should treat as fatal.
func NewService(secret string) (*Service, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Service{secret: []byte(secret)}, nil
}

// Derive returns the token for a ticket id at generation 0.
func (s *Service) Derive(ticketID string) string {
	return s.DeriveGeneration(ticketID, 0)
}

// DeriveGeneration returns the token for a ticket id after generation
// transfers.
func (s *Service) DeriveGeneration(ticketID string, generation int) string {
	return hex.EncodeToString(s.sum(material(ticketID, generation)))
}

// Verify reports whether candidate is the generation 0 token of ticketID.
func (s *Service) Verify(ticketID, candidate string) bool {
	return s.VerifyGeneration(ticketID, 0, candidate)
}

// VerifyGeneration reports whether candidate is the token currently issued
// for ticketID. Malformed hex never verifies.
func (s *Service) VerifyGeneration(ticketID string, generation int, candidate string) bool {
	got, err := hex.DecodeString(candidate)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(got, s.sum(material(ticketID, generation)))
}

func (s *Service) sum(msg string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}

func material(ticketID string, generation int) string {
	if generation == 0 {
		return ticketID
	}
	return ticketID + ":" + strconv.Itoa(generation)
}
