package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"haven/internal/audit/models"
)

// Signer produces and checks HMAC-SHA256 signatures for events and reports.
// Its key must differ from the record encryption key.
type Signer struct {
	key []byte
}

// NewSigner fails on an empty key; signing is never skipped silently.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: signing key is empty", models.ErrConfiguration)
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Signer{key: k}, nil
}

func (s *Signer) mac(data []byte) string {
	h := hmac.New(sha256.New, s.key)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Sign signs the canonical event including its checksum, so the checksum must
// already be set.
func (s *Signer) Sign(e *models.AuditEvent) (string, error) {
	if e.Checksum == "" {
		return "", fmt.Errorf("sign event: checksum not computed")
	}
	canon, err := Canonical(eventForHashing(e), fieldSignature)
	if err != nil {
		return "", err
	}
	return s.mac(canon), nil
}

// VerifySignature checks the event's digital signature in constant time.
func (s *Signer) VerifySignature(e *models.AuditEvent) bool {
	if e.DigitalSignature == "" {
		return false
	}
	expected, err := s.Sign(e)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(e.DigitalSignature))
}

// Seal sets the checksum and, for HIGH and CRITICAL events, the signature.
// Any previous values are replaced.
func (s *Signer) Seal(e *models.AuditEvent) error {
	e.Checksum = ""
	e.DigitalSignature = ""
	sum, err := Checksum(e)
	if err != nil {
		return err
	}
	e.Checksum = sum
	if !e.RiskLevel.RequiresSignature() {
		return nil
	}
	sig, err := s.Sign(e)
	if err != nil {
		return err
	}
	e.DigitalSignature = sig
	return nil
}

// VerifyEvent checks the checksum and the signature rule for the event's risk level.
func (s *Signer) VerifyEvent(e *models.AuditEvent) bool {
	if !Verify(e) {
		return false
	}
	if e.RiskLevel.RequiresSignature() {
		return s.VerifySignature(e)
	}
	return e.DigitalSignature == ""
}

// SignReport signs the canonical report with its signature field removed.
func (s *Signer) SignReport(r *models.ComplianceReport) (string, error) {
	canon, err := Canonical(r, fieldReportSig)
	if err != nil {
		return "", err
	}
	return s.mac(canon), nil
}

// VerifyReport checks a report signature in constant time.
func (s *Signer) VerifyReport(r *models.ComplianceReport) bool {
	if r.Signature == "" {
		return false
	}
	expected, err := s.SignReport(r)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(r.Signature))
}
