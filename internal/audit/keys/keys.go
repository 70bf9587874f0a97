// Package keys turns the AUDIT_LOG_KEY master secret into separate signing and
// record-encryption keys.
//
// One operator-managed secret feeds both, but HKDF with distinct labels keeps
// the HMAC key and the AES key independent: learning one does not reveal the
// other. Keys are loaded once at startup and never rotated in-process.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"haven/internal/audit/models"
)

// MinMasterKeyBytes is the minimum decoded master key length.
const MinMasterKeyBytes = 32

const (
	signingInfo    = "haven/audit/signing/v1"
	encryptionInfo = "haven/audit/record-encryption/v1"
	derivedKeySize = 32
)

// Set holds the derived audit keys.
type Set struct {
	Signing    []byte
	Encryption []byte
}

// ParseMaster decodes a master key given as hex or base64. Anything shorter than
// MinMasterKeyBytes is a configuration error; there is no auto-generated fallback.
func ParseMaster(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: AUDIT_LOG_KEY is not set", models.ErrConfiguration)
	}
	if b, err := hex.DecodeString(raw); err == nil && len(b) >= MinMasterKeyBytes {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) >= MinMasterKeyBytes {
		return b, nil
	}
	return nil, fmt.Errorf("%w: AUDIT_LOG_KEY must decode (hex or base64) to at least %d bytes",
		models.ErrConfiguration, MinMasterKeyBytes)
}

// Derive expands the master key into the signing and encryption keys.
func Derive(master []byte) (*Set, error) {
	if len(master) < MinMasterKeyBytes {
		return nil, fmt.Errorf("%w: master key too short", models.ErrConfiguration)
	}
	signing, err := expand(master, signingInfo)
	if err != nil {
		return nil, err
	}
	encryption, err := expand(master, encryptionInfo)
	if err != nil {
		return nil, err
	}
	return &Set{Signing: signing, Encryption: encryption}, nil
}

// FromEnvValue parses and derives in one step.
func FromEnvValue(raw string) (*Set, error) {
	master, err := ParseMaster(raw)
	if err != nil {
		return nil, err
	}
	return Derive(master)
}

func expand(master []byte, info string) ([]byte, error) {
	out := make([]byte, derivedKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return out, nil
}

// Generate returns a new random master key, hex encoded.
func Generate() (string, error) {
	b := make([]byte, MinMasterKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
