// Package codec converts audit events to and from their encrypted at-rest form.
//
// Each record is sealed with AES-256-GCM under a fresh random nonce. The index
// columns that stay in plaintext (event id, timestamp, category, risk level,
// outcome, checksum) are bound as additional authenticated data, so editing any
// of them in the database breaks decryption just like editing the ciphertext.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"haven/internal/audit/integrity"
	"haven/internal/audit/models"
)

const (
	nonceSize = 12
	tagSize   = 16
	keySize   = 32
)

// Codec encrypts and decrypts audit events.
type Codec struct {
	aead cipher.AEAD
}

// New builds a codec from a 32-byte encryption key.
func New(key []byte) (*Codec, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: encryption key must be %d bytes", models.ErrConfiguration, keySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals a fully prepared event. The checksum must already be set.
func (c *Codec) Encrypt(e *models.AuditEvent) (models.EncryptedRecord, error) {
	if e.Checksum == "" {
		return models.EncryptedRecord{}, errors.New("encrypt: event has no checksum")
	}
	plaintext, err := marshal(e)
	if err != nil {
		return models.EncryptedRecord{}, fmt.Errorf("encrypt: %w", err)
	}

	rec := models.EncryptedRecord{
		EventID:     e.EventID,
		Timestamp:   e.Timestamp.UTC(),
		Category:    e.Category,
		RiskLevel:   e.RiskLevel,
		Outcome:     e.Outcome,
		Checksum:    e.Checksum,
		RetainUntil: e.RetainUntil().UTC(),
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return models.EncryptedRecord{}, fmt.Errorf("encrypt: nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, additionalData(rec))

	split := len(sealed) - tagSize
	rec.IV = nonce
	rec.Ciphertext = sealed[:split]
	rec.AuthTag = sealed[split:]
	return rec, nil
}

// Decrypt opens a record and re-verifies the embedded checksum. Every failure,
// including a checksum mismatch or index columns that disagree with the
// payload, wraps models.ErrDecryptionFailure.
func (c *Codec) Decrypt(rec models.EncryptedRecord) (*models.AuditEvent, error) {
	if len(rec.IV) != nonceSize || len(rec.AuthTag) != tagSize {
		return nil, fmt.Errorf("%w: malformed record %s", models.ErrDecryptionFailure, rec.EventID)
	}
	sealed := make([]byte, 0, len(rec.Ciphertext)+tagSize)
	sealed = append(sealed, rec.Ciphertext...)
	sealed = append(sealed, rec.AuthTag...)

	plaintext, err := c.aead.Open(nil, rec.IV, sealed, additionalData(rec))
	if err != nil {
		return nil, fmt.Errorf("%w: record %s failed authentication", models.ErrDecryptionFailure, rec.EventID)
	}

	var e models.AuditEvent
	if err := unmarshal(plaintext, &e); err != nil {
		return nil, fmt.Errorf("%w: record %s: %v", models.ErrDecryptionFailure, rec.EventID, err)
	}
	e.Timestamp = e.Timestamp.UTC()

	if e.EventID != rec.EventID || e.Checksum != rec.Checksum {
		return nil, fmt.Errorf("%w: record %s index mismatch", models.ErrDecryptionFailure, rec.EventID)
	}
	if !integrity.Verify(&e) {
		return nil, fmt.Errorf("%w: record %s checksum mismatch", models.ErrDecryptionFailure, rec.EventID)
	}
	return &e, nil
}

// additionalData binds the plaintext index columns to the ciphertext.
func additionalData(rec models.EncryptedRecord) []byte {
	return []byte(strings.Join([]string{
		rec.EventID.String(),
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		string(rec.Category),
		string(rec.RiskLevel),
		string(rec.Outcome),
		rec.Checksum,
	}, "|"))
}

func marshal(e *models.AuditEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(b []byte, e *models.AuditEvent) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	return dec.Decode(e)
}
