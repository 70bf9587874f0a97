package models

import (
	"time"

	id "haven/pkg/domain"
)

// EncryptedRecord is the at-rest form of an AuditEvent. Index columns stay in
// plaintext so stores can filter and sort without decrypting.
type EncryptedRecord struct {
	EventID   id.EventID
	Timestamp time.Time
	Category  Category
	RiskLevel RiskLevel
	Outcome   Outcome
	Checksum  string

	IV         []byte
	Ciphertext []byte
	AuthTag    []byte

	RetainUntil time.Time
}
