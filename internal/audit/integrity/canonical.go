// Package integrity computes event checksums and HMAC signatures over a
// canonical JSON form.
//
// The canonical form is the event's JSON re-encoded through a generic map, so
// object keys are sorted at every depth and numbers keep their literal text.
package integrity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"haven/internal/audit/models"
)

const (
	fieldChecksum  = "checksum"
	fieldSignature = "digitalSignature"
	fieldReportSig = "signature"
)

// Canonical returns the sorted-key JSON of v with the named top-level keys removed.
func Canonical(v any, exclude ...string) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for canonical form: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic map[string]any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode for canonical form: %w", err)
	}
	for _, k := range exclude {
		delete(generic, k)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("encode canonical form: %w", err)
	}
	return out, nil
}

// eventForHashing normalizes fields whose Go representation may differ while
// their meaning does not.
func eventForHashing(e *models.AuditEvent) models.AuditEvent {
	c := *e
	c.Timestamp = e.Timestamp.UTC()
	return c
}

// Checksum is the hex SHA-256 of the event's canonical form, excluding the
// checksum and signature fields.
func Checksum(e *models.AuditEvent) (string, error) {
	canon, err := Canonical(eventForHashing(e), fieldChecksum, fieldSignature)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether the stored checksum matches the event's current fields.
func Verify(e *models.AuditEvent) bool {
	if e.Checksum == "" {
		return false
	}
	sum, err := Checksum(e)
	if err != nil {
		return false
	}
	return sum == e.Checksum
}
