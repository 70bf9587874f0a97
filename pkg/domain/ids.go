// Package domain holds typed identifiers shared across modules.
//
// Typed IDs keep an event ID from being passed where a report ID is expected.
// Parse functions are the trust boundary: they reject empty, malformed and nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "haven/pkg/domain-errors"
)

type (
	EventID   uuid.UUID
	ReportID  uuid.UUID
	AlertID   uuid.UUID
	MessageID uuid.UUID
)

func NewEventID() EventID     { return EventID(uuid.New()) }
func NewReportID() ReportID   { return ReportID(uuid.New()) }
func NewAlertID() AlertID     { return AlertID(uuid.New()) }
func NewMessageID() MessageID { return MessageID(uuid.New()) }

func (id EventID) String() string   { return uuid.UUID(id).String() }
func (id ReportID) String() string  { return uuid.UUID(id).String() }
func (id AlertID) String() string   { return uuid.UUID(id).String() }
func (id MessageID) String() string { return uuid.UUID(id).String() }

func (id EventID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ReportID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id EventID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *EventID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = EventID(u)
	return nil
}

func (id ReportID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ReportID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = ReportID(u)
	return nil
}

func (id AlertID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *AlertID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return err
	}
	*id = AlertID(u)
	return nil
}

func (id MessageID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event ID")
	return EventID(u), err
}

func ParseReportID(s string) (ReportID, error) {
	u, err := parseUUID(s, "report ID")
	return ReportID(u), err
}

func ParseAlertID(s string) (AlertID, error) {
	u, err := parseUUID(s, "alert ID")
	return AlertID(u), err
}

func ParseMessageID(s string) (MessageID, error) {
	u, err := parseUUID(s, "message ID")
	return MessageID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
