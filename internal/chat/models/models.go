// Package models defines chat submissions, stored messages and rooms.
package models

import (
	"time"

	"haven/internal/crisis"
	"haven/internal/moderation"
	id "haven/pkg/domain"
)

// Submission is a member's message before any checks.
type Submission struct {
	RoomID      string                  `json:"-"`
	Text        string                  `json:"text"`
	Attachments []moderation.Attachment `json:"attachments,omitempty"`
}

// Status is the fate of a submission.
type Status string

const (
	StatusDelivered   Status = "delivered"
	StatusRejected    Status = "rejected"
	StatusBlocked     Status = "blocked"
	StatusRateLimited Status = "rate_limited"
)

// CrisisSupport is returned to the sender when crisis language was detected.
type CrisisSupport struct {
	Severity          crisis.Severity `json:"severity"`
	RequiresImmediate bool            `json:"requiresImmediate"`
	SuggestedResponse string          `json:"suggestedResponse"`
}

// Outcome reports what happened to a submission. Code and Reason are set for
// every status except delivered; Reason is safe to show to the member.
type Outcome struct {
	Status     Status              `json:"status"`
	MessageID  string              `json:"messageId,omitempty"`
	Text       string              `json:"text,omitempty"`
	Code       string              `json:"code,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	RetryAfter int                 `json:"retryAfter,omitempty"`
	Moderated  bool                `json:"moderated"`
	Category   moderation.Category `json:"moderationCategory,omitempty"`
	Crisis     *CrisisSupport      `json:"crisis,omitempty"`
}

// Message is a delivered chat message. Text is the moderated text.
type Message struct {
	ID          id.MessageID            `json:"id"`
	RoomID      string                  `json:"roomId"`
	UserID      string                  `json:"userId"`
	Text        string                  `json:"text"`
	Attachments []moderation.Attachment `json:"attachments,omitempty"`
	Moderated   bool                    `json:"moderated"`
	CreatedAt   time.Time               `json:"createdAt"`
}

// Room is a chat room and its moderation settings.
type Room struct {
	ID    string               `json:"id"`
	Name  string               `json:"name"`
	Rules moderation.RoomRules `json:"rules"`
}
