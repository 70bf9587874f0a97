package moderation

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Decision codes. Reason carries the user-facing text.
const (
	CodeEmpty              = "empty"
	CodeTooLong            = "too_long"
	CodeTooManyAttachments = "too_many_attachments"
	CodeAttachmentTooLarge = "attachment_too_large"
	CodeAttachmentType     = "attachment_type"
	CodeRepeatedCharacters = "repeated_characters"
	CodeExcessiveCaps      = "excessive_caps"
	CodeDuplicate          = "duplicate_message"
	CodeTooManyLinks       = "too_many_links"
	CodeSuspiciousLink     = "suspicious_link"
	CodeSlowMode           = "slow_mode"
	CodeRoomProfanity      = "room_profanity"
	CodeRoomMaxLength      = "room_max_length"
)

const (
	DefaultMinLength          = 1
	DefaultMaxLength          = 2000
	DefaultMaxAttachments     = 5
	DefaultMaxAttachmentBytes = 10 << 20

	repeatedRunThreshold = 10
	capsMinLetters       = 10
	capsRatio            = 0.8
	duplicateLimit       = 3
	duplicateWindow      = 60 * time.Second
	maxLinks             = 3
)

// DefaultAllowedMIMETypes lists the attachment types accepted by default.
var DefaultAllowedMIMETypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
}

// Attachment describes an uploaded file; content is stored elsewhere.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Message is the unit checked by the Validator.
type Message struct {
	UserID      string
	RoomID      string
	Text        string
	Attachments []Attachment
}

// RoomRules are per-room settings applied after the global checks.
type RoomRules struct {
	// SlowMode is the minimum interval between two messages of one member.
	SlowMode time.Duration `json:"slowMode"`
	// BlockProfanity rejects messages with listed words instead of masking them.
	BlockProfanity bool `json:"blockProfanity"`
	// MaxLength is zero when the room uses the global limit.
	MaxLength int `json:"maxLength"`
}

// Decision is the outcome of Validate.
type Decision struct {
	Valid  bool   `json:"valid"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func reject(code, reason string) Decision {
	return Decision{Code: code, Reason: reason}
}

// Limits are the global message limits.
type Limits struct {
	MinLength          int
	MaxLength          int
	MaxAttachments     int
	MaxAttachmentBytes int64
	AllowedMIMETypes   []string
}

// DefaultLimits returns the built-in limits.
func DefaultLimits() Limits {
	return Limits{
		MinLength:          DefaultMinLength,
		MaxLength:          DefaultMaxLength,
		MaxAttachments:     DefaultMaxAttachments,
		MaxAttachmentBytes: DefaultMaxAttachmentBytes,
		AllowedMIMETypes:   slices.Clone(DefaultAllowedMIMETypes),
	}
}

type sentMessage struct {
	fingerprint string
	at          time.Time
}

// Validator checks messages before moderation. It remembers recent accepted
// messages per member for duplicate and slow-mode checks.
type Validator struct {
	limits    Limits
	profanity *ProfanityFilter
	links     *LinkChecker
	clock     func() time.Time

	mu       sync.Mutex
	recent   map[string][]sentMessage
	lastPost map[string]time.Time
}

type ValidatorOption func(*Validator)

func WithLimits(l Limits) ValidatorOption {
	return func(v *Validator) {
		v.limits = l
	}
}

func WithProfanityFilter(f *ProfanityFilter) ValidatorOption {
	return func(v *Validator) {
		if f != nil {
			v.profanity = f
		}
	}
}

func WithLinkChecker(c *LinkChecker) ValidatorOption {
	return func(v *Validator) {
		if c != nil {
			v.links = c
		}
	}
}

// WithValidatorClock overrides time.Now, for tests.
func WithValidatorClock(clock func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.clock = clock
	}
}

func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		limits:    DefaultLimits(),
		profanity: NewProfanityFilter(),
		links:     NewLinkChecker(),
		clock:     time.Now,
		recent:    make(map[string][]sentMessage),
		lastPost:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs length, attachment, spam and room checks in that order and
// stops at the first failure. Accepted messages are remembered. The history
// lock is held from the first check to remember, so concurrent posts from one
// member are judged one after the other.
func (v *Validator) Validate(msg Message, room RoomRules) Decision {
	now := v.clock()
	v.mu.Lock()
	defer v.mu.Unlock()

	checks := []func() Decision{
		func() Decision { return v.checkLength(msg) },
		func() Decision { return v.checkAttachments(msg.Attachments) },
		func() Decision { return v.checkSpam(msg, now) },
		func() Decision { return v.checkRoom(msg, room, now) },
	}
	for _, check := range checks {
		if d := check(); !d.Valid {
			return d
		}
	}

	v.remember(msg, now)
	return Decision{Valid: true}
}

func (v *Validator) checkLength(msg Message) Decision {
	n := utf8.RuneCountInString(strings.TrimSpace(msg.Text))
	if n < v.limits.MinLength && len(msg.Attachments) == 0 {
		return reject(CodeEmpty, "Message cannot be empty")
	}
	if n > v.limits.MaxLength {
		return reject(CodeTooLong, fmt.Sprintf("Message is too long (maximum %d characters)", v.limits.MaxLength))
	}
	return Decision{Valid: true}
}

func (v *Validator) checkAttachments(attachments []Attachment) Decision {
	if len(attachments) > v.limits.MaxAttachments {
		return reject(CodeTooManyAttachments, fmt.Sprintf("Too many attachments (maximum %d)", v.limits.MaxAttachments))
	}
	for _, a := range attachments {
		if a.Size > v.limits.MaxAttachmentBytes {
			return reject(CodeAttachmentTooLarge, fmt.Sprintf("Attachment %q is too large (maximum %d MB)", a.Name, v.limits.MaxAttachmentBytes>>20))
		}
		if !slices.Contains(v.limits.AllowedMIMETypes, strings.ToLower(a.MIMEType)) {
			return reject(CodeAttachmentType, fmt.Sprintf("Attachment type %q is not allowed", a.MIMEType))
		}
	}
	return Decision{Valid: true}
}

func (v *Validator) checkSpam(msg Message, now time.Time) Decision {
	text := msg.Text
	if longestRun(text) >= repeatedRunThreshold {
		return reject(CodeRepeatedCharacters, "Message contains too many repeated characters")
	}
	if upper, letters := letterCounts(text); letters > capsMinLetters && float64(upper)/float64(letters) > capsRatio {
		return reject(CodeExcessiveCaps, "Please avoid writing in all capital letters")
	}
	if v.duplicates(msg, now) >= duplicateLimit {
		return reject(CodeDuplicate, "You have already sent this message several times")
	}

	urls := ExtractURLs(text)
	if len(urls) > maxLinks {
		return reject(CodeTooManyLinks, fmt.Sprintf("Too many links (maximum %d)", maxLinks))
	}
	for _, u := range urls {
		if v.links.Suspicious(u) {
			return reject(CodeSuspiciousLink, "Message contains a link that is not allowed")
		}
	}
	return Decision{Valid: true}
}

func (v *Validator) checkRoom(msg Message, room RoomRules, now time.Time) Decision {
	if room.SlowMode > 0 {
		last, ok := v.lastPost[roomKey(msg)]
		if ok && now.Sub(last) < room.SlowMode {
			wait := room.SlowMode - now.Sub(last)
			return reject(CodeSlowMode, fmt.Sprintf("Slow mode is on. You can post again in %d seconds", int(wait.Seconds())+1))
		}
	}
	if room.BlockProfanity && v.profanity.Contains(msg.Text) {
		return reject(CodeRoomProfanity, "This room does not allow inappropriate language")
	}
	if room.MaxLength > 0 && utf8.RuneCountInString(strings.TrimSpace(msg.Text)) > room.MaxLength {
		return reject(CodeRoomMaxLength, fmt.Sprintf("Messages in this room are limited to %d characters", room.MaxLength))
	}
	return Decision{Valid: true}
}

// duplicates counts identical messages from the member within the window.
// Callers hold v.mu.
func (v *Validator) duplicates(msg Message, now time.Time) int {
	fp := fingerprint(msg.Text)
	if fp == "" {
		return 0
	}
	n := 0
	for _, m := range v.recent[msg.UserID] {
		if m.fingerprint == fp && now.Sub(m.at) <= duplicateWindow {
			n++
		}
	}
	return n
}

// remember records an accepted message. Callers hold v.mu.
func (v *Validator) remember(msg Message, now time.Time) {
	kept := v.recent[msg.UserID][:0]
	for _, m := range v.recent[msg.UserID] {
		if now.Sub(m.at) <= duplicateWindow {
			kept = append(kept, m)
		}
	}
	if fp := fingerprint(msg.Text); fp != "" {
		kept = append(kept, sentMessage{fingerprint: fp, at: now})
	}
	v.recent[msg.UserID] = kept
	v.lastPost[roomKey(msg)] = now
}

// Prune forgets history older than maxAge and returns the number of members dropped.
func (v *Validator) Prune(maxAge time.Duration) int {
	now := v.clock()
	v.mu.Lock()
	defer v.mu.Unlock()

	dropped := 0
	for user, msgs := range v.recent {
		if len(msgs) == 0 || now.Sub(msgs[len(msgs)-1].at) > duplicateWindow {
			delete(v.recent, user)
			dropped++
		}
	}
	for key, at := range v.lastPost {
		if now.Sub(at) > maxAge {
			delete(v.lastPost, key)
		}
	}
	return dropped
}

func roomKey(msg Message) string {
	return msg.RoomID + "|" + msg.UserID
}

func fingerprint(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
