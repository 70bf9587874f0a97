package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey_SanitizesSegments(t *testing.T) {
	assert.Equal(t, "user:alice_admin:post_message", Key(ScopeUser, "alice:admin", "post_message"))
	assert.Equal(t, "ip:__1:post_message", Key(ScopeIP, "::1", "post_message"))
}

func TestNewResult(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := Window{Count: 5, ResetAt: now.Add(30 * time.Second)}

	allowed := NewResult("post_message", ScopeUser, 5, w, true, now)
	assert.Equal(t, 0, allowed.Remaining)
	assert.Zero(t, allowed.RetryAfter)

	denied := NewResult("post_message", ScopeUser, 5, w, false, now)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 30, denied.RetryAfter)

	late := NewResult("post_message", ScopeUser, 5, w, false, w.ResetAt)
	assert.Equal(t, 1, late.RetryAfter)
}

func TestWindowExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := Window{Count: 1, ResetAt: now}

	assert.False(t, w.Expired(now))
	assert.True(t, w.Expired(now.Add(time.Millisecond)))
}
