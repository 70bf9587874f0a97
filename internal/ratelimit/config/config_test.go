package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPLimitDoublesUserLimit(t *testing.T) {
	cfg := DefaultConfig()

	user, ok := cfg.UserLimit(ActionPostMessage)
	require.True(t, ok)
	ip, ok := cfg.IPLimit(ActionPostMessage)
	require.True(t, ok)

	assert.Equal(t, user.MaxRequests*2, ip.MaxRequests)
	assert.Equal(t, user.Window, ip.Window)

	_, ok = cfg.IPLimit("unknown")
	assert.False(t, ok)
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file overrides and adds actions", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "limits.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
actions:
  post_message:
    max_requests: 5
    window: 1m
  upload_avatar:
    max_requests: 2
    window: 24h
`), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, ActionLimit{MaxRequests: 5, Window: time.Minute}, cfg.Actions[ActionPostMessage])
		assert.Equal(t, ActionLimit{MaxRequests: 2, Window: 24 * time.Hour}, cfg.Actions["upload_avatar"])
		assert.Equal(t, DefaultConfig().Actions[ActionCreateRoom], cfg.Actions[ActionCreateRoom])
	})

	t.Run("invalid limit is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "limits.yaml")
		require.NoError(t, os.WriteFile(path, []byte("actions:\n  post_message:\n    max_requests: 0\n    window: 1m\n"), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "post_message")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}
