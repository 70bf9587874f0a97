// Package config holds the per-action rate limit table.
//
// Defaults are compiled in; a YAML file may override or add actions:
//
//	actions:
//	  post_message:
//	    max_requests: 30
//	    window: 1m
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Action names used by the chat and audit surfaces.
const (
	ActionPostMessage  = "post_message"
	ActionCreateRoom   = "create_room"
	ActionReportUser   = "report_user"
	ActionAuditQuery   = "audit_query"
	ActionAuditReport  = "audit_report"
	ActionCrisisReport = "crisis_report"
)

// IPMultiplier scales a user limit to the per-IP limit for the same action.
// Several members can share a clinic or household address.
const IPMultiplier = 2

// DefaultSweepInterval is how often stale windows are removed.
const DefaultSweepInterval = time.Minute

// ActionLimit is a fixed-window limit for a single action.
type ActionLimit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// Validate reports whether the limit can be enforced.
func (l ActionLimit) Validate() error {
	if l.MaxRequests <= 0 {
		return fmt.Errorf("max_requests must be positive, got %d", l.MaxRequests)
	}
	if l.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", l.Window)
	}
	return nil
}

// Config is the action table.
type Config struct {
	Actions map[string]ActionLimit `yaml:"actions"`
}

// DefaultConfig returns the built-in action table.
func DefaultConfig() *Config {
	return &Config{
		Actions: map[string]ActionLimit{
			ActionPostMessage:  {MaxRequests: 30, Window: time.Minute},
			ActionCreateRoom:   {MaxRequests: 5, Window: time.Hour},
			ActionReportUser:   {MaxRequests: 10, Window: time.Hour},
			ActionAuditQuery:   {MaxRequests: 60, Window: time.Minute},
			ActionAuditReport:  {MaxRequests: 10, Window: time.Hour},
			ActionCrisisReport: {MaxRequests: 20, Window: time.Hour},
		},
	}
}

// UserLimit returns the per-user limit for action.
func (c *Config) UserLimit(action string) (ActionLimit, bool) {
	l, ok := c.Actions[action]
	return l, ok
}

// IPLimit returns the per-IP limit for action, IPMultiplier times the user limit.
func (c *Config) IPLimit(action string) (ActionLimit, bool) {
	l, ok := c.Actions[action]
	if !ok {
		return ActionLimit{}, false
	}
	l.MaxRequests *= IPMultiplier
	return l, true
}

// Load returns the defaults overlaid with the actions in the YAML file at path.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limit file: %w", err)
	}
	if err := cfg.merge(raw); err != nil {
		return nil, fmt.Errorf("rate limit file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) merge(raw []byte) error {
	var override Config
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	for name, limit := range override.Actions {
		if err := limit.Validate(); err != nil {
			return fmt.Errorf("action %q: %w", name, err)
		}
		c.Actions[name] = limit
	}
	return nil
}
