package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Runtime is the scheduler configuration, loadable from sigil.yaml.
type Runtime struct {
	// Shards is the number of scheduler shards. Each shard runs ready tasks
	// on a single logical thread; actors are pinned to one shard.
	Shards int `yaml:"shards,omitempty"`

	// MailboxCapacity bounds actor mailboxes. 0 means unbounded; a sender to
	// a full bounded mailbox suspends.
	MailboxCapacity int `yaml:"mailbox_capacity,omitempty"`

	Trace Trace `yaml:"trace,omitempty"`
}

// Trace configures the transition journal.
type Trace struct {
	// Ring is the in-memory journal size in transitions.
	Ring int `yaml:"ring,omitempty"`

	// Path, when set, mirrors the journal into a SQLite database.
	Path string `yaml:"path,omitempty"`
}

// DefaultRuntime returns the configuration used when no sigil.yaml exists.
func DefaultRuntime() Runtime {
	return Runtime{
		Shards:          DefaultShards,
		MailboxCapacity: DefaultMailboxCapacity,
		Trace:           Trace{Ring: DefaultTraceRing},
	}
}

// ParseRuntime parses YAML configuration. Missing fields keep their defaults.
func ParseRuntime(data []byte, filename string) (Runtime, error) {
	cfg := DefaultRuntime()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Runtime{}, fmt.Errorf("%s: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return Runtime{}, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

// LoadRuntime reads and parses a configuration file.
func LoadRuntime(path string) (Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Runtime{}, err
	}
	return ParseRuntime(data, path)
}

func (r Runtime) Validate() error {
	if r.Shards < 1 {
		return fmt.Errorf("shards must be >= 1, got %d", r.Shards)
	}
	if r.MailboxCapacity < 0 {
		return fmt.Errorf("mailbox_capacity must be >= 0, got %d", r.MailboxCapacity)
	}
	if r.Trace.Ring < 0 {
		return fmt.Errorf("trace.ring must be >= 0, got %d", r.Trace.Ring)
	}
	return nil
}
