package config

import "time"

// Config represents the complete widgetsync configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	API     APIConfig     `yaml:"api"`
	Kernel  KernelConfig  `yaml:"kernel"`
	Widgets WidgetsConfig `yaml:"widgets"`
	Journal JournalConfig `yaml:"journal"`

	// SourcePath and SourceHash describe the file Load read. SourceHash is the
	// BLAKE3 digest of the raw bytes before interpolation.
	SourcePath string `yaml:"-"`
	SourceHash string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
	// LockPath is a PID file guarding against two serve processes driving
	// the same document.
	LockPath string `yaml:"lock_path"`
}

// APIConfig defines the render surface HTTP transport.
type APIConfig struct {
	Listen          string        `yaml:"listen"`
	Token           string        `yaml:"token"`
	Tokens          []TokenEntry  `yaml:"tokens,omitempty"`
	// CORSOrigins lists browser origins allowed to reach /surface routes.
	CORSOrigins     []string      `yaml:"cors_origins,omitempty"`
	EventBuffer     int           `yaml:"event_buffer"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TokenEntry is a named bearer token limited to the listed scopes
// (surface:ro, surface:rw or *).
type TokenEntry struct {
	Name   string   `yaml:"name"`
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// KernelConfig describes the kernel bridge process and the connection options
// announced to the render surface.
type KernelConfig struct {
	Command  string            `yaml:"command"`
	Args     []string          `yaml:"args,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	Dir      string            `yaml:"dir,omitempty"`
	ID       string            `yaml:"id,omitempty"`
	Name     string            `yaml:"name"`
	Protocol string            `yaml:"protocol,omitempty"`
	Username string            `yaml:"username,omitempty"`

	// The bridge is respawned after RestartDelay when it exits, at most
	// MaxRestarts times. Each respawn is a kernel restart for the surface.
	RestartDelay time.Duration `yaml:"restart_delay"`
	MaxRestarts  int           `yaml:"max_restarts"`
}

// WidgetsConfig holds widget protocol markers and the document identity.
type WidgetsConfig struct {
	Document          string `yaml:"document"`
	DefaultCommTarget string `yaml:"default_comm_target"`
	MimeType          string `yaml:"mime_type"`
}

// JournalConfig controls the optional display_data journal.
type JournalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
	// PruneInterval is how often entries older than Retention are removed.
	PruneInterval time.Duration `yaml:"prune_interval"`
}
