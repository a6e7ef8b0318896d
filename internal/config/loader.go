package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/widgetsync/internal/auth"
	"github.com/mattjoyce/widgetsync/internal/protocol"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Defaults returns a configuration usable without a file apart from the
// kernel bridge command.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "widgetsync",
			LogLevel: "info",
			LockPath: "./widgetsync.lock",
		},
		API: APIConfig{
			Listen:          "127.0.0.1:8765",
			EventBuffer:     256,
			ShutdownTimeout: 10 * time.Second,
		},
		Kernel: KernelConfig{
			Name:         "python3",
			RestartDelay: 2 * time.Second,
			MaxRestarts:  5,
		},
		Widgets: WidgetsConfig{
			DefaultCommTarget: protocol.DefaultCommTarget,
			MimeType:          protocol.WidgetMimeType,
		},
		Journal: JournalConfig{
			Path:      "./widgetsync.db",
			Retention:     7 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
	}
}

// Load reads configPath over Defaults, interpolates ${VAR} references,
// verifies the file against a .checksums manifest when one exists and
// validates the result.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", absPath, err)
	}

	hash := Fingerprint(data)
	if err := verifyHash(absPath, hash); err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	cfg.SourceHash = hash

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Unset variables are left in place so validate can report them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func unresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}

	if cfg.Service.LockPath == "" {
		return fmt.Errorf("service.lock_path is required")
	}

	if cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}
	if cfg.API.EventBuffer <= 0 {
		return fmt.Errorf("api.event_buffer must be positive")
	}
	if cfg.API.ShutdownTimeout < 0 {
		return fmt.Errorf("api.shutdown_timeout must not be negative")
	}
	if err := unresolved("api.token", cfg.API.Token); err != nil {
		return err
	}
	seen := make(map[string]bool, len(cfg.API.Tokens))
	for i, t := range cfg.API.Tokens {
		field := fmt.Sprintf("api.tokens[%d]", i)
		if t.Name == "" {
			return fmt.Errorf("%s.name is required", field)
		}
		if seen[t.Name] {
			return fmt.Errorf("%s: duplicate token name %q", field, t.Name)
		}
		seen[t.Name] = true
		if t.Token == "" {
			return fmt.Errorf("%s.token is required", field)
		}
		if err := unresolved(field+".token", t.Token); err != nil {
			return err
		}
		if len(t.Scopes) == 0 {
			return fmt.Errorf("%s.scopes must not be empty", field)
		}
		for _, scope := range t.Scopes {
			if !auth.ValidScope(scope) {
				return fmt.Errorf("%s: unknown scope %q", field, scope)
			}
		}
	}

	if cfg.Kernel.Command == "" {
		return fmt.Errorf("kernel.command is required")
	}
	if err := unresolved("kernel.command", cfg.Kernel.Command); err != nil {
		return err
	}
	for i, arg := range cfg.Kernel.Args {
		if err := unresolved(fmt.Sprintf("kernel.args[%d]", i), arg); err != nil {
			return err
		}
	}
	for k, v := range cfg.Kernel.Env {
		if err := unresolved("kernel.env."+k, v); err != nil {
			return err
		}
	}
	if cfg.Kernel.RestartDelay < 0 {
		return fmt.Errorf("kernel.restart_delay must not be negative")
	}
	if cfg.Kernel.MaxRestarts < 0 {
		return fmt.Errorf("kernel.max_restarts must not be negative")
	}
	switch cfg.Kernel.Protocol {
	case protocol.ProtocolLegacy, protocol.ProtocolV1:
	default:
		return fmt.Errorf("kernel.protocol must be empty or %q (got %q)", protocol.ProtocolV1, cfg.Kernel.Protocol)
	}

	if cfg.Widgets.DefaultCommTarget == "" {
		return fmt.Errorf("widgets.default_comm_target is required")
	}
	if cfg.Widgets.MimeType == "" {
		return fmt.Errorf("widgets.mime_type is required")
	}

	if cfg.Journal.Enabled {
		if cfg.Journal.Path == "" {
			return fmt.Errorf("journal.path is required when the journal is enabled")
		}
		if cfg.Journal.Retention < 0 {
			return fmt.Errorf("journal.retention must not be negative")
		}
		if cfg.Journal.PruneInterval <= 0 {
			return fmt.Errorf("journal.prune_interval must be positive")
		}
	}
	return nil
}
