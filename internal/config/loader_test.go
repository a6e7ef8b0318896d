package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/widgetsync/internal/protocol"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config",
			yaml: `
kernel:
  command: ./bridge
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Kernel.Command != "./bridge" {
					t.Errorf("kernel.command not parsed: %q", cfg.Kernel.Command)
				}
				if cfg.API.Listen != "127.0.0.1:8765" {
					t.Errorf("default api.listen not applied: %q", cfg.API.Listen)
				}
				if cfg.API.EventBuffer != 256 {
					t.Errorf("default api.event_buffer not applied: %d", cfg.API.EventBuffer)
				}
				if cfg.Widgets.DefaultCommTarget != protocol.DefaultCommTarget {
					t.Error("default comm target not applied")
				}
				if cfg.Widgets.MimeType != protocol.WidgetMimeType {
					t.Error("default mime type not applied")
				}
				if cfg.Journal.Enabled {
					t.Error("journal should be disabled by default")
				}
				if cfg.Kernel.RestartDelay != 2*time.Second || cfg.Kernel.MaxRestarts != 5 {
					t.Errorf("kernel restart defaults not applied: %+v", cfg.Kernel)
				}
				if cfg.Service.LockPath == "" {
					t.Error("default lock path not applied")
				}
				if len(cfg.SourceHash) != 64 {
					t.Errorf("source hash not recorded: %q", cfg.SourceHash)
				}
			},
		},
		{
			name: "full config",
			yaml: `
service:
  name: lab
  log_level: debug
api:
  listen: 0.0.0.0:9000
  token: abc
  tokens:
    - name: monitor
      token: ro-secret
      scopes: [surface:ro]
  event_buffer: 64
  shutdown_timeout: 3s
kernel:
  command: jupyter-bridge
  args: [--kernel, python3]
  name: python3
  protocol: v1.kernel.websocket.jupyter.org
  username: ana
  restart_delay: 500ms
  max_restarts: 0
widgets:
  document: analysis.ipynb
journal:
  enabled: true
  path: /tmp/journal.db
  retention: 24h
`,
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.Service.Name != "lab" || cfg.Service.LogLevel != "debug" {
					t.Errorf("service not parsed: %+v", cfg.Service)
				}
				if len(cfg.API.Tokens) != 1 || cfg.API.Tokens[0].Scopes[0] != "surface:ro" {
					t.Errorf("api.tokens not parsed: %+v", cfg.API.Tokens)
				}
				if cfg.API.ShutdownTimeout != 3*time.Second {
					t.Errorf("shutdown_timeout not parsed: %v", cfg.API.ShutdownTimeout)
				}
				if len(cfg.Kernel.Args) != 2 || cfg.Kernel.Args[1] != "python3" {
					t.Errorf("kernel.args not parsed: %v", cfg.Kernel.Args)
				}
				if cfg.Kernel.Protocol != protocol.ProtocolV1 {
					t.Errorf("kernel.protocol not parsed: %q", cfg.Kernel.Protocol)
				}
				if cfg.Kernel.RestartDelay != 500*time.Millisecond || cfg.Kernel.MaxRestarts != 0 {
					t.Errorf("kernel restart policy not parsed: %+v", cfg.Kernel)
				}
				if cfg.Widgets.Document != "analysis.ipynb" {
					t.Errorf("widgets.document not parsed: %q", cfg.Widgets.Document)
				}
				if !cfg.Journal.Enabled || cfg.Journal.Retention != 24*time.Hour {
					t.Errorf("journal not parsed: %+v", cfg.Journal)
				}
			},
		},
		{
			name: "env var interpolation",
			yaml: `
api:
  token: ${WIDGETSYNC_TEST_TOKEN}
kernel:
  command: ${WIDGETSYNC_TEST_BRIDGE}
`,
			env: map[string]string{
				"WIDGETSYNC_TEST_TOKEN":  "secret123",
				"WIDGETSYNC_TEST_BRIDGE": "/opt/bridge",
			},
			checkFn: func(t *testing.T, cfg *Config) {
				if cfg.API.Token != "secret123" {
					t.Errorf("env var not interpolated in api.token: %s", cfg.API.Token)
				}
				if cfg.Kernel.Command != "/opt/bridge" {
					t.Errorf("env var not interpolated in kernel.command: %s", cfg.Kernel.Command)
				}
			},
		},
		{
			name: "missing env var fails validation",
			yaml: `
api:
  token: ${WIDGETSYNC_TEST_MISSING}
kernel:
  command: ./bridge
`,
			wantErr: "WIDGETSYNC_TEST_MISSING",
		},
		{
			name:    "missing kernel command",
			yaml:    "service:\n  name: x\n",
			wantErr: "kernel.command is required",
		},
		{
			name: "invalid log level",
			yaml: `
service:
  log_level: loud
kernel:
  command: ./bridge
`,
			wantErr: "service.log_level",
		},
		{
			name: "unknown kernel protocol",
			yaml: `
kernel:
  command: ./bridge
  protocol: v2.fancy
`,
			wantErr: "kernel.protocol",
		},
		{
			name: "journal without path",
			yaml: `
kernel:
  command: ./bridge
journal:
  enabled: true
  path: ""
`,
			wantErr: "journal.path",
		},
		{
			name: "bad event buffer",
			yaml: `
api:
  event_buffer: 0
kernel:
  command: ./bridge
`,
			wantErr: "api.event_buffer",
		},
		{
			name: "negative max restarts",
			yaml: `
kernel:
  command: ./bridge
  max_restarts: -1
`,
			wantErr: "kernel.max_restarts",
		},
		{
			name: "journal without prune interval",
			yaml: `
kernel:
  command: ./bridge
journal:
  enabled: true
  prune_interval: 0s
`,
			wantErr: "journal.prune_interval",
		},
		{
			name: "token with unknown scope",
			yaml: `
api:
  tokens:
    - name: ci
      token: x
      scopes: [jobs:rw]
kernel:
  command: ./bridge
`,
			wantErr: "unknown scope",
		},
		{
			name: "duplicate token name",
			yaml: `
api:
  tokens:
    - name: ci
      token: x
      scopes: [surface:ro]
    - name: ci
      token: y
      scopes: [surface:rw]
kernel:
  command: ./bridge
`,
			wantErr: "duplicate token name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(writeConfig(t, tt.yaml))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoadDirectory(t *testing.T) {
	path := writeConfig(t, "kernel:\n  command: ./bridge\n")
	cfg, err := Load(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Load(dir) error = %v", err)
	}
	if cfg.SourcePath != path {
		t.Errorf("SourcePath = %q, want %q", cfg.SourcePath, path)
	}
}

func TestInterpolateEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple replacement",
			input: "path: ${WS_HOME}/data",
			env:   map[string]string{"WS_HOME": "/users/test"},
			want:  "path: /users/test/data",
		},
		{
			name:  "multiple vars",
			input: "${WS_USER}:${WS_PASS}@${WS_HOST}",
			env: map[string]string{
				"WS_USER": "admin",
				"WS_PASS": "secret",
				"WS_HOST": "localhost",
			},
			want: "admin:secret@localhost",
		},
		{
			name:  "unset var left in place",
			input: "token: ${WS_UNSET_FOR_TEST}",
			want:  "token: ${WS_UNSET_FOR_TEST}",
		},
		{
			name:  "bare dollar untouched",
			input: "price: $5",
			want:  "price: $5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := interpolateEnv(tt.input); got != tt.want {
				t.Errorf("interpolateEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}
