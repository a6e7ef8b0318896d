package api

import (
	"github.com/mattjoyce/widgetsync/internal/dispatch"
	"github.com/mattjoyce/widgetsync/internal/storage"
)

// CommandsResponse is returned by POST /surface/commands.
type CommandsResponse struct {
	Accepted int `json:"accepted"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	ConfigHash    string         `json:"config_hash,omitempty"`
	Dispatcher    dispatch.Stats `json:"dispatcher"`
}

// DisplayHistoryResponse is returned by GET /surface/display/history.
type DisplayHistoryResponse struct {
	Document string                 `json:"document"`
	Entries  []storage.DisplayEntry `json:"entries"`
	Next     int64                  `json:"next"`
}
