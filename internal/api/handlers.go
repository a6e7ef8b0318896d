package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/widgetsync/internal/dispatch"
)

const (
	// maxCommandBytes bounds a command batch. Binary messages carry base64
	// buffers, so this is generous.
	maxCommandBytes = 64 << 20

	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// handleCommands accepts a single command object or an array of commands and
// dispatches them in order. Dispatch stops at the first failure.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxCommandBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "command batch too large")
		return
	}

	cmds, err := decodeCommands(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	for i, cmd := range cmds {
		if err := s.surface.Dispatch(r.Context(), cmd); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, dispatch.ErrDisposed) {
				status = http.StatusServiceUnavailable
			}
			s.logger.Warn("command rejected", "index", i, "type", cmd.Type, "error", err)
			s.writeError(w, status, fmt.Sprintf("command %d (%s): %v", i, cmd.Type, err))
			return
		}
	}

	respondJSON(w, http.StatusAccepted, CommandsResponse{Accepted: len(cmds)})
}

func decodeCommands(body []byte) ([]dispatch.Command, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty request body")
	}

	var cmds []dispatch.Command
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &cmds); err != nil {
			return nil, fmt.Errorf("invalid command batch: %w", err)
		}
	} else {
		var cmd dispatch.Command
		if err := json.Unmarshal(trimmed, &cmd); err != nil {
			return nil, fmt.Errorf("invalid command: %w", err)
		}
		cmds = append(cmds, cmd)
	}

	if len(cmds) == 0 {
		return nil, errors.New("empty command batch")
	}
	for i, cmd := range cmds {
		if cmd.Type == "" {
			return nil, fmt.Errorf("command %d: type is required", i)
		}
	}
	return cmds, nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	stats := s.surface.Stats()
	status := "ok"
	if !stats.Connected {
		status = "detached"
	}
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ConfigHash:    s.config.ConfigHash,
		Dispatcher:    stats,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.surface.Stats())
}

func (s *Server) handleDisplayHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusNotFound, "display journal disabled")
		return
	}

	q := r.URL.Query()
	var after int64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		after = n
	}
	limit := defaultHistoryLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.journal.Since(r.Context(), s.config.Document, after, limit)
	if err != nil {
		s.logger.Error("display history query failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read display journal")
		return
	}

	next := after
	if len(entries) > 0 {
		next = entries[len(entries)-1].Seq
	}
	respondJSON(w, http.StatusOK, DisplayHistoryResponse{
		Document: s.config.Document,
		Entries:  entries,
		Next:     next,
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
