package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/widgetsync/internal/api"
	"github.com/mattjoyce/widgetsync/internal/events"
)

const (
	postsStream   = "/surface/events"
	displayStream = "/surface/display"
)

// --- Message types ---

type eventMsg struct {
	Stream string
	Event  events.Event
}

type healthMsg api.HealthzResponse

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{ cursor *streamCursor }
type reconnectMsg struct{ cursor *streamCursor }

// streamCursor remembers the last event id read from one SSE stream so a
// reconnect resumes from there.
type streamCursor struct {
	path string
	last atomic.Int64
}

// --- Commands ---

// subscribe reads cursor's SSE stream into ch until the connection drops.
func subscribe(ctx context.Context, apiURL, token string, cursor *streamCursor, ch chan<- eventMsg) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+cursor.path, nil)
		if err != nil {
			return errMsg(err)
		}
		setAuth(req, token)
		if last := cursor.last.Load(); last > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(last, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{cursor}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("%s: %s", cursor.path, resp.Status))
		}

		readSSE(ctx, resp.Body, cursor, ch)
		return sseDisconnectedMsg{cursor}
	}
}

func readSSE(ctx context.Context, body io.Reader, cursor *streamCursor, ch chan<- eventMsg) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)

	var cur events.Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Data == nil {
				continue
			}
			cur.At = time.Now()
			cursor.last.Store(cur.ID)
			select {
			case ch <- eventMsg{Stream: cursor.path, Event: cur}:
			case <-ctx.Done():
				return
			}
			cur = events.Event{}
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			cur.Data = []byte(line[6:])
		}
	}
}

// receiveNextEvent waits for the next event from either stream.
func receiveNextEvent(ch <-chan eventMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// fetchHealth queries /healthz.
func fetchHealth(apiURL, token string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest(http.MethodGet, apiURL+"/healthz", nil)
	if err != nil {
		return errMsg(err)
	}
	setAuth(req, token)

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errMsg(fmt.Errorf("healthz: %s", resp.Status))
	}

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}

func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
