package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/widgetsync/internal/dispatch"
)

const maxEventLog = 200

func renderEventStream(vp viewport.Model, empty bool, theme Theme, width int) string {
	innerWidth := width - 4

	if empty {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(vp.View()),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func eventLines(log []eventMsg, theme Theme) string {
	lines := make([]string, 0, len(log))
	for _, e := range log {
		lines = append(lines, formatEvent(e, theme))
	}
	return strings.Join(lines, "\n")
}

func formatEvent(m eventMsg, theme Theme) string {
	e := m.Event
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var typeStyle lipgloss.Style
	switch e.Type {
	case dispatch.KindRestartKernel:
		typeStyle = theme.StatusFailed
	case dispatch.KindMirrorExecute, dispatch.KindKernelOptions:
		typeStyle = theme.StatusRunning
	case dispatch.KindDisplayData, dispatch.KindOperationHandled:
		typeStyle = theme.StatusOK
	case dispatch.KindMessageHookCall:
		typeStyle = theme.Highlight
	default:
		typeStyle = theme.Dim
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-18s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, extractEventDesc(m))
}

func extractEventDesc(m eventMsg) string {
	data := make(map[string]any)
	_ = json.Unmarshal(m.Event.Data, &data)

	var parts []string
	for _, key := range []string{"id", "msg_id", "request_id", "parent_id", "operation", "name"} {
		if v, ok := data[key].(string); ok && v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", key, shortID(v)))
		}
	}

	if len(parts) == 0 {
		raw := string(m.Event.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
