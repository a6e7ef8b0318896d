package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/widgetsync/internal/dispatch"
)

// HealthState tracks dispatcher health from /healthz polling.
type HealthState struct {
	Status        string
	UptimeSeconds int64
	ConfigHash    string
	Stats         dispatch.Stats
	Connected     bool
	LastCheck     time.Time
}

func renderHeader(health HealthState, traffic *Traffic, spin string, activity Activity, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.StatusOK.Render("ATTACHED")
	statusIcon := "✅"
	switch {
	case !health.Connected:
		statusText = theme.StatusFailed.Render("CONNECTING")
		statusIcon = "🔌"
	case health.Status != "ok" && health.Status != "":
		statusText = theme.StatusRunning.Render(strings.ToUpper(health.Status))
		statusIcon = "⚠️"
	}

	lastEventStr := "never"
	if !activity.LastEvent().IsZero() {
		lastEventStr = fmt.Sprintf("%s ago", now.Sub(activity.LastEvent()).Round(time.Second))
	}

	clock := theme.Dim.Render(now.Format("15:04:05"))
	titleText := fmt.Sprintf(" WIDGETSYNC WATCH %s %s", spin, theme.Highlight.Render(health.Stats.Document))
	pad := max(innerWidth-lipgloss.Width(titleText)-lipgloss.Width(clock)-4, 1)
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	st := health.Stats
	kernelStr := theme.Dim.Render("none")
	if st.KernelID != "" {
		kernelStr = shortID(st.KernelID)
		if traffic.KernelName != "" {
			kernelStr += " (" + traffic.KernelName + ")"
		}
	}
	widgets := "no"
	if st.UsingWidgets {
		widgets = "yes"
	}
	statusLine := fmt.Sprintf(" %s %s  ⏱ %s  Kernel: %s  Widgets: %s",
		statusIcon, statusText,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		kernelStr,
		widgets,
	)

	gate := theme.Dim.Render("closed")
	if st.GateOpen {
		gate = theme.StatusRunning.Render("open")
	}
	queueLine := fmt.Sprintf(" Pending: %d  Waiting: %d  Hooks: %d  Output widgets: %d  Gate: %s  Dropped: %d",
		st.PendingOutbound, st.Waiting, st.MessageHooks, st.OutputWidgets, gate, st.DroppedPosts)

	targets := theme.Dim.Render("none")
	if len(st.CommTargets) > 0 {
		targets = strings.Join(st.CommTargets, ", ")
	}
	targetLine := fmt.Sprintf(" Comm targets: %s", targets)

	activityLine := fmt.Sprintf(" Last event: %s %s", lastEventStr, activity.Render(theme, now))

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statusLine,
		queueLine,
		targetLine,
		activityLine,
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
