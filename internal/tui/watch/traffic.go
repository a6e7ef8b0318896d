package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/widgetsync/internal/dispatch"
	"github.com/mattjoyce/widgetsync/internal/events"
	"github.com/mattjoyce/widgetsync/internal/kernel"
	"github.com/mattjoyce/widgetsync/internal/protocol"
)

const maxExecutions = 50

// Execution is one mirrored execute_request and the traffic it caused.
type Execution struct {
	ID      string
	Code    string
	At      time.Time
	Widgets int
	Outputs int
	Hooks   int
}

// Traffic aggregates what the surface streams have shown so far.
type Traffic struct {
	Counts     map[string]int
	KernelName string
	Protocol   string
	Restarts   int

	executions map[string]*Execution
	order      []string
}

func NewTraffic() *Traffic {
	return &Traffic{
		Counts:     make(map[string]int),
		executions: make(map[string]*Execution),
	}
}

// Apply folds one stream event into the aggregate. Undecodable payloads only
// count toward their type.
func (t *Traffic) Apply(e events.Event) {
	t.Counts[e.Type]++

	switch e.Type {
	case dispatch.KindKernelOptions:
		var opts kernel.Options
		if e.Decode(&opts) == nil {
			t.KernelName = opts.Name
			t.Protocol = opts.Protocol
		}

	case dispatch.KindRestartKernel:
		t.Restarts++
		t.executions = make(map[string]*Execution)
		t.order = nil

	case dispatch.KindMirrorExecute:
		var m dispatch.MirroredExecute
		if e.Decode(&m) != nil || m.ID == "" {
			return
		}
		code := ""
		if m.Msg != nil {
			code, _ = m.Msg.Content["code"].(string)
		}
		t.track(&Execution{ID: m.ID, Code: firstLine(code), At: e.At})

	case dispatch.KindMessage:
		var fwd dispatch.ForwardedMessage
		if e.Decode(&fwd) != nil {
			return
		}
		msg, err := protocol.DecodeText([]byte(fwd.Data))
		if err != nil {
			return
		}
		if ex := t.executions[msg.ParentID()]; ex != nil {
			ex.Widgets++
		}

	case dispatch.KindDisplayData:
		var dm dispatch.DisplayMessage
		if e.Decode(&dm) == nil {
			if ex := t.executions[dm.ParentID]; ex != nil {
				ex.Outputs++
			}
		}

	case dispatch.KindMessageHookCall:
		var call dispatch.HookCall
		if e.Decode(&call) == nil {
			if ex := t.executions[call.ParentID]; ex != nil {
				ex.Hooks++
			}
		}
	}
}

func (t *Traffic) track(ex *Execution) {
	if _, ok := t.executions[ex.ID]; ok {
		return
	}
	t.executions[ex.ID] = ex
	t.order = append(t.order, ex.ID)
	if len(t.order) > maxExecutions {
		delete(t.executions, t.order[0])
		t.order = t.order[1:]
	}
}

// Recent returns up to n executions, newest first.
func (t *Traffic) Recent(n int) []*Execution {
	out := make([]*Execution, 0, min(n, len(t.order)))
	for i := len(t.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, t.executions[t.order[i]])
	}
	return out
}

func newExecutionTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Msg", Width: 10},
			{Title: "Code", Width: 36},
			{Title: "Widgets", Width: 8},
			{Title: "Outputs", Width: 8},
			{Title: "Hooks", Width: 6},
			{Title: "Age", Width: 8},
		}),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func executionRows(execs []*Execution, now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(execs))
	for _, ex := range execs {
		rows = append(rows, table.Row{
			shortID(ex.ID),
			ex.Code,
			fmt.Sprint(ex.Widgets),
			fmt.Sprint(ex.Outputs),
			fmt.Sprint(ex.Hooks),
			formatDuration(now.Sub(ex.At)),
		})
	}
	return rows
}

func renderExecutions(tbl table.Model, traffic *Traffic, theme Theme, width int) string {
	innerWidth := width - 4

	if len(traffic.order) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EXECUTIONS"),
			theme.Dim.Render("  No execute requests mirrored yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	counts := theme.Dim.Render(fmt.Sprintf("  msg %d  binary %d  display %d  hooks %d  restarts %d",
		traffic.Counts[dispatch.KindMessage],
		traffic.Counts[dispatch.KindBinaryMessage],
		traffic.Counts[dispatch.KindDisplayData],
		traffic.Counts[dispatch.KindMessageHookCall],
		traffic.Restarts,
	))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EXECUTIONS"),
		counts,
		tbl.View(),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if len(s) > 34 {
		s = s[:31] + "..."
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
