package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	ctx    context.Context
	apiURL string
	token  string

	width  int
	height int

	health   HealthState
	traffic  *Traffic
	eventLog []eventMsg
	now      time.Time

	spinner  spinner.Model
	activity Activity
	execs    table.Model
	log      viewport.Model
	follow   bool

	theme Theme

	cursors []*streamCursor
	stream  chan eventMsg

	lastError string
}

// New creates a watch model for the serve process at apiURL. Streams stop
// when ctx is cancelled.
func New(ctx context.Context, apiURL, token string) *Model {
	return &Model{
		ctx:     ctx,
		apiURL:  apiURL,
		token:   token,
		traffic: NewTraffic(),
		now:     time.Now(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		execs:   newExecutionTable(),
		log:     viewport.New(80, 10),
		follow:  true,
		theme:   NewDefaultTheme(),
		cursors: []*streamCursor{{path: postsStream}, {path: displayStream}},
		stream:  make(chan eventMsg, 100),
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		receiveNextEvent(m.stream),
		func() tea.Msg { return fetchHealth(m.apiURL, m.token) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		m.spinner.Tick,
		tea.EnterAltScreen,
	}
	for _, c := range m.cursors {
		cmds = append(cmds, subscribe(m.ctx, m.apiURL, m.token, c, m.stream))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "f":
			m.follow = !m.follow
			if m.follow {
				m.log.GotoBottom()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.execs.SetWidth(m.width - 8)
		m.log.Width = m.width - 8
		m.log.Height = max(m.height-30, 3)
		if m.follow {
			m.log.GotoBottom()
		}

	case tickMsg:
		m.now = time.Time(msg)
		m.execs.SetRows(executionRows(m.traffic.Recent(8), m.now))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(msg)
		return m, receiveNextEvent(m.stream)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.ConfigHash = msg.ConfigHash
		m.health.Stats = msg.Dispatcher
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.token)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = fmt.Sprintf("%s disconnected, reconnecting...", msg.cursor.path)
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return reconnectMsg(msg)
		})

	case reconnectMsg:
		return m, subscribe(m.ctx, m.apiURL, m.token, msg.cursor, m.stream)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.token)
		})
	}

	return m, nil
}

// apply records one stream event in the log, the traffic aggregate and the
// execution table.
func (m *Model) apply(e eventMsg) {
	m.eventLog = append(m.eventLog, e)
	if len(m.eventLog) > maxEventLog {
		m.eventLog = m.eventLog[len(m.eventLog)-maxEventLog:]
	}
	m.traffic.Apply(e.Event)
	m.activity.OnEvent(e.Event.At)

	m.log.SetContent(eventLines(m.eventLog, m.theme))
	if m.follow {
		m.log.GotoBottom()
	}
	m.execs.SetRows(executionRows(m.traffic.Recent(8), m.now))

	m.health.Connected = true
	m.lastError = ""
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing watch..."
	}

	header := renderHeader(m.health, m.traffic, m.spinner.View(), m.activity, m.theme, m.width, m.now)
	execs := renderExecutions(m.execs, m.traffic, m.theme, m.width)
	eventStream := renderEventStream(m.log, len(m.eventLog) == 0, m.theme, m.width)

	parts := []string{header, execs, eventStream}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	follow := "on"
	if !m.follow {
		follow = "off"
	}
	parts = append(parts, m.theme.Help.Render(fmt.Sprintf(" [q] Quit • [↑/↓] Scroll events • [f] Follow (%s)", follow)))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
