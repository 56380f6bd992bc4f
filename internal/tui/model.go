// Package tui renders the live event stream of a running simulator.
package tui

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"

	"modelardb-sim/internal/events"
	"modelardb-sim/internal/ratio"
	"modelardb-sim/internal/registry"
	"modelardb-sim/internal/state"
)

// NameSnapshot is the envelope a server sends first on /events.
const NameSnapshot = "snapshot"

// maxLines bounds the log viewport history.
const maxLines = 500

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// envelopeMsg carries one envelope read from the stream.
type envelopeMsg struct{ events.Envelope }

// connMsg reports the stream state.
type connMsg struct {
	connected bool
	err       error
}

type model struct {
	window  time.Duration
	tracker *ratio.Tracker
	tables  []string

	phase    state.Phase
	runID    string
	flushing map[string]string

	table table.Model
	vp    viewport.Model
	lines []string
	wrap  bool

	connected bool
	lastErr   error
	width     int
}

func newModel(window time.Duration) model {
	cols := []table.Column{
		{Title: "Type", Width: 12},
		{Title: "Ingested", Width: 12},
		{Title: "Stored", Width: 12},
		{Title: "Ratio", Width: 8},
		{Title: "Window", Width: 8},
		{Title: "Flushing", Width: 28},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(len(registry.DeploymentTypes)+1))
	m := model{
		window:   window,
		tracker:  ratio.NewTracker(nil, window),
		flushing: map[string]string{},
		table:    t,
		vp:       viewport.New(0, 0),
	}
	m.refreshTable()
	return m
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.vp.Height = max(msg.Height-lipgloss.Height(m.renderHeader())-1, 1)
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "c":
			m.lines = nil
			m.refreshViewport()
		}
	case connMsg:
		m.connected = msg.connected
		m.lastErr = msg.err
		if msg.err != nil {
			m.appendLine(fmt.Sprintf("stream closed: %v", msg.err))
		}
	case envelopeMsg:
		m.apply(msg.Envelope)
	}
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

// apply folds one envelope into the model.
func (m *model) apply(env events.Envelope) {
	at := env.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	if env.Event == NameSnapshot {
		var snap state.Snapshot
		if err := json.Unmarshal(env.Payload, &snap); err != nil {
			m.appendLine(fmt.Sprintf("bad snapshot: %v", err))
			return
		}
		m.seed(snap, at)
		m.appendLine(FormatLine(env))
		m.refreshTable()
		return
	}
	ev, err := env.Decode()
	if err != nil {
		m.appendLine(err.Error())
		return
	}
	switch p := ev.Payload.(type) {
	case string:
		m.flushing[strings.TrimSuffix(strings.TrimPrefix(ev.Name, "flushing-"), "-node")] = p
	case events.IngestedSize:
		if !slices.Contains(m.tables, p.TableName) {
			m.tables = append(m.tables, p.TableName)
			m.rebuildTracker()
		}
	}
	m.tracker.Observe(ev, at)
	m.appendLine(FormatLine(env))
	m.refreshTable()
}

// seed restarts the tracker from a snapshot.
func (m *model) seed(snap state.Snapshot, at time.Time) {
	m.phase = snap.Phase
	m.runID = snap.RunID
	m.tables = nil
	for _, t := range snap.Ingested {
		m.tables = append(m.tables, t.Table)
	}
	m.tracker = ratio.NewTracker(m.tables, m.window)
	for _, t := range snap.Ingested {
		m.tracker.Observe(events.DataIngested(t.Table, t.Bytes), at)
	}
	for typ, sizes := range snap.Transferred {
		m.tracker.Observe(events.StoreSize(registry.DeploymentType(typ), sizes), at)
	}
	m.flushing = map[string]string{}
}

// rebuildTracker keeps the running totals when a table name appears that the
// snapshot did not list.
func (m *model) rebuildTracker() {
	old := m.tracker
	m.tracker = ratio.NewTracker(slices.Clone(m.tables), m.window)
	now := time.Now()
	for _, typ := range registry.DeploymentTypes {
		s := old.Summary(string(typ))
		sizes := make([]uint64, 0, len(s.Tables))
		for _, t := range s.Tables {
			sizes = append(sizes, t.Transferred)
		}
		if s.Transferred > 0 {
			m.tracker.Observe(events.StoreSize(typ, sizes), now)
		}
	}
	for _, t := range old.Summary(string(registry.Primary)).Tables {
		if t.Ingested > 0 {
			m.tracker.Observe(events.DataIngested(t.Name, t.Ingested), now)
		}
	}
}

func (m *model) appendLine(l string) {
	m.lines = append(m.lines, l)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	m.refreshViewport()
}

func (m *model) refreshTable() {
	rows := make([]table.Row, 0, len(registry.DeploymentTypes))
	for _, typ := range registry.DeploymentTypes {
		s := m.tracker.Summary(string(typ))
		rows = append(rows, table.Row{
			string(typ),
			humanize.Bytes(s.Ingested),
			humanize.Bytes(s.Transferred),
			fmt.Sprintf("%.2f", s.Ratio),
			fmt.Sprintf("%.2f", s.WindowRatio),
			m.flushing[string(typ)],
		})
	}
	m.table.SetRows(rows)
}

func (m *model) refreshViewport() {
	m.vp.SetContent(m.logContent())
	m.vp.GotoBottom()
}

func (m model) logContent() string {
	if !m.wrap || m.vp.Width <= 0 {
		return strings.Join(m.lines, "\n")
	}
	lines := make([]string, 0, len(m.lines))
	for _, l := range m.lines {
		lines = append(lines, wordwrap.String(l, m.vp.Width))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderHeader() string {
	dot := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("●")
	if m.connected {
		dot = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("●")
	}
	phase := string(m.phase)
	if phase == "" {
		phase = string(state.Uninitialized)
	}
	status := fmt.Sprintf("%s %s", dot, phase)
	if m.runID != "" {
		status += lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(" run " + m.runID)
	}
	return lipgloss.JoinVertical(lipgloss.Left, status, m.table.View())
}

func (m model) View() string {
	help := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("q quit · w wrap · c clear")
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.vp.View(), help)
}

// FormatLine renders an envelope as one log line.
func FormatLine(env events.Envelope) string {
	ts := env.Timestamp.Format("15:04:05")
	if env.Event == NameSnapshot {
		var snap state.Snapshot
		if err := json.Unmarshal(env.Payload, &snap); err == nil {
			return fmt.Sprintf("%s snapshot phase=%s ingested=%s schedules=%d", ts, snap.Phase, humanize.Bytes(snap.IngestedTotal()), len(snap.Schedules))
		}
	}
	ev, err := env.Decode()
	if err != nil {
		return fmt.Sprintf("%s %s %s", ts, env.Event, env.Payload)
	}
	switch p := ev.Payload.(type) {
	case events.IngestedSize:
		return fmt.Sprintf("%s %s table=%s size=%s", ts, ev.Name, p.TableName, humanize.Bytes(p.Size))
	case events.RemoteObjectStoreSize:
		parts := make([]string, len(p.TableSizes))
		for i, s := range p.TableSizes {
			parts[i] = humanize.Bytes(s)
		}
		return fmt.Sprintf("%s %s type=%s tables=[%s]", ts, ev.Name, p.NodeType, strings.Join(parts, " "))
	case events.NodeUnreachable:
		return fmt.Sprintf("%s %s type=%s url=%s err=%s", ts, ev.Name, p.NodeType, p.URL, p.Error)
	case string:
		if p == "" {
			return fmt.Sprintf("%s %s idle", ts, ev.Name)
		}
		return fmt.Sprintf("%s %s url=%s", ts, ev.Name, p)
	}
	return fmt.Sprintf("%s %s %s", ts, env.Event, env.Payload)
}

// flushingTypes lists the types with a flush in progress, for tests.
func (m model) flushingTypes() []string {
	var out []string
	for typ, url := range m.flushing {
		if url != "" {
			out = append(out, typ)
		}
	}
	sort.Strings(out)
	return out
}
