// Package tui implements the live queue board.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/the-trucks-must-roll/internal/cli"
	"github.com/Veraticus/the-trucks-must-roll/internal/model"
	"github.com/Veraticus/the-trucks-must-roll/internal/service"
)

// DefaultRefresh is the board's reload interval.
const DefaultRefresh = 2 * time.Second

const loadTimeout = 5 * time.Second

// CounterReader reports today's ticket counters.
type CounterReader interface {
	Counts(ctx context.Context) (model.DailyCounterState, error)
}

// Filter selects which records the board shows.
type Filter int

// Filters, in cycle order.
const (
	FilterAll Filter = iota
	FilterPending
	FilterFinished
)

func (f Filter) String() string {
	switch f {
	case FilterPending:
		return "pending"
	case FilterFinished:
		return "finished"
	default:
		return "all"
	}
}

func (f Filter) status() model.ProcessStatus {
	switch f {
	case FilterPending:
		return model.StatusPending
	case FilterFinished:
		return model.StatusFinished
	default:
		return ""
	}
}

var boardColumns = []table.Column{
	{Title: "Ticket", Width: 8},
	{Title: "Vehicle", Width: 14},
	{Title: "Category", Width: 12},
	{Title: "Arrival", Width: 8},
	{Title: "Req", Width: 5},
	{Title: "Del", Width: 5},
	{Title: "Status", Width: 9},
}

// Model is the bubbletea model for the queue board.
type Model struct {
	loadedAt time.Time
	err      error
	repo     service.ProcessRepository
	counters CounterReader
	keys     KeyMap
	help     help.Model
	table    table.Model
	records  []model.ProcessRecord
	counts   model.DailyCounterState
	refresh  time.Duration
	filter   Filter
	width    int
	detail   bool
}

// NewModel creates a board over repo. counters may be nil.
func NewModel(repo service.ProcessRepository, counters CounterReader, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}

	t := table.New(
		table.WithColumns(boardColumns),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		Bold(true).
		Foreground(cli.PrimaryColor)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#000000")).
		Background(cli.PrimaryColor)
	t.SetStyles(styles)

	return Model{
		repo:     repo,
		counters: counters,
		refresh:  refresh,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		table:    t,
	}
}

// Init loads the queue and starts the refresh timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) load() tea.Cmd {
	repo, counters, status := m.repo, m.counters, m.filter.status()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		msg := queueLoadedMsg{loadedAt: time.Now()}
		msg.records, msg.err = repo.ListProcesses(ctx, service.ProcessFilter{Status: status})
		if msg.err == nil && counters != nil {
			msg.counts, msg.err = counters.Counts(ctx)
		}
		return msg
	}
}

// Update handles input, timer and load messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		if h := msg.Height - 8; h > 3 {
			m.table.SetHeight(h)
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.load(), m.tick())

	case queueLoadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.records = msg.records
			m.counts = msg.counts
			m.loadedAt = msg.loadedAt
			m.table.SetRows(recordRows(m.records))
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case m.detail && key.Matches(msg, m.keys.Back):
			m.detail = false
			return m, nil
		case key.Matches(msg, m.keys.Details):
			if len(m.records) > 0 {
				m.detail = true
			}
			return m, nil
		case key.Matches(msg, m.keys.Filter):
			m.filter = (m.filter + 1) % 3
			m.table.SetCursor(0)
			return m, m.load()
		case key.Matches(msg, m.keys.Refresh):
			return m, m.load()
		}
	}

	if m.detail {
		return m, nil
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// Selected returns the record under the cursor.
func (m Model) Selected() (model.ProcessRecord, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.records) {
		return model.ProcessRecord{}, false
	}
	return m.records[i], true
}

// View renders the board.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(cli.FormatTitle("Vehicle queue"))
	b.WriteString("\n")
	b.WriteString(m.summaryLine())
	b.WriteString("\n\n")

	if rec, ok := m.Selected(); m.detail && ok {
		b.WriteString(cli.RenderRecord(rec))
	} else {
		b.WriteString(m.table.View())
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(cli.FormatError(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) summaryLine() string {
	pending := 0
	for _, r := range m.records {
		if !r.IsFinished() {
			pending++
		}
	}

	parts := []string{
		fmt.Sprintf("filter: %s", m.filter),
		fmt.Sprintf("%d shown", len(m.records)),
		fmt.Sprintf("%d pending", pending),
	}
	if len(m.counts.Counts) > 0 {
		prefixes := make([]string, 0, len(m.counts.Counts))
		for p := range m.counts.Counts {
			prefixes = append(prefixes, p)
		}
		sort.Strings(prefixes)
		issued := make([]string, 0, len(prefixes))
		for _, p := range prefixes {
			issued = append(issued, fmt.Sprintf("%s:%d", p, m.counts.Counts[p]))
		}
		parts = append(parts, "today "+strings.Join(issued, " "))
	}
	if !m.loadedAt.IsZero() {
		parts = append(parts, "updated "+m.loadedAt.Format("15:04:05"))
	}
	return cli.SubtleStyle.Render(strings.Join(parts, " | "))
}

func recordRows(records []model.ProcessRecord) []table.Row {
	rows := make([]table.Row, 0, len(records))
	for _, r := range records {
		rows = append(rows, table.Row{
			r.TicketNumber,
			r.VehicleNumber,
			r.WaitIn.Category,
			r.ArrivalTime,
			strconv.Itoa(r.WaitIn.DeliveryTable.TotalRequested()),
			strconv.Itoa(r.WaitIn.DeliveryTable.TotalDelivered()),
			string(r.Status),
		})
	}
	return rows
}
