package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/embedkit/osal"
	"github.com/embedkit/osal/backend/native"
	"github.com/embedkit/osal/diag"
	"github.com/embedkit/osal/system"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type monitorModel struct {
	sys       *system.System
	collector *diag.Collector
	table     table.Model
	report    diag.Report
	stopDemo  context.CancelFunc
}

type refreshMsg time.Time

func refreshAfter() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func newMonitorModel(sys *system.System, stopDemo context.CancelFunc) *monitorModel {
	cols := []table.Column{
		{Title: "kind", Width: 10},
		{Title: "count", Width: 7},
		{Title: "watermark", Width: 10},
		{Title: "cap", Width: 6},
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithHeight(int(osal.KindCount)+1),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderBottom(true)
	t.SetStyles(styles)

	return &monitorModel{
		sys:       sys,
		collector: diag.NewCollector(sys),
		table:     t,
		stopDemo:  stopDemo,
	}
}

func (m *monitorModel) Init() tea.Cmd {
	return refreshAfter()
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.stopDemo()
			return m, tea.Quit
		case "w":
			m.sys.ResetWatermarks()
		}

	case refreshMsg:
		m.report = m.collector.Report()
		rows := make([]table.Row, 0, len(m.report.Resources))
		for _, res := range m.report.Resources {
			rows = append(rows, table.Row{
				res.Kind.String(),
				strconv.FormatUint(uint64(res.Count), 10),
				strconv.FormatUint(uint64(res.Watermark), 10),
				strconv.FormatUint(uint64(res.Cap), 10),
			})
		}
		m.table.SetRows(rows)
		return m, refreshAfter()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *monitorModel) View() string {
	s := titleStyle.Render("OSAL Monitor")
	s += fmt.Sprintf("  backend %s  ticks %d  handles %d\n\n",
		m.report.Backend, m.report.Ticks, m.report.LiveHandles)
	s += m.table.View() + "\n\n"

	if m.report.PoolSize > 0 {
		state := okStyle.Render("ok")
		if !m.report.PoolIntact {
			state = errorStyle.Render("CORRUPTED")
		}
		s += fmt.Sprintf("pool %d bytes, %d allocations, %s\n",
			m.report.PoolSize, m.report.PoolAllocations, state)
	}
	s += fmt.Sprintf("timers %d active of %d\n\n", m.report.TimersActive, m.report.TimersTotal)
	s += helpStyle.Render("w reset watermarks • q quit")
	return s
}

// runInteractive builds a system on the native backend, keeps a background
// workload churning so the counters move, and renders the monitor TUI.
func runInteractive(cfg osal.Config) error {
	be := native.NewWithInterval(time.Duration(cfg.TickIntervalMicros) * time.Microsecond)
	s, err := system.New(cfg, be)
	if err != nil {
		return err
	}
	defer s.Close()

	demoCtx, stopDemo := context.WithCancel(context.Background())
	defer stopDemo()
	go s.Timers().Run(demoCtx)
	go churn(demoCtx, s)

	p := tea.NewProgram(newMonitorModel(s, stopDemo), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// churn keeps resource counts moving: it cycles semaphore handles and pool
// allocations so the monitor shows live counts and rising watermarks.
func churn(ctx context.Context, s *system.System) {
	var handles []osal.Handle
	var blocks []uint32
	for ctx.Err() == nil {
		if len(handles) < 8 {
			if h, st := s.CreateSemaphore(1, 4); st.Ok() {
				handles = append(handles, h)
			}
			if off, st := s.Alloc(64); st.Ok() {
				blocks = append(blocks, off)
			}
		} else {
			for _, h := range handles {
				s.DestroySemaphore(h)
			}
			for _, off := range blocks {
				s.Free(off)
			}
			handles = handles[:0]
			blocks = blocks[:0]
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(300 * time.Millisecond):
		}
	}
}
