// Package tui is an interactive terminal front end for the pipeline.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"skymind/internal/flights"
	"skymind/internal/pipeline"
)

// Service is what the TUI needs from the pipeline.
type Service interface {
	Countries(ctx context.Context) ([]string, error)
	Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
}

type countriesMsg struct {
	countries []string
	err       error
}

type reportMsg struct {
	report *pipeline.Report
	err    error
}

type focusArea int

const (
	focusCountries focusArea = iota
	focusResults
	focusWhere
)

const (
	countryColumnWidth = 28
	minTableHeight     = 3
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	paneStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))
	focusedPane  = paneStyle.BorderForeground(lipgloss.Color("12"))
	statusStyles = map[pipeline.Level]lipgloss.Style{
		pipeline.LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		pipeline.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		pipeline.LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		pipeline.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

type model struct {
	ctx  context.Context
	svc  Service
	rule string

	countries table.Model
	results   table.Model
	where     textinput.Model

	mode    flights.FilterMode
	focus   focusArea
	status  []pipeline.Status
	loading bool
	last    *pipeline.Report

	width, height int
}

func newModel(ctx context.Context, svc Service, mode flights.FilterMode, rule string) model {
	if mode == "" {
		mode = flights.ModeExact
	}
	countries := table.New(
		table.WithColumns([]table.Column{{Title: "origin_country", Width: countryColumnWidth}}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	results := table.New(
		table.WithColumns(resultColumns(80)),
		table.WithHeight(10),
	)
	where := textinput.New()
	where.Prompt = "where> "
	where.Placeholder = "velocity > 100 && !on_ground"
	where.CharLimit = 256

	return model{
		ctx:       ctx,
		svc:       svc,
		rule:      rule,
		countries: countries,
		results:   results,
		where:     where,
		mode:      mode,
		loading:   true,
	}
}

// resultColumns spreads width over the presentation table columns.
func resultColumns(width int) []table.Column {
	weights := []int{8, 10, 16, 9, 12, 12, 20}
	total := 0
	for _, w := range weights {
		total += w
	}
	cols := make([]table.Column, len(pipeline.TableColumns))
	for i, title := range pipeline.TableColumns {
		w := width * weights[i] / total
		if w < len(title) {
			w = len(title)
		}
		cols[i] = table.Column{Title: title, Width: w}
	}
	return cols
}

func (m model) loadCountries() tea.Cmd {
	return func() tea.Msg {
		c, err := m.svc.Countries(m.ctx)
		return countriesMsg{countries: c, err: err}
	}
}

func (m model) analyze(country string) tea.Cmd {
	req := pipeline.Request{Country: country, Mode: m.mode, Where: strings.TrimSpace(m.where.Value())}
	return func() tea.Msg {
		rep, err := m.svc.Analyze(m.ctx, req)
		return reportMsg{report: rep, err: err}
	}
}

func (m model) Init() tea.Cmd { return m.loadCountries() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil
	case countriesMsg:
		m.loading = false
		if msg.err != nil {
			m.status = []pipeline.Status{{Level: pipeline.LevelError, Text: "Could not fetch live data or no countries available."}}
			return m, nil
		}
		rows := make([]table.Row, len(msg.countries))
		for i, c := range msg.countries {
			rows[i] = table.Row{c}
		}
		m.countries.SetRows(rows)
		m.status = []pipeline.Status{{Level: pipeline.LevelInfo, Text: fmt.Sprintf("%d countries in the current snapshot", len(rows))}}
		return m, nil
	case reportMsg:
		m.loading = false
		if msg.err != nil {
			m.status = []pipeline.Status{{Level: pipeline.LevelError, Text: msg.err.Error()}}
			return m, nil
		}
		m.last = msg.report
		m.status = msg.report.Messages
		tbl := msg.report.Table()
		rows := make([]table.Row, len(tbl))
		for i, r := range tbl {
			rows[i] = r.Cells()
		}
		m.results.SetRows(rows)
		m.results.GotoTop()
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focus == focusWhere {
		switch msg.Type {
		case tea.KeyEnter, tea.KeyEsc:
			m.where.Blur()
			m.setFocus(focusCountries)
			return m, nil
		case tea.KeyCtrlC:
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.where, cmd = m.where.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "m":
		if m.mode == flights.ModeExact {
			m.mode = flights.ModeSubstring
		} else {
			m.mode = flights.ModeExact
		}
		return m, nil
	case "r":
		m.loading = true
		return m, m.loadCountries()
	case "/":
		m.setFocus(focusWhere)
		cmd := m.where.Focus()
		return m, cmd
	case "tab":
		if m.focus == focusCountries {
			m.setFocus(focusResults)
		} else {
			m.setFocus(focusCountries)
		}
		return m, nil
	case "enter":
		if m.focus != focusCountries || m.loading {
			return m, nil
		}
		row := m.countries.SelectedRow()
		if len(row) == 0 {
			return m, nil
		}
		m.loading = true
		m.status = []pipeline.Status{{Level: pipeline.LevelInfo, Text: "Fetching live data for " + row[0] + "..."}}
		return m, m.analyze(row[0])
	}

	var cmd tea.Cmd
	if m.focus == focusResults {
		m.results, cmd = m.results.Update(msg)
	} else {
		m.countries, cmd = m.countries.Update(msg)
	}
	return m, cmd
}

func (m *model) setFocus(f focusArea) {
	m.focus = f
	m.countries.Blur()
	m.results.Blur()
	switch f {
	case focusCountries:
		m.countries.Focus()
	case focusResults:
		m.results.Focus()
	}
}

func (m *model) resize() {
	h := m.height - 12
	if h < minTableHeight {
		h = minTableHeight
	}
	m.countries.SetHeight(h)
	m.results.SetHeight(h)
	rw := m.width - countryColumnWidth - 8
	if rw < 40 {
		rw = 40
	}
	m.results.SetColumns(resultColumns(rw - 2*len(pipeline.TableColumns)))
	m.where.Width = m.width - len(m.where.Prompt) - 2
}

func (m model) View() string {
	header := titleStyle.Render("SkyMind: Real-Time Flight Delay Predictor")
	settings := fmt.Sprintf("mode: %s   rule: %s", m.mode, m.rule)
	if m.last != nil {
		if acc, ok := m.last.Accuracy(); ok {
			settings += fmt.Sprintf("   accuracy: %.2f%%", acc*100)
		}
	}

	left, right := paneStyle, paneStyle
	if m.focus == focusCountries {
		left = focusedPane
	} else if m.focus == focusResults {
		right = focusedPane
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		left.Render(m.countries.View()),
		right.Render(m.results.View()),
	)

	sections := []string{header, settings, body, m.where.View(), m.renderStatus(), m.renderHelp()}
	return strings.Join(sections, "\n")
}

func (m model) renderStatus() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	var lines []string
	if m.loading && len(m.status) == 0 {
		lines = append(lines, "loading...")
	}
	for _, s := range m.status {
		style, ok := statusStyles[s.Level]
		if !ok {
			style = lipgloss.NewStyle()
		}
		lines = append(lines, style.Render(wordwrap.String(s.Text, width)))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderHelp() string {
	return helpStyle.Render("enter analyze • m toggle exact/substring • / where filter • tab switch pane • r reload • q quit")
}

// Run starts the program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, svc Service, mode flights.FilterMode, rule string) error {
	p := tea.NewProgram(newModel(ctx, svc, mode, rule), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
