package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skymind/internal/flights"
	"skymind/internal/pipeline"
)

type stubService struct {
	countries []string
	err       error
	report    *pipeline.Report
	requests  []pipeline.Request
}

func (s *stubService) Countries(context.Context) ([]string, error) { return s.countries, s.err }

func (s *stubService) Analyze(_ context.Context, req pipeline.Request) (*pipeline.Report, error) {
	s.requests = append(s.requests, req)
	return s.report, s.err
}

func key(r rune) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}} }

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func loaded(t *testing.T, svc *stubService) model {
	t.Helper()
	m := newModel(context.Background(), svc, flights.ModeExact, "cruise")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 140, Height: 40})
	msg := m.Init()()
	m, _ = update(t, m, msg)
	return m
}

func TestCountriesLoad(t *testing.T) {
	m := loaded(t, &stubService{countries: []string{"France", "India"}})
	assert.False(t, m.loading)
	require.Len(t, m.countries.Rows(), 2)
	assert.Equal(t, "France", m.countries.SelectedRow()[0])
	assert.Contains(t, m.View(), "India")
}

func TestCountriesError(t *testing.T) {
	m := loaded(t, &stubService{err: errors.New("503")})
	require.Len(t, m.status, 1)
	assert.Equal(t, pipeline.LevelError, m.status[0].Level)
	assert.Contains(t, m.View(), "Could not fetch live data")
}

func TestModeToggle(t *testing.T) {
	m := loaded(t, &stubService{countries: []string{"India"}})
	m, _ = update(t, m, key('m'))
	assert.Equal(t, flights.ModeSubstring, m.mode)
	assert.Contains(t, m.View(), "mode: substring")
	m, _ = update(t, m, key('m'))
	assert.Equal(t, flights.ModeExact, m.mode)
}

func TestAnalyzeSelectedCountry(t *testing.T) {
	rep := &pipeline.Report{
		Outcome:  pipeline.OutcomeOK,
		Messages: []pipeline.Status{{Level: pipeline.LevelSuccess, Text: "Fetched 1 flights from India"}},
		Rows: []flights.LabeledRow{{
			SnapshotRow: flights.SnapshotRow{ICAO24: "abc123", Velocity: flights.Ptr(80.0), GeoAltitude: flights.Ptr(2000.0)},
			Delay:       true,
		}},
	}
	svc := &stubService{countries: []string{"France", "India"}, report: rep}
	m := loaded(t, svc)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, key('m'))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.loading)

	m, _ = update(t, m, cmd())
	require.Len(t, svc.requests, 1)
	assert.Equal(t, pipeline.Request{Country: "India", Mode: flights.ModeSubstring}, svc.requests[0])
	assert.False(t, m.loading)
	require.Len(t, m.results.Rows(), 1)
	assert.Equal(t, "abc123", m.results.Rows()[0][0])
	assert.Equal(t, "Delayed", m.results.Rows()[0][5])
	assert.Contains(t, m.View(), "Fetched 1 flights from India")
}

func TestWhereInputIsSentWithRequest(t *testing.T) {
	svc := &stubService{countries: []string{"India"}, report: &pipeline.Report{}}
	m := loaded(t, svc)

	m, _ = update(t, m, key('/'))
	assert.Equal(t, focusWhere, m.focus)
	for _, r := range "velocity > 5" {
		m, _ = update(t, m, key(r))
	}
	// 'q' is text while editing.
	m, _ = update(t, m, key('q'))
	assert.Equal(t, focusWhere, m.focus)
	assert.Equal(t, "velocity > 5q", m.where.Value())
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, focusCountries, m.focus)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	update(t, m, cmd())
	require.Len(t, svc.requests, 1)
	assert.Equal(t, "velocity > 5", svc.requests[0].Where)
}

func TestAnalyzeErrorShown(t *testing.T) {
	svc := &stubService{countries: []string{"India"}}
	m := loaded(t, svc)
	svc.err = errors.New("history schema mismatch")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, cmd())
	assert.True(t, strings.Contains(m.renderStatus(), "history schema mismatch"))
}

func TestQuit(t *testing.T) {
	m := loaded(t, &stubService{})
	_, cmd := update(t, m, key('q'))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestStatusWraps(t *testing.T) {
	m := newModel(context.Background(), &stubService{}, "", "slow")
	m.width = 20
	m.status = []pipeline.Status{{Level: pipeline.LevelInfo, Text: "one two three four five six seven"}}
	assert.Greater(t, strings.Count(m.renderStatus(), "\n"), 0)
	assert.Equal(t, flights.ModeExact, m.mode)
}
