package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tomyedwab/wifigrid/database"
	"github.com/tomyedwab/wifigrid/state"
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusResults PanelFocus = iota
	FocusNetworks
)

// Model is the root bubbletea model of the live viewer. Both panels are fed
// by live queries, so writes made through the API show up immediately.
type Model struct {
	dao *state.Dao

	results  []state.TestResult
	networks []state.SelectedNetwork

	resultsQuery  *database.LiveQuery[state.TestResult]
	networksQuery *database.LiveQuery[state.SelectedNetwork]

	focusedPanel    PanelFocus
	selectedResult  int
	selectedNetwork int
	width           int
	height          int

	errorMessage string
}

func New(dao *state.Dao) Model {
	return Model{dao: dao, focusedPanel: FocusResults}
}

// Init starts both live queries.
func (m Model) Init() tea.Cmd {
	return tea.Batch(watchResultsCmd(m.dao), watchNetworksCmd(m.dao))
}

func watchResultsCmd(dao *state.Dao) tea.Cmd {
	return func() tea.Msg {
		q, err := dao.GetRankedResults(context.Background())
		if err != nil {
			return LiveQueryErrorMsg{Err: err}
		}
		return resultsWatchMsg{query: q}
	}
}

func watchNetworksCmd(dao *state.Dao) tea.Cmd {
	return func() tea.Msg {
		q, err := dao.GetSelectedNetworks(context.Background())
		if err != nil {
			return LiveQueryErrorMsg{Err: err}
		}
		return networksWatchMsg{query: q}
	}
}

// nextSnapshotCmd waits for the next snapshot of q and wraps it in a message.
func nextSnapshotCmd[T any](q *database.LiveQuery[T], wrap func([]T) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		snapshot, ok := <-q.Updates()
		if !ok {
			if err := q.Err(); err != nil {
				return LiveQueryErrorMsg{Err: err}
			}
			return nil
		}
		return wrap(snapshot)
	}
}

func nextResultsCmd(q *database.LiveQuery[state.TestResult]) tea.Cmd {
	return nextSnapshotCmd(q, func(results []state.TestResult) tea.Msg {
		return ResultsSnapshotMsg{Results: results}
	})
}

func nextNetworksCmd(q *database.LiveQuery[state.SelectedNetwork]) tea.Cmd {
	return nextSnapshotCmd(q, func(networks []state.SelectedNetwork) tea.Msg {
		return NetworksSnapshotMsg{Networks: networks}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case resultsWatchMsg:
		m.resultsQuery = msg.query
		return m, nextResultsCmd(m.resultsQuery)

	case networksWatchMsg:
		m.networksQuery = msg.query
		return m, nextNetworksCmd(m.networksQuery)

	case ResultsSnapshotMsg:
		m.results = msg.Results
		m.selectedResult = clamp(m.selectedResult, len(m.results))
		if m.resultsQuery == nil {
			return m, nil
		}
		return m, nextResultsCmd(m.resultsQuery)

	case NetworksSnapshotMsg:
		m.networks = msg.Networks
		m.selectedNetwork = clamp(m.selectedNetwork, len(m.networks))
		if m.networksQuery == nil {
			return m, nil
		}
		return m, nextNetworksCmd(m.networksQuery)

	case LiveQueryErrorMsg:
		m.errorMessage = msg.Err.Error()
		return m, nil
	}

	return m, nil
}

func clamp(i, n int) int {
	if i >= n {
		i = n - 1
	}
	return max(0, i)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyCtrlC:
		m.close()
		return m, tea.Quit

	case KeyTab:
		if m.focusedPanel == FocusResults {
			m.focusedPanel = FocusNetworks
		} else {
			m.focusedPanel = FocusResults
		}

	case KeyDown, KeyJ:
		if m.focusedPanel == FocusResults {
			m.selectedResult = clamp(m.selectedResult+1, len(m.results))
		} else {
			m.selectedNetwork = clamp(m.selectedNetwork+1, len(m.networks))
		}

	case KeyUp, KeyK:
		if m.focusedPanel == FocusResults {
			m.selectedResult = clamp(m.selectedResult-1, len(m.results))
		} else {
			m.selectedNetwork = clamp(m.selectedNetwork-1, len(m.networks))
		}
	}
	return m, nil
}

// close stops the live queries. Their pending next-snapshot commands return
// once the update channels are closed.
func (m Model) close() {
	if m.resultsQuery != nil {
		m.resultsQuery.Close()
	}
	if m.networksQuery != nil {
		m.networksQuery.Close()
	}
}

func (m Model) View() string {
	resultsPanel := m.renderPanel("Results", FocusResults, m.resultLines(), m.selectedResult)
	networksPanel := m.renderPanel("Networks", FocusNetworks, m.networkLines(), m.selectedNetwork)

	var b strings.Builder
	b.WriteString(titleStyle.Render("wifigrid"))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, resultsPanel, networksPanel))
	b.WriteString("\n")
	if m.errorMessage != "" {
		b.WriteString(errorStyle.Render("Error: " + m.errorMessage))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("%d results, %d networks  tab: switch  j/k: move  q: quit",
		len(m.results), len(m.networks))))
	return b.String()
}

func (m Model) renderPanel(title string, panel PanelFocus, lines []string, selected int) string {
	titleRender := panelTitleStyle
	style := panelStyle
	if m.focusedPanel == panel {
		titleRender = panelTitleActiveStyle
		style = panelActiveStyle
	}

	var b strings.Builder
	b.WriteString(titleRender.Render(title))
	if len(lines) == 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("(empty)"))
	}
	for i, line := range lines {
		b.WriteString("\n")
		if i == selected && m.focusedPanel == panel {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
	}
	return style.Render(b.String())
}

func (m Model) resultLines() []string {
	lines := make([]string, 0, len(m.results))
	for _, r := range m.results {
		ts := time.UnixMilli(r.Timestamp).Format("2006-01-02 15:04")
		lines = append(lines, fmt.Sprintf("%s  %-16s %6.1f/%-6.1f Mbps %4dms %3d %s",
			ts, r.Ssid, r.DownloadMbps, r.UploadMbps, r.LatencyMs, r.ReliabilityScore, r.QualityLabel))
	}
	return lines
}

func (m Model) networkLines() []string {
	lines := make([]string, 0, len(m.networks))
	for _, n := range m.networks {
		status := dimStyle.Render("off")
		if n.IsEnabled {
			status = enabledStyle.Render("on ")
		}
		lines = append(lines, fmt.Sprintf("%s %s", status, n.Ssid))
	}
	return lines
}
