// Package tui provides interactive terminal UI components.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lepinkainen/longbox/internal/comicvine"
	apperrors "github.com/lepinkainen/longbox/internal/errors"
)

const (
	defaultListWidth  = 72
	defaultListHeight = 20
)

var runProgram = func(m tea.Model) (tea.Model, error) {
	return tea.NewProgram(m).Run()
}

// SelectionAction represents the user's action in the selection UI.
type SelectionAction int

const (
	// ActionNone indicates no action was taken.
	ActionNone SelectionAction = iota
	// ActionSelected indicates the user selected a volume.
	ActionSelected
	// ActionSkipped indicates the user skipped this series.
	ActionSkipped
	// ActionStopped indicates the user stopped processing entirely.
	ActionStopped
)

// SelectionResult holds the result of a TUI selection.
type SelectionResult struct {
	Action    SelectionAction
	Selection *comicvine.Volume
}

type volumeItem struct {
	comicvine.Volume
}

func (i volumeItem) Title() string {
	if i.StartYear > 0 {
		return fmt.Sprintf("%s (%d)", i.Name, i.StartYear)
	}
	return i.Name
}

func (i volumeItem) FilterValue() string {
	return i.Name
}

func (i volumeItem) Description() string {
	parts := []string{fmt.Sprintf("%d issues", i.IssueCount)}
	if i.Publisher != "" {
		parts = append([]string{i.Publisher}, parts...)
	}
	if len(i.Aliases) > 0 {
		parts = append(parts, "aka "+strings.Join(i.Aliases, ", "))
	}
	return strings.Join(parts, " | ")
}

type itemStyles struct {
	normal   lipgloss.Style
	selected lipgloss.Style
	title    lipgloss.Style
	meta     lipgloss.Style
}

func newItemStyles() itemStyles {
	asciiBorder := lipgloss.Border{
		Top:         "-",
		Bottom:      "-",
		Left:        "|",
		Right:       "|",
		TopLeft:     "+",
		TopRight:    "+",
		BottomLeft:  "+",
		BottomRight: "+",
	}

	container := lipgloss.NewStyle().
		Border(asciiBorder).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Foreground(lipgloss.Color("252"))

	selected := container.Copy().
		BorderForeground(lipgloss.Color("214")).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("237"))

	return itemStyles{
		normal:   container,
		selected: selected,
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("254")),
		meta: lipgloss.NewStyle().
			Foreground(lipgloss.Color("247")).
			Faint(true),
	}
}

type volumeDelegate struct {
	styles itemStyles
}

func newDelegate() volumeDelegate {
	return volumeDelegate{styles: newItemStyles()}
}

func (d volumeDelegate) Height() int                         { return 4 }
func (d volumeDelegate) Spacing() int                        { return 1 }
func (d volumeDelegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

func (d volumeDelegate) Render(w io.Writer, m list.Model, idx int, item list.Item) {
	volume, ok := item.(volumeItem)
	if !ok {
		return
	}

	titleLine := d.styles.title.Render(volume.Title())
	metaLine := d.styles.meta.Render(truncate(volume.Description(), m.Width()-4))
	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, metaLine)

	container := d.styles.normal
	if idx == m.Index() {
		container = d.styles.selected
	}
	_, _ = fmt.Fprint(w, container.Render(content))
}

type model struct {
	list       list.Model
	seriesName string
	result     SelectionResult
}

func newModel(seriesName string, items []volumeItem) *model {
	listItems := make([]list.Item, len(items))
	for i, item := range items {
		listItems[i] = item
	}

	l := list.New(listItems, newDelegate(), defaultListWidth, defaultListHeight)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetShowPagination(false)
	l.DisableQuitKeybindings()
	l.Styles.NoItems = lipgloss.NewStyle()

	return &model{
		list:       l,
		seriesName: seriesName,
		result:     SelectionResult{Action: ActionNone},
	}
}

func (m *model) Init() tea.Cmd { return nil }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if selected, ok := m.list.SelectedItem().(volumeItem); ok {
				volume := selected.Volume
				m.result = SelectionResult{
					Action:    ActionSelected,
					Selection: &volume,
				}
				return m, tea.Quit
			}
		case "s", "esc":
			m.result = SelectionResult{Action: ActionSkipped}
			return m, tea.Quit
		case "ctrl+c", "q":
			m.result = SelectionResult{Action: ActionStopped}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		width := clamp(defaultListWidth, msg.Width-4, 40)
		height := clamp(defaultListHeight, msg.Height-6, 5)
		m.list.SetSize(width, height)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	header := headerStyle.Render(fmt.Sprintf("Multiple matches found for: %s", m.seriesName))
	listView := m.list.View()
	buttons := lipgloss.JoinHorizontal(
		lipgloss.Left,
		skipButtonStyle.Render(" Skip "),
		lipgloss.NewStyle().Padding(0, 2).Render(""),
		stopButtonStyle.Render(" Stop Processing "),
	)
	help := helpStyle.Render("Up/Down navigate | Enter select | s skip | q stop")
	return lipgloss.JoinVertical(lipgloss.Left, header, listView, buttons, help)
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")).
			MarginBottom(1)

	skipButtonStyle = lipgloss.NewStyle().
			MarginTop(1).
			Padding(0, 2).
			Background(lipgloss.Color("178")).
			Foreground(lipgloss.Color("0")).
			Bold(true)

	stopButtonStyle = lipgloss.NewStyle().
			MarginTop(1).
			Padding(0, 2).
			Background(lipgloss.Color("161")).
			Foreground(lipgloss.Color("230")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			MarginTop(1).
			Foreground(lipgloss.Color("244"))
)

// SelectVolume presents an interactive picker for ambiguous volume
// candidates.
func SelectVolume(seriesName string, candidates []comicvine.Volume) (SelectionResult, error) {
	if len(candidates) == 0 {
		return SelectionResult{Action: ActionSkipped}, nil
	}

	items := make([]volumeItem, len(candidates))
	for i, candidate := range candidates {
		items[i] = volumeItem{Volume: candidate}
	}

	finalModel, err := runProgram(newModel(seriesName, items))
	if err != nil {
		return SelectionResult{}, err
	}

	if typed, ok := finalModel.(*model); ok {
		return typed.result, nil
	}
	return SelectionResult{}, fmt.Errorf("unexpected program result")
}

// VolumePicker adapts the interactive picker to the matcher's callback
// contract: skip maps to a declined match and stop aborts the run.
func VolumePicker() comicvine.VolumePicker {
	return func(seriesName string, candidates []comicvine.Volume) (*comicvine.Volume, error) {
		result, err := SelectVolume(seriesName, candidates)
		if err != nil {
			return nil, err
		}

		switch result.Action {
		case ActionSelected:
			return result.Selection, nil
		case ActionStopped:
			return nil, apperrors.NewStopProcessingError("user stopped processing")
		default:
			return nil, nil
		}
	}
}

func truncate(value string, width int) string {
	value = strings.Join(strings.Fields(value), " ")
	if width <= 0 || len(value) <= width {
		return value
	}
	if width <= 3 {
		return value[:width]
	}
	return value[:width-3] + "..."
}

func clamp(preferred, available, minimum int) int {
	if available < minimum {
		return minimum
	}
	if available < preferred {
		return available
	}
	return preferred
}
