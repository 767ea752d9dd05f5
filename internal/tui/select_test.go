package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lepinkainen/longbox/internal/comicvine"
	apperrors "github.com/lepinkainen/longbox/internal/errors"
)

func testCandidates() []comicvine.Volume {
	return []comicvine.Volume{
		{ID: 1, Name: "Batman", StartYear: 1940, Publisher: "DC", IssueCount: 713},
		{ID: 2, Name: "Batman", StartYear: 2011, Publisher: "DC", IssueCount: 52},
	}
}

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
}

func stubProgram(keys ...string) func(tea.Model) (tea.Model, error) {
	return func(m tea.Model) (tea.Model, error) {
		current := m
		for _, key := range keys {
			current, _ = current.Update(keyMsg(key))
		}
		return current, nil
	}
}

func TestSelectVolumeEnterSelects(t *testing.T) {
	original := runProgram
	runProgram = stubProgram("enter")
	defer func() { runProgram = original }()

	result, err := SelectVolume("Batman", testCandidates())
	if err != nil {
		t.Fatalf("SelectVolume returned error: %v", err)
	}

	if result.Action != ActionSelected {
		t.Fatalf("Action = %v, want ActionSelected", result.Action)
	}
	if result.Selection == nil || result.Selection.ID != 1 {
		t.Fatalf("Selection = %+v, want volume 1", result.Selection)
	}
}

func TestSelectVolumeSkip(t *testing.T) {
	original := runProgram
	runProgram = stubProgram("s")
	defer func() { runProgram = original }()

	result, err := SelectVolume("Batman", testCandidates())
	if err != nil {
		t.Fatalf("SelectVolume returned error: %v", err)
	}

	if result.Action != ActionSkipped {
		t.Fatalf("Action = %v, want ActionSkipped", result.Action)
	}
	if result.Selection != nil {
		t.Fatalf("Selection = %+v, want nil", result.Selection)
	}
}

func TestSelectVolumeStop(t *testing.T) {
	original := runProgram
	runProgram = stubProgram("q")
	defer func() { runProgram = original }()

	result, err := SelectVolume("Batman", testCandidates())
	if err != nil {
		t.Fatalf("SelectVolume returned error: %v", err)
	}

	if result.Action != ActionStopped {
		t.Fatalf("Action = %v, want ActionStopped", result.Action)
	}
}

func TestSelectVolumeNoCandidates(t *testing.T) {
	result, err := SelectVolume("Batman", nil)
	if err != nil {
		t.Fatalf("SelectVolume returned error: %v", err)
	}
	if result.Action != ActionSkipped {
		t.Fatalf("Action = %v, want ActionSkipped", result.Action)
	}
}

func TestVolumePickerStopBecomesError(t *testing.T) {
	original := runProgram
	runProgram = stubProgram("ctrl+c")
	defer func() { runProgram = original }()

	picker := VolumePicker()
	_, err := picker("Batman", testCandidates())
	if !apperrors.IsStopProcessingError(err) {
		t.Fatalf("expected StopProcessingError, got %v", err)
	}
}

func TestVolumePickerSkipReturnsNil(t *testing.T) {
	original := runProgram
	runProgram = stubProgram("esc")
	defer func() { runProgram = original }()

	picker := VolumePicker()
	selected, err := picker("Batman", testCandidates())
	if err != nil {
		t.Fatalf("picker returned error: %v", err)
	}
	if selected != nil {
		t.Fatalf("selected = %+v, want nil", selected)
	}
}

func TestItemDescription(t *testing.T) {
	item := volumeItem{Volume: comicvine.Volume{
		Name:       "The Amazing Spider-Man",
		StartYear:  1999,
		Publisher:  "Marvel",
		IssueCount: 58,
		Aliases:    []string{"ASM"},
	}}

	if got := item.Title(); got != "The Amazing Spider-Man (1999)" {
		t.Fatalf("Title = %q", got)
	}
	if got := item.Description(); got != "Marvel | 58 issues | aka ASM" {
		t.Fatalf("Description = %q", got)
	}
}
