package ui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/rivo/tview"
)

// ConfirmExecution asks before a shell command runs. source says where the
// command came from (generated, remembered, typed). Returns approved,
// handled, error; handled=false means no interactive backend could run and
// the caller must fall back to a plain prompt.
func ConfirmExecution(backend string, command string, source string) (bool, bool, error) {
	var firstErr error
	for _, candidate := range backendCandidates(backend) {
		var (
			approved bool
			err      error
		)
		switch candidate {
		case BackendBubbleTea:
			approved, err = confirmWithBubbleTea(command, source)
		case BackendHuh:
			approved, err = confirmWithHuh(command, source)
		case BackendTView:
			approved, err = confirmWithTView(command, source)
		case BackendPlain:
			continue
		default:
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return approved, true, nil
	}
	if firstErr != nil {
		return false, false, firstErr
	}
	return false, false, nil
}

type bubbleConfirmModel struct {
	command  string
	source   string
	approved bool
	done     bool
}

func (m bubbleConfirmModel) Init() tea.Cmd { return nil }

func (m bubbleConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch k := msg.(type) {
	case tea.KeyMsg:
		switch strings.ToLower(k.String()) {
		case "y":
			m.approved = true
			m.done = true
			return m, tea.Quit
		case "n", "esc", "ctrl+c", "enter":
			m.approved = false
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m bubbleConfirmModel) View() string {
	return fmt.Sprintf(
		"Kaia wants to run:\n\n%s\n\nsource: %s\n\n[y] run  [n] cancel",
		m.command,
		strings.TrimSpace(m.source),
	)
}

func confirmWithBubbleTea(command string, source string) (bool, error) {
	model := bubbleConfirmModel{command: strings.TrimSpace(command), source: strings.TrimSpace(source)}
	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if err != nil {
		return false, err
	}
	out, ok := final.(bubbleConfirmModel)
	if !ok {
		return false, nil
	}
	if !out.done {
		return false, nil
	}
	return out.approved, nil
}

func confirmWithHuh(command string, source string) (bool, error) {
	approved := false
	prompt := huh.NewConfirm().
		Title("Kaia wants to run:").
		Description(fmt.Sprintf("%s\nsource: %s", strings.TrimSpace(command), strings.TrimSpace(source))).
		Affirmative("Run").
		Negative("Cancel").
		Value(&approved).
		WithTheme(huh.ThemeCharm())
	err := prompt.Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return approved, nil
}

func confirmWithTView(command string, source string) (bool, error) {
	app := tview.NewApplication()
	approved := false
	done := false

	text := fmt.Sprintf("Kaia wants to run:\n\n%s\n\nsource: %s", strings.TrimSpace(command), strings.TrimSpace(source))
	modal := tview.NewModal().
		SetText(text).
		AddButtons([]string{"Run", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			done = true
			approved = strings.EqualFold(strings.TrimSpace(label), "run")
			app.Stop()
		})

	if err := app.SetRoot(modal, true).Run(); err != nil {
		return false, err
	}
	if !done {
		return false, nil
	}
	return approved, nil
}
