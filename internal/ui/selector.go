package ui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/rivo/tview"
)

// Option is one pickable entry: Label is what the user sees, Value is
// what the caller gets back (a command, a file path).
type Option struct {
	Label string
	Value string
}

// Select presents a picker over the options. Returns the chosen option,
// whether an interactive backend handled the pick, and any backend error.
// handled=true with an empty Value means the user cancelled.
func Select(backend string, title string, options []Option) (Option, bool, error) {
	options = dedupeOptions(options)
	if len(options) == 0 {
		return Option{}, false, nil
	}

	var firstErr error
	for _, candidate := range backendCandidates(backend) {
		var (
			selected Option
			used     bool
			err      error
		)
		switch candidate {
		case BackendBubbleTea:
			selected, used, err = selectWithBubbleTea(title, options)
		case BackendHuh:
			selected, used, err = selectWithHuh(title, options)
		case BackendTView:
			selected, used, err = selectWithTView(title, options)
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
		if used {
			return selected, true, nil
		}
	}
	if firstErr != nil {
		return Option{}, false, firstErr
	}
	return Option{}, false, nil
}

func dedupeOptions(options []Option) []Option {
	out := make([]Option, 0, len(options))
	seen := map[string]struct{}{}
	for _, option := range options {
		value := strings.TrimSpace(option.Value)
		if value == "" {
			continue
		}
		key := strings.ToLower(value)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if strings.TrimSpace(option.Label) == "" {
			option.Label = value
		}
		option.Value = value
		out = append(out, option)
	}
	return out
}

func selectWithHuh(title string, options []Option) (Option, bool, error) {
	huhOptions := make([]huh.Option[string], 0, len(options))
	lookup := map[string]Option{}
	for _, option := range options {
		huhOptions = append(huhOptions, huh.NewOption(option.Label, option.Value))
		lookup[strings.ToLower(option.Value)] = option
	}

	choice := huhOptions[0].Value

	prompt := huh.NewSelect[string]().
		Title(title).
		Options(huhOptions...).
		Filtering(true).
		Height(huhSelectHeight(len(huhOptions))).
		Value(&choice).
		WithTheme(huh.ThemeCharm())

	err := prompt.Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return Option{}, true, nil
		}
		return Option{}, false, err
	}
	selected, ok := lookup[strings.ToLower(strings.TrimSpace(choice))]
	if !ok {
		return Option{}, true, nil
	}
	return selected, true, nil
}

type bubbleSelectorItem struct {
	label string
	value string
}

func (i bubbleSelectorItem) Title() string       { return i.label }
func (i bubbleSelectorItem) Description() string { return "" }
func (i bubbleSelectorItem) FilterValue() string { return i.label + " " + i.value }

type bubbleSelectorModel struct {
	list      list.Model
	selection string
	cancelled bool
	options   int
}

func (m bubbleSelectorModel) Init() tea.Cmd { return nil }

func (m bubbleSelectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch k := msg.(type) {
	case tea.WindowSizeMsg:
		width, height := bubblePickerSize(k.Width, k.Height, m.options)
		m.list.SetSize(width, height)
		return m, nil
	case tea.KeyMsg:
		switch k.String() {
		case "q", "esc", "ctrl+c":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(bubbleSelectorItem); ok {
				m.selection = item.value
			}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m bubbleSelectorModel) View() string {
	return m.list.View()
}

func selectWithBubbleTea(title string, options []Option) (Option, bool, error) {
	items := make([]list.Item, 0, len(options))
	lookup := map[string]Option{}
	for _, option := range options {
		lookup[strings.ToLower(option.Value)] = option
		items = append(items, bubbleSelectorItem{
			label: option.Label,
			value: option.Value,
		})
	}

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	initialWidth, initialHeight := bubblePickerSize(80, 24, len(items))
	picker := list.New(items, delegate, initialWidth, initialHeight)
	picker.Title = title
	picker.SetShowHelp(false)
	picker.SetFilteringEnabled(true)

	model := bubbleSelectorModel{list: picker, options: len(items)}
	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if err != nil {
		return Option{}, false, err
	}
	out, ok := final.(bubbleSelectorModel)
	if !ok {
		return Option{}, true, nil
	}
	if out.cancelled {
		return Option{}, true, nil
	}

	selection := strings.ToLower(strings.TrimSpace(out.selection))
	if selection == "" {
		return Option{}, true, nil
	}
	selected, ok := lookup[selection]
	if !ok {
		return Option{}, true, nil
	}
	return selected, true, nil
}

func selectWithTView(title string, options []Option) (Option, bool, error) {
	app := tview.NewApplication()
	listView := tview.NewList()
	listView.SetBorder(true)
	listView.SetTitle(title)
	listView.ShowSecondaryText(false)

	selected := Option{}
	used := false
	for _, option := range options {
		current := option
		listView.AddItem(current.Label, "", 0, func() {
			selected = current
			used = true
			app.Stop()
		})
	}
	listView.SetDoneFunc(func() {
		app.Stop()
	})

	if err := app.SetRoot(listView, true).SetFocus(listView).Run(); err != nil {
		return Option{}, false, err
	}
	if !used {
		return Option{}, true, nil
	}
	return selected, true, nil
}

func clampInt(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func bubblePickerSize(termWidth, termHeight, optionCount int) (int, int) {
	if termWidth <= 0 {
		termWidth = 80
	}
	if termHeight <= 0 {
		termHeight = 24
	}
	if optionCount < 1 {
		optionCount = 1
	}

	maxWidth := termWidth
	minWidth := 32
	if maxWidth < minWidth {
		minWidth = maxWidth
	}
	width := clampInt(termWidth-4, minWidth, maxWidth)

	visibleItems := clampInt(optionCount, 3, 12)
	desiredHeight := visibleItems + 6

	maxHeight := termHeight - 2
	if maxHeight <= 0 {
		maxHeight = termHeight
	}
	if maxHeight <= 0 {
		maxHeight = 1
	}
	minHeight := 8
	if maxHeight < minHeight {
		minHeight = maxHeight
	}
	height := clampInt(desiredHeight, minHeight, maxHeight)
	return width, height
}

func huhSelectHeight(optionCount int) int {
	if optionCount < 1 {
		optionCount = 1
	}
	return clampInt(optionCount+1, 4, 10)
}
