package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"codemcp/internal/coder"
)

type taskDoneMsg struct {
	res coder.Result
	err error
}

// progressModel shows a spinner while one task runs. Ctrl+C or Esc cancels
// the request.
type progressModel struct {
	spinner spinner.Model
	label   string
	run     func() (coder.Result, error)
	cancel  context.CancelFunc

	done bool
	res  coder.Result
	err  error
}

func newProgressModel(label string, run func() (coder.Result, error), cancel context.CancelFunc) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(clrBrand)
	return progressModel{spinner: s, label: label, run: run, cancel: cancel}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		res, err := m.run()
		return taskDoneMsg{res: res, err: err}
	})
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancel()
			m.done = true
			m.err = context.Canceled
			return m, tea.Quit
		}
		return m, nil
	case taskDoneMsg:
		m.done = true
		m.res, m.err = msg.res, msg.err
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + m.label + "...\n"
}

func runWithProgress(ctx context.Context, w io.Writer, label string, call func(context.Context) (coder.Result, error)) (coder.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newProgressModel(label, func() (coder.Result, error) { return call(ctx) }, cancel)
	final, err := tea.NewProgram(m, tea.WithOutput(w), tea.WithContext(ctx)).Run()
	if err != nil {
		return coder.Result{}, err
	}
	pm, ok := final.(progressModel)
	if !ok {
		return coder.Result{}, context.Canceled
	}
	return pm.res, pm.err
}
