// Package ui shows a busy indicator while a blocking call is in flight.
package ui

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#88C0D0"))

type doneMsg struct{}

type model struct {
	spinner spinner.Model
	label   string
	done    bool
}

func newModel(label string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle
	return model{spinner: s, label: label}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + m.label + "\n"
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// WithSpinner runs fn while drawing a spinner on out. When enabled is false
// fn is called directly. Input is not read; cancelling ctx stops the spinner
// and WithSpinner still waits for fn to return.
func WithSpinner[T any](ctx context.Context, out io.Writer, label string, enabled bool, fn func(context.Context) (T, error)) (T, error) {
	if !enabled {
		return fn(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)

	program := tea.NewProgram(newModel(label),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithContext(ctx),
	)

	go func() {
		value, err := fn(ctx)
		done <- outcome{value: value, err: err}
		program.Send(doneMsg{})
	}()

	if _, err := program.Run(); err != nil {
		cancel()
	}

	result := <-done
	return result.value, result.err
}
