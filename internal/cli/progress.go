package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProgressSpinner shows a spinner while a long operation runs
type ProgressSpinner struct {
	spinner  spinner.Model
	message  string
	plain    bool
	out      io.Writer
	complete chan struct{}
	done     chan struct{}
	style    lipgloss.Style
}

// NewProgressSpinner creates a spinner on stderr. With noColor, or on
// CI, the message is printed once instead.
func NewProgressSpinner(message string, noColor bool) *ProgressSpinner {
	return newProgressSpinner(os.Stderr, message, noColor || os.Getenv("CI") != "")
}

func newProgressSpinner(out io.Writer, message string, plain bool) *ProgressSpinner {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return &ProgressSpinner{
		spinner:  s,
		message:  message,
		plain:    plain,
		out:      out,
		complete: make(chan struct{}),
		done:     make(chan struct{}),
		style:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Start shows the spinner until Stop
func (p *ProgressSpinner) Start() {
	if p.plain {
		fmt.Fprintf(p.out, "%s...\n", p.message)
		close(p.done)
		return
	}

	prog := &spinnerProgram{
		spinner:  p.spinner,
		message:  p.message,
		complete: p.complete,
		style:    p.style,
	}

	go func() {
		defer close(p.done)
		_, _ = tea.NewProgram(prog, tea.WithOutput(p.out), tea.WithInput(nil)).Run()
	}()
}

// Stop removes the spinner and waits for it to exit
func (p *ProgressSpinner) Stop() {
	select {
	case <-p.complete:
	default:
		close(p.complete)
	}
	<-p.done
}

// Run shows message while fn runs
func Run(message string, noColor bool, fn func() error) error {
	s := NewProgressSpinner(message, noColor)
	s.Start()
	defer s.Stop()
	return fn()
}

type spinnerProgram struct {
	spinner  spinner.Model
	message  string
	complete chan struct{}
	style    lipgloss.Style
	quitting bool
}

func (s *spinnerProgram) Init() tea.Cmd {
	return tea.Batch(
		s.spinner.Tick,
		s.waitForComplete(),
	)
}

func (s *spinnerProgram) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd
	case completeMsg:
		s.quitting = true
		return s, tea.Quit
	}
	return s, nil
}

func (s *spinnerProgram) View() string {
	if s.quitting {
		return ""
	}
	return fmt.Sprintf("%s %s", s.spinner.View(), s.style.Render(s.message))
}

func (s *spinnerProgram) waitForComplete() tea.Cmd {
	return func() tea.Msg {
		<-s.complete
		return completeMsg{}
	}
}

type completeMsg struct{}
