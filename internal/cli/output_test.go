package cli

import (
	"bytes"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutput(t *testing.T) {
	tests := []struct {
		name      string
		quiet     bool
		print     func(o *Output)
		wantOut   string
		wantError string
	}{
		{
			name:    "success",
			print:   func(o *Output) { o.PrintSuccess("Relaying messages to %s", "student@pwr.edu.pl") },
			wantOut: "✓ Relaying messages to student@pwr.edu.pl\n",
		},
		{
			name:    "info",
			print:   func(o *Output) { o.PrintInfo("Checking every %ds", 240) },
			wantOut: "ℹ Checking every 240s\n",
		},
		{
			name:      "warning goes to stderr",
			print:     func(o *Output) { o.PrintWarning("keyring unavailable") },
			wantError: "! keyring unavailable\n",
		},
		{
			name:      "error goes to stderr",
			print:     func(o *Output) { o.PrintError(errors.New("login not successful")) },
			wantError: "✗ Error: login not successful\n",
		},
		{
			name:  "quiet suppresses success",
			quiet: true,
			print: func(o *Output) { o.PrintSuccess("done") },
		},
		{
			name:  "quiet suppresses info",
			quiet: true,
			print: func(o *Output) { o.PrintInfo("waiting") },
		},
		{
			name:      "quiet keeps errors",
			quiet:     true,
			print:     func(o *Output) { o.PrintError(errors.New("boom")) },
			wantError: "✗ Error: boom\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			o := NewOutputTo(&out, &errOut, false, tt.quiet)

			tt.print(o)

			assert.Equal(t, tt.wantOut, out.String())
			assert.Equal(t, tt.wantError, errOut.String())
		})
	}
}

func TestOutput_ColorAddsEscapes(t *testing.T) {
	var out bytes.Buffer
	o := NewOutputTo(&out, &out, true, false)

	o.PrintSuccess("ok")

	assert.Contains(t, out.String(), "\x1b[")
	assert.Contains(t, out.String(), "ok")
}

func TestProgressSpinner_Plain(t *testing.T) {
	var out bytes.Buffer
	s := newProgressSpinner(&out, "Validating credentials", true)

	s.Start()
	s.Stop()
	s.Stop()

	assert.Equal(t, "Validating credentials...\n", out.String())
}

func TestSpinnerProgram(t *testing.T) {
	complete := make(chan struct{})
	s := newProgressSpinner(&bytes.Buffer{}, "Checking mailbox", false)
	prog := &spinnerProgram{
		spinner:  s.spinner,
		message:  s.message,
		complete: complete,
		style:    s.style,
	}

	require.NotNil(t, prog.Init())
	assert.Contains(t, prog.View(), "Checking mailbox")

	close(complete)
	msg := prog.waitForComplete()()
	_, ok := msg.(completeMsg)
	require.True(t, ok)

	_, cmd := prog.Update(msg)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, prog.View())
}
