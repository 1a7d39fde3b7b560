package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Output prints status lines for the operator
type Output struct {
	out    io.Writer
	errOut io.Writer
	quiet  bool

	success lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
	info    lipgloss.Style
}

// NewOutput creates an output writing to stdout and stderr. Colour is
// used only on a terminal and when noColor and NO_COLOR are unset.
func NewOutput(noColor, quiet bool) *Output {
	useColor := !noColor && os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())
	return NewOutputTo(os.Stdout, os.Stderr, useColor, quiet)
}

// NewOutputTo creates an output on the given writers
func NewOutputTo(out, errOut io.Writer, useColor, quiet bool) *Output {
	renderer := lipgloss.NewRenderer(out)
	if useColor {
		renderer.SetColorProfile(termenv.ANSI256)
	} else {
		renderer.SetColorProfile(termenv.Ascii)
	}

	return &Output{
		out:     out,
		errOut:  errOut,
		quiet:   quiet,
		success: renderer.NewStyle().Foreground(lipgloss.Color("42")),
		failure: renderer.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		warning: renderer.NewStyle().Foreground(lipgloss.Color("208")),
		info:    renderer.NewStyle().Foreground(lipgloss.Color("12")),
	}
}

// PrintSuccess prints a success message
func (o *Output) PrintSuccess(format string, args ...any) {
	if !o.quiet {
		fmt.Fprintf(o.out, "%s %s\n", o.success.Render("✓"), fmt.Sprintf(format, args...))
	}
}

// PrintInfo prints an informational message
func (o *Output) PrintInfo(format string, args ...any) {
	if !o.quiet {
		fmt.Fprintf(o.out, "%s %s\n", o.info.Render("ℹ"), fmt.Sprintf(format, args...))
	}
}

// PrintWarning prints a warning; shown even in quiet mode
func (o *Output) PrintWarning(format string, args ...any) {
	fmt.Fprintf(o.errOut, "%s %s\n", o.warning.Render("!"), fmt.Sprintf(format, args...))
}

// PrintError prints an error; shown even in quiet mode
func (o *Output) PrintError(err error) {
	fmt.Fprintf(o.errOut, "%s %s\n", o.failure.Render("✗ Error:"), err)
}
