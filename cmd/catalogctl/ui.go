package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// UI provides user-friendly output utilities. Nothing is printed in JSON
// mode except the JSON document itself.
type UI struct {
	out         io.Writer
	errOut      io.Writer
	noColor     bool
	jsonMode    bool
	interactive bool
}

// NewUI creates a new UI instance. Spinners and progress bars only render
// when stderr is a terminal.
func NewUI(out, errOut io.Writer, jsonMode, noColor bool) *UI {
	return &UI{
		out:         out,
		errOut:      errOut,
		noColor:     noColor,
		jsonMode:    jsonMode,
		interactive: !jsonMode && isTerminal(errOut),
	}
}

func (ui *UI) printf(c *color.Color, format string, args ...interface{}) {
	if ui.noColor {
		fmt.Fprintf(ui.out, format, args...)
		return
	}
	c.Fprintf(ui.out, format, args...)
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	ui.printf(color.New(color.FgGreen), "✓ %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	ui.printf(color.New(color.FgYellow), "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	ui.printf(color.New(color.FgCyan), "ℹ %s\n", fmt.Sprintf(format, args...))
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintln(ui.out)
	ui.printf(color.New(color.FgMagenta, color.Bold), "━━━ %s ━━━\n", strings.ToUpper(title))
	fmt.Fprintln(ui.out)
}

// KeyValue prints a key-value pair.
func (ui *UI) KeyValue(key string, value interface{}) {
	if ui.jsonMode {
		return
	}
	ui.printf(color.New(color.FgYellow), "  %s: ", key)
	fmt.Fprintf(ui.out, "%v\n", value)
}

// Table prints a formatted table.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len([]rune(header))
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len([]rune(cell)) > widths[i] {
				widths[i] = len([]rune(cell))
			}
		}
	}

	border := color.New(color.FgCyan, color.Bold)
	rule := func(left, mid, right, fill string) {
		var b strings.Builder
		b.WriteString(left)
		for i, w := range widths {
			b.WriteString(strings.Repeat(fill, w+2))
			if i < len(widths)-1 {
				b.WriteString(mid)
			}
		}
		b.WriteString(right)
		ui.printf(border, "%s\n", b.String())
	}
	line := func(cells []string, sep string) {
		var b strings.Builder
		b.WriteString(sep)
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(" " + cell + strings.Repeat(" ", w-len([]rune(cell))) + " ")
			b.WriteString(sep)
		}
		fmt.Fprintln(ui.out, b.String())
	}

	if ui.noColor {
		rule("+", "+", "+", "-")
		line(headers, "|")
		rule("+", "+", "+", "-")
		for _, row := range rows {
			line(row, "|")
		}
		rule("+", "+", "+", "-")
		return
	}

	rule("┌", "┬", "┐", "─")
	line(headers, "│")
	rule("├", "┼", "┤", "─")
	for _, row := range rows {
		line(row, "│")
	}
	rule("└", "┴", "┘", "─")
}

// Spinner starts an indeterminate spinner and returns its stop function.
func (ui *UI) Spinner(message string) func() {
	if !ui.interactive {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = ui.errOut
	s.Start()
	return s.Stop
}

// ProgressBar creates a progress bar, or nil when not interactive.
func (ui *UI) ProgressBar(total int, description string) *progressbar.ProgressBar {
	if !ui.interactive {
		return nil
	}
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(ui.errOut),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(ui.errOut, "\n")
		}),
	)
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// isTerminal checks if w is a character device.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
