// Package main provides UI utilities for the PhenBOT CLI.
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
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// UI provides user-friendly output utilities.
type UI struct {
	out      io.Writer
	progress *mpb.Progress
	jsonMode bool
}

// NewUI creates a new UI instance.
func NewUI(out io.Writer, jsonMode bool) *UI {
	return &UI{out: out, jsonMode: jsonMode}
}

// Close waits for progress bars to finish rendering.
func (ui *UI) Close() {
	if ui.progress == nil {
		return
	}
	// Piped output cannot render bars and Wait may hang.
	if IsTerminal() {
		ui.progress.Wait()
	} else {
		ui.progress.Shutdown()
	}
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	ui.line(color.FgGreen, "✓", format, args...)
}

// Error prints an error message.
func (ui *UI) Error(format string, args ...interface{}) {
	ui.line(color.FgRed, "✗", format, args...)
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...interface{}) {
	ui.line(color.FgYellow, "⚠", format, args...)
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	ui.line(color.FgCyan, "ℹ", format, args...)
}

func (ui *UI) line(attr color.Attribute, symbol, format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	color.New(attr).Fprintf(ui.out, "%s %s\n", symbol, fmt.Sprintf(format, args...))
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	fmt.Fprintln(ui.out)
	color.New(color.FgMagenta, color.Bold).Fprintf(ui.out, "━━━ %s ━━━\n", strings.ToUpper(title))
	fmt.Fprintln(ui.out)
}

// KeyValue prints a key-value pair.
func (ui *UI) KeyValue(key string, value interface{}) {
	if ui.jsonMode {
		return
	}
	color.New(color.FgYellow).Fprintf(ui.out, "  %s: ", key)
	fmt.Fprintf(ui.out, "%v\n", value)
}

// ProgressBar creates an mpb bar, or nil in JSON mode.
func (ui *UI) ProgressBar(name string, total int64) *mpb.Bar {
	if ui.jsonMode {
		return nil
	}
	if ui.progress == nil {
		ui.progress = mpb.New(mpb.WithWidth(48), mpb.WithOutput(os.Stderr))
	}

	return ui.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 8}), " done"),
		),
	)
}

// Spinner starts an indeterminate spinner on stderr. Stop it with the returned func.
func (ui *UI) Spinner(message string) func() {
	if ui.jsonMode || !IsTerminal() {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	s.Start()
	return s.Stop
}

// Counter creates a deterministic progress bar on stderr for a known number of items.
func (ui *UI) Counter(total int, description string) *progressbar.ProgressBar {
	w := io.Writer(os.Stderr)
	if ui.jsonMode {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("questions"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// FormatBytes formats bytes in a human-readable way.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// IsTerminal checks if stdout is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
