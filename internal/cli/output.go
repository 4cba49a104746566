// Package cli provides the command-line interface for the pattern scanner.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	colorGreen  = color.New(color.FgGreen)
	colorRed    = color.New(color.FgRed)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
	colorBold   = color.New(color.Bold)
	colorDim    = color.New(color.Faint)
)

// Output handles formatted output for the CLI.
type Output struct {
	writer       io.Writer
	jsonMode     bool
	colorEnabled bool
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &Output{
		writer:       cmd.OutOrStdout(),
		jsonMode:     jsonMode,
		colorEnabled: !jsonMode && isTerminal(),
	}
}

// isTerminal checks if stdout is a terminal.
func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// ColorEnabled reports whether ANSI colors are written.
func (o *Output) ColorEnabled() bool {
	return o.colorEnabled
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer {
	return o.writer
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.colored(colorGreen, format, args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.colored(colorRed, format, args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.colored(colorYellow, format, args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.colored(colorCyan, format, args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.colored(colorBold, format, args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.colored(colorDim, format, args...)
}

func (o *Output) colored(c *color.Color, format string, args ...interface{}) {
	fmt.Fprintln(o.writer, o.paint(c, fmt.Sprintf(format, args...)))
}

func (o *Output) paint(c *color.Color, s string) string {
	if !o.colorEnabled {
		return s
	}
	c.EnableColor()
	return c.Sprint(s)
}

// Green returns green colored text.
func (o *Output) Green(text string) string {
	return o.paint(colorGreen, text)
}

// Red returns red colored text.
func (o *Output) Red(text string) string {
	return o.paint(colorRed, text)
}

// Yellow returns yellow colored text.
func (o *Output) Yellow(text string) string {
	return o.paint(colorYellow, text)
}

// Cyan returns cyan colored text.
func (o *Output) Cyan(text string) string {
	return o.paint(colorCyan, text)
}

// DimText returns dimmed text.
func (o *Output) DimText(text string) string {
	return o.paint(colorDim, text)
}

// FormatPercent formats a signed percentage, green when positive.
func (o *Output) FormatPercent(pct float64) string {
	s := FormatSignedPercent(pct)
	switch {
	case pct > 0:
		return o.Green(s)
	case pct < 0:
		return o.Red(s)
	default:
		return s
	}
}

// Signal colors a setup signal by how actionable it is.
func (o *Output) Signal(signal string, brokeOut, lowRR bool) string {
	switch {
	case lowRR:
		return o.Yellow(signal)
	case brokeOut:
		return o.Green(signal)
	default:
		return o.Cyan(signal)
	}
}

// Table wraps a go-pretty table writer.
type Table struct {
	tw table.Writer
}

// NewTable creates a new table.
func NewTable(output *Output, headers ...string) *Table {
	tw := table.NewWriter()
	tw.SetOutputMirror(output.writer)
	style := table.StyleLight
	if !output.colorEnabled {
		style = table.StyleDefault
	} else {
		style.Color.Header = text.Colors{text.Bold}
	}
	style.Options.DrawBorder = false
	style.Options.SeparateColumns = false
	tw.SetStyle(style)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	return &Table{tw: tw}
}

// AlignRight right-aligns the 1-based column numbers given.
func (t *Table) AlignRight(columns ...int) {
	configs := make([]table.ColumnConfig, 0, len(columns))
	for _, n := range columns {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignRight})
	}
	t.tw.SetColumnConfigs(configs)
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	t.tw.AppendRow(row)
}

// Render renders the table.
func (t *Table) Render() {
	t.tw.Render()
}
