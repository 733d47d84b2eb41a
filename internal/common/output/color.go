package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	// Message colors
	Success = color.New(color.FgGreen)
	Warning = color.New(color.FgYellow)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Dim     = color.New(color.Faint)

	// Structural colors
	Header = color.New(color.FgWhite, color.Bold)
	Key    = color.New(color.FgBlue, color.Bold)
)

// Colors maps the color names accepted in status definitions to the palette
var Colors = map[string]*color.Color{
	"green":  Success,
	"yellow": Warning,
	"red":    Error,
	"cyan":   Info,
	"gray":   Dim,
	"white":  Header,
}

// NoColor disables color output
func NoColor() {
	color.NoColor = true
}

// ForceColor enables color output even when not a TTY
func ForceColor() {
	color.NoColor = false
}

// IsTerminal returns true if stdout is a terminal
func IsTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// ByName returns the palette color for name, or a reset color when unknown
func ByName(name string) *color.Color {
	if c, ok := Colors[name]; ok {
		return c
	}
	return color.New(color.Reset)
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	Success.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	Error.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	Warning.Printf("⚠ "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	Info.Printf("→ "+format+"\n", args...)
}

// Sprintf returns a colored string without printing
func Sprintf(c *color.Color, format string, args ...interface{}) string {
	return c.Sprintf(format, args...)
}

// Sprint returns a colored string without printing
func Sprint(c *color.Color, a ...interface{}) string {
	return c.Sprint(a...)
}

// FormatLabel formats a status label as "[label]" in the given color
func FormatLabel(c *color.Color, label string) string {
	return c.Sprintf("[%s]", label)
}

// KeyValue writes an aligned "key: value" line
func KeyValue(w io.Writer, key, value string) {
	fmt.Fprintf(w, "  %s %s\n", Key.Sprintf("%-10s", key+":"), value)
}
