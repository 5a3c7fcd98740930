package cliutil

import (
	"fmt"
	"io"
)

// Writer formats CLI status output, choosing plain or colored rendering
// based on the Mode it was built with.
type Writer struct {
	out    io.Writer
	styles Styles
}

// NewWriter builds a Writer. forcePlain lets a --plain flag
// override the automatic terminal/CI detection in DetermineMode.
func NewWriter(out io.Writer, forcePlain bool) *Writer {
	return &Writer{out: out, styles: stylesFor(DetermineMode(out, forcePlain))}
}

// Success prints an affirmative status line.
func (w *Writer) Success(msg string) {
	fmt.Fprintln(w.out, w.styles.Success.Render("✓ "+msg))
}

// Successf is Success with fmt.Sprintf formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a degraded-but-recovered status line.
func (w *Writer) Warning(msg string) {
	fmt.Fprintln(w.out, w.styles.Warning.Render("! "+msg))
}

// Warningf is Warning with fmt.Sprintf formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints a failure status line.
func (w *Writer) Error(msg string) {
	fmt.Fprintln(w.out, w.styles.Error.Render("✗ "+msg))
}

// Errorf is Error with fmt.Sprintf formatting.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Label prints a dimmed key: value line.
func (w *Writer) Label(key, value string) {
	fmt.Fprintf(w.out, "%s %s\n", w.styles.Label.Render(key+":"), value)
}

// Newline prints a blank line.
func (w *Writer) Newline() {
	fmt.Fprintln(w.out)
}
