// Package ui renders fusionidx CLI output: status lines, key/value blocks
// and tables, colored only when writing to a terminal without NO_COLOR.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// ColorEnabled reports whether output to w should be colored.
func ColorEnabled(w io.Writer) bool {
	return IsTTY(w) && !DetectNoColor()
}

// Printer writes styled CLI output.
type Printer struct {
	out    io.Writer
	styles Styles
}

// NewPrinter returns a printer for w, colored when ColorEnabled(w).
func NewPrinter(w io.Writer) *Printer {
	return &Printer{out: w, styles: GetStyles(!ColorEnabled(w))}
}

// NewPlainPrinter returns a printer that never colors.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{out: w, styles: NoColorStyles()}
}

// Styles returns the printer's styles.
func (p *Printer) Styles() Styles { return p.styles }

// Success prints a confirmation line.
func (p *Printer) Success(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.styles.Success.Render("✓ "+fmt.Sprintf(format, args...)))
}

// Warn prints a warning line.
func (p *Printer) Warn(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.styles.Warning.Render("! "+fmt.Sprintf(format, args...)))
}

// Error prints an error block as produced by errors.FormatForCLI.
func (p *Printer) Error(text string) {
	_, _ = fmt.Fprintln(p.out, p.styles.Error.Render(strings.TrimRight(text, "\n")))
}

// Header prints a section title.
func (p *Printer) Header(title string) {
	_, _ = fmt.Fprintln(p.out, p.styles.Header.Render(title))
}

// KeyValues prints aligned "label  value" pairs. pairs alternates labels
// and values.
func (p *Printer) KeyValues(pairs ...string) {
	width := 0
	for i := 0; i+1 < len(pairs); i += 2 {
		width = max(width, lipgloss.Width(pairs[i]))
	}
	label := p.styles.Label.Width(width + 2)
	for i := 0; i+1 < len(pairs); i += 2 {
		_, _ = fmt.Fprintln(p.out, "  "+label.Render(pairs[i])+pairs[i+1])
	}
}

// Table prints rows under headers with columns padded to their widest cell.
func (p *Printer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			w := widths[i]
			if i < len(widths)-1 {
				w += 2
			}
			parts[i] = style.Width(w).Render(cell)
		}
		return strings.TrimRight(strings.Join(parts, ""), " ")
	}

	_, _ = fmt.Fprintln(p.out, line(headers, p.styles.Header))
	for _, row := range rows {
		_, _ = fmt.Fprintln(p.out, line(row, lipgloss.NewStyle()))
	}
}

// Slot renders a slot name in the slot style.
func (p *Printer) Slot(name string) string {
	return p.styles.Slot.Render(name)
}
