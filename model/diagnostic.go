package model

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Severity classifies a compiler diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityHelp    Severity = "help"
	SeverityNote    Severity = "note"
)

// ParseSeverity maps a diagnostic header word to a Severity.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityError, SeverityWarning, SeverityHelp, SeverityNote:
		return Severity(s), true
	}
	return "", false
}

// Diagnostic is a single structured compiler finding, assembled from
// consecutive stderr lines. It is only mutated while held in the
// pipeline's pending slot; once committed it must be treated as
// read-only.
type Diagnostic struct {
	// Location reference in file:line:col form, empty if the
	// diagnostic carried no --> line
	LineRef string `json:"lineref,omitempty"`
	// Severity level (error, warning, help, note)
	Severity Severity `json:"level"`
	// Human-readable message from the header line
	Message string `json:"message"`
	// Compiler error code (e.g. "E0308"), if present
	Code string `json:"code,omitempty"`
	// Source-context replacement lines, newline-joined
	Suggestion string `json:"suggestion,omitempty"`
	// Freeform note text, may include a reconstructed backtrace
	Note string `json:"note,omitempty"`
	// Help text, newline-joined
	Help string `json:"help,omitempty"`
	// Per-severity sequence number (1-based)
	Seq int `json:"seq"`
	// Zero-padding width for the sequence number in rendered output
	NumPadding int `json:"num_padding,omitempty"`
}

var (
	errorColor   = color.New(color.FgRed)
	warningColor = color.New(color.FgYellow)
	noteColor    = color.New(color.FgGreen)
	helpColor    = color.New(color.FgHiYellow)
	backColor    = color.New(color.FgBlue)
	linerefStyle = color.New(color.Underline)
)

// Tag returns the compact severity tag, e.g. "E01" or "W03".
func (d *Diagnostic) Tag() string {
	letter := "N"
	switch d.Severity {
	case SeverityError:
		letter = "E"
	case SeverityWarning:
		letter = "W"
	case SeverityHelp:
		letter = "H"
	}
	pad := d.NumPadding
	if pad <= 0 {
		pad = 2
	}
	return fmt.Sprintf("%s%0*d", letter, pad, d.Seq)
}

// Render formats the diagnostic for terminal display. With useColor the
// severity tag and message are colored and the lineref underlined.
func (d *Diagnostic) Render(useColor bool) string {
	msgColor := noteColor
	switch d.Severity {
	case SeverityError:
		msgColor = errorColor
	case SeverityWarning:
		msgColor = warningColor
	case SeverityHelp:
		msgColor = helpColor
	}

	var b strings.Builder
	if useColor {
		b.WriteString(msgColor.Sprintf("%s:", d.Tag()))
	} else {
		fmt.Fprintf(&b, "%s:", d.Tag())
	}
	if d.LineRef != "" {
		b.WriteByte(' ')
		if useColor {
			b.WriteString(linerefStyle.Sprint(d.LineRef))
		} else {
			b.WriteString(d.LineRef)
		}
	}
	b.WriteByte(' ')
	if useColor {
		b.WriteString(msgColor.Sprint(d.Message))
	} else {
		b.WriteString(d.Message)
	}
	if d.Suggestion != "" {
		b.WriteByte('\n')
		if useColor {
			b.WriteString(noteColor.Sprint(d.Suggestion))
		} else {
			b.WriteString(d.Suggestion)
		}
	}
	if d.Note != "" {
		b.WriteByte('\n')
		if useColor {
			b.WriteString(backColor.Sprint(d.Note))
		} else {
			b.WriteString(d.Note)
		}
	}
	if d.Help != "" {
		b.WriteByte('\n')
		if useColor {
			b.WriteString(helpColor.Sprint(d.Help))
		} else {
			b.WriteString(d.Help)
		}
	}
	return b.String()
}
