// Package dispatch implements an ordered registry of regular-expression
// patterns and handlers evaluated against subprocess output lines.
package dispatch

import (
	"fmt"
	"regexp"

	"github.com/cargowatch/cargowatch/model"
)

// Kind classifies a handler response.
type Kind uint8

const (
	KindLocation Kind = iota
	KindSuggestion
	KindLevelMessage
	KindNote
	KindWarning
	KindError
	KindOpenedURL
	KindProgress
	KindStage
)

// Response is the structured outcome of a handler firing on a line.
type Response struct {
	Kind           Kind
	Message        string
	File           string
	Line           int
	Col            int
	Suggestion     string
	TerminalStatus model.TerminalStatus
}

// State is per-registration scratch shared across invocations of one
// handler, used to implement local multi-line toggles.
type State struct {
	Flag  bool
	Count int
}

// Handler processes a matched line. caps holds the pattern's capture
// groups keyed by name, plus numeric keys ("1", "2", ...) for unnamed
// groups. Returning nil means no response.
type Handler func(line string, caps map[string]string, st *State) *Response

type entry struct {
	pattern *regexp.Regexp
	handler Handler
	state   State
}

// Dispatcher evaluates every registered pattern against each line, in
// registration order, without short-circuiting. It holds no state beyond
// the ordered entry list and the per-entry scratch cells; anything
// handlers share they must close over.
type Dispatcher struct {
	entries []entry
}

// New returns an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Register appends a pattern/handler pair. Registration order is the
// evaluation order of Dispatch.
func (d *Dispatcher) Register(pattern string, handler Handler) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid dispatch pattern %q: %w", pattern, err)
	}
	d.entries = append(d.entries, entry{pattern: re, handler: handler})
	return nil
}

// MustRegister is Register for patterns known valid at build time.
func (d *Dispatcher) MustRegister(pattern string, handler Handler) {
	if err := d.Register(pattern, handler); err != nil {
		panic(err)
	}
}

// Dispatch runs the line through every registered pattern and returns
// the non-nil responses in registration order. Multiple handlers may
// fire on the same line.
func (d *Dispatcher) Dispatch(line string) []Response {
	var out []Response
	for i := range d.entries {
		e := &d.entries[i]
		m := e.pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		caps := captureMap(e.pattern, m)
		if resp := e.handler(line, caps, &e.state); resp != nil {
			out = append(out, *resp)
		}
	}
	return out
}

// Len reports the number of registrations.
func (d *Dispatcher) Len() int {
	return len(d.entries)
}

func captureMap(re *regexp.Regexp, m []string) map[string]string {
	caps := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if i == 0 {
			continue
		}
		if name != "" {
			caps[name] = m[i]
		}
		caps[fmt.Sprint(i)] = m[i]
	}
	return caps
}
