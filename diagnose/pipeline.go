// Package diagnose reconstructs structured compiler diagnostics from the
// free-form text the build tool writes to stderr.
package diagnose

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cargowatch/cargowatch/dispatch"
	"github.com/cargowatch/cargowatch/manifest"
	"github.com/cargowatch/cargowatch/model"
)

// phase is the explicit pipeline state driving Advance. It replaces the
// implicit ordering between pattern registrations with one enumerated
// mode per multi-line construct.
type phase uint8

const (
	phaseIdle phase = iota
	phaseAwaitLocation
	phaseAwaitSuggestion
	phaseInBacktrace
)

const lookBehindDepth = 6

var (
	headerRe     = regexp.MustCompile(`^(?P<level>\w+)(?:\[(?P<code>E\d+)\])?:\s+(?P<msg>.+)$`)
	generatedRe  = regexp.MustCompile(`generated\s+\d+`)
	locationRe   = regexp.MustCompile(`^\s*-->\s+(?P<file>.+?)(?::(?P<line>\d+))?(?::(?P<col>\d+))?\s*$`)
	suggestionRe = regexp.MustCompile(`^\s*(\d+)\s*\|\s*(.*)$`)
	noteRe       = regexp.MustCompile(`^\s*=\s*note:\s*(?P<msg>.+)$`)
	helpRe       = regexp.MustCompile(`^\s*(?:=|\|)\s*help:\s*(?P<msg>.+)$`)
	backtraceRe  = regexp.MustCompile(`stack backtrace:`)
	frameRe      = regexp.MustCompile(`^\s*(\d+):\s+(.*)$`)
	framePathRe  = regexp.MustCompile(`^\s*at\s+([^\s:]+):(\d+)`)
)

// Hooks connect the pipeline to supervisor-owned shared state. All
// fields are optional.
type Hooks struct {
	// Commit receives every completed diagnostic, exactly once each.
	Commit func(model.Diagnostic)
	// CouldNotCompile fires when the compile-failure summary is seen.
	CouldNotCompile func()
	// BuildFinished fires when a line implies the build phase ended.
	BuildFinished func(time.Time)
	// Terminal fires when the stream reports a missing terminal.
	Terminal func(model.TerminalStatus)
}

// Config configures a Pipeline.
type Config struct {
	// Resolver turns relative diagnostic paths into absolute ones.
	Resolver manifest.Resolver
	Hooks    Hooks
	// Echo receives every raw line (the catch-all stage). Nil disables.
	Echo io.Writer
	// FilterPrefixes are extra path fragments, beyond the toolchain
	// defaults, whose backtrace frames are dropped.
	FilterPrefixes []string
}

// Pipeline is the stateful line classifier for one stderr stream. It is
// owned by a single reader goroutine and needs no locking; everything it
// shares with the rest of the run goes through Hooks.
type Pipeline struct {
	resolver manifest.Resolver
	hooks    Hooks
	aux      *dispatch.Dispatcher
	filter   []string

	phase   phase
	pending *model.Diagnostic
	// Location of the pending diagnostic, used for suggestion rewrite
	pendingFile string
	pendingLine int

	lookBehind []string
	btLines    []string
	btContext  []string
	counts     map[model.Severity]int
}

// New builds a pipeline. A nil resolver leaves paths untouched.
func New(cfg Config) *Pipeline {
	if cfg.Resolver == nil {
		cfg.Resolver = manifest.DirResolver{}
	}
	p := &Pipeline{
		resolver: cfg.Resolver,
		hooks:    cfg.Hooks,
		filter:   append([]string{".cargo", ".rustup"}, cfg.FilterPrefixes...),
		counts:   make(map[model.Severity]int),
	}
	p.aux = newAuxDispatcher(cfg.Hooks, cfg.Echo)
	return p
}

// newAuxDispatcher registers the stateless stderr patterns: panic
// headers, the compile-failure summary, build-finished and
// warnings-generated summaries, terminal detection, and the catch-all
// echo (which must stay last).
func newAuxDispatcher(hooks Hooks, echo io.Writer) *dispatch.Dispatcher {
	d := dispatch.New()

	d.MustRegister(
		`^thread '(?P<thread>[^']+)' panicked at (?P<msg>.+?):?\s*(?P<file>[^\s:]+):(?P<line>\d+):(?P<col>\d+)`,
		func(line string, caps map[string]string, _ *dispatch.State) *dispatch.Response {
			lineNum, _ := strconv.Atoi(caps["line"])
			colNum, _ := strconv.Atoi(caps["col"])
			return &dispatch.Response{
				Kind: dispatch.KindError,
				Message: fmt.Sprintf("thread '%s' panicked at %s (%s:%d:%d)",
					caps["thread"], caps["msg"], caps["file"], lineNum, colNum),
				File: caps["file"],
				Line: lineNum,
				Col:  colNum,
			}
		})

	d.MustRegister(
		"error: could not compile `(?P<name>.+)` \\((?P<reason>.+)\\) due to (?P<errs>\\d+) (?:previous )?errors?(?:; (?P<warns>\\d+) warnings? emitted)?",
		func(line string, caps map[string]string, _ *dispatch.State) *dispatch.Response {
			if hooks.CouldNotCompile != nil {
				hooks.CouldNotCompile()
			}
			return nil
		})

	d.MustRegister(
		"^\\s*Finished\\s+`(?P<profile>[^`]+)`\\s+profile\\s+\\[(?P<opts>[^\\]]+)\\]\\s+target\\(s\\)\\s+in\\s+(?P<dur>[0-9.]+s)\\s*$",
		func(line string, caps map[string]string, _ *dispatch.State) *dispatch.Response {
			if hooks.BuildFinished != nil {
				hooks.BuildFinished(time.Now())
			}
			return &dispatch.Response{
				Kind:    dispatch.KindNote,
				Message: fmt.Sprintf("Finished `%s` [%s] in %s", caps["profile"], caps["opts"], caps["dur"]),
			}
		})

	d.MustRegister(
		"^(?P<level>warning|error): `(?P<name>[^`]+)` \\((?P<otype>[^)]+)\\) generated (?P<count>\\d+) (?P<kind>warnings|errors).*run `(?P<cmd>[^`]+)` to apply (?P<fixes>\\d+) suggestions",
		func(line string, caps map[string]string, _ *dispatch.State) *dispatch.Response {
			return &dispatch.Response{
				Kind: dispatch.KindNote,
				Message: fmt.Sprintf("%s: `%s` (%s) generated %s %s; run `%s` to apply %s fixes",
					caps["level"], caps["name"], caps["otype"], caps["count"], caps["kind"], caps["cmd"], caps["fixes"]),
				Suggestion: caps["cmd"],
			}
		})

	d.MustRegister(
		`IO\(Custom \{ kind: NotConnected`,
		func(line string, _ map[string]string, _ *dispatch.State) *dispatch.Response {
			if hooks.Terminal != nil {
				hooks.Terminal(model.TerminalStatusNone)
			}
			return &dispatch.Response{
				Kind:           dispatch.KindWarning,
				Message:        fmt.Sprintf("terminal error: %s", line),
				TerminalStatus: model.TerminalStatusNone,
			}
		})

	// Catch-all pass-through. Registered last.
	d.MustRegister(`.*`,
		func(line string, _ map[string]string, _ *dispatch.State) *dispatch.Response {
			if echo != nil {
				fmt.Fprintln(echo, line)
			}
			return nil
		})

	return d
}

// Advance feeds one line through the pipeline, returning any responses
// produced. Completed diagnostics are delivered through Hooks.Commit.
func (p *Pipeline) Advance(line string) []dispatch.Response {
	// Backtrace mode intercepts frame lines until a terminator; the
	// terminator itself falls through to the normal stages below.
	if p.phase == phaseInBacktrace {
		trimmed := strings.TrimSpace(line)
		terminator := trimmed == "" ||
			strings.HasPrefix(trimmed, "note:") ||
			strings.HasPrefix(trimmed, "error:")
		if !terminator {
			if frameRe.MatchString(trimmed) || framePathRe.MatchString(trimmed) {
				p.btLines = append(p.btLines, trimmed)
			}
			p.recordLookBehind(line)
			return nil
		}
		p.commitBacktrace()
	}

	out := p.aux.Dispatch(line)

	if backtraceRe.MatchString(line) {
		p.phase = phaseInBacktrace
		p.btLines = p.btLines[:0]
		p.btContext = append([]string(nil), p.lookBehind...)
		p.recordLookBehind(line)
		return out
	}

	if strings.TrimSpace(line) == "" {
		// Commit-on-blank: also ends any suggestion block.
		p.phase = phaseIdle
		p.commitPending()
		return out
	}

	p.recordLookBehind(line)

	if resp := p.advanceHeader(line); resp != nil {
		return append(out, *resp)
	}
	if resp := p.advanceLocation(line); resp != nil {
		return append(out, *resp)
	}
	if p.advanceNoteHelp(line) {
		return out
	}
	if resp := p.advanceSuggestion(line); resp != nil {
		return append(out, *resp)
	}
	return out
}

// Flush commits a diagnostic still pending at end of stream, so no
// trailing diagnostic is lost when the stream ends without a final
// blank line.
func (p *Pipeline) Flush() {
	if p.phase == phaseInBacktrace {
		p.commitBacktrace()
	}
	p.phase = phaseIdle
	p.commitPending()
}

// advanceHeader handles diagnostic header lines (`error[E0308]: ...`).
// An occupied pending slot is committed before the new diagnostic takes
// its place, so at most one diagnostic is ever pending.
func (p *Pipeline) advanceHeader(line string) *dispatch.Response {
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	level, code, msg := m[1], m[2], m[3]
	sev, ok := model.ParseSeverity(level)
	if !ok {
		return nil
	}
	// "generated N warnings" summaries look like headers but are
	// handled by the summary registration, never as new diagnostics.
	if generatedRe.MatchString(msg) {
		return nil
	}

	p.commitPending()
	p.counts[sev]++
	p.pending = &model.Diagnostic{
		Severity:   sev,
		Message:    msg,
		Code:       code,
		Seq:        p.counts[sev],
		NumPadding: 2,
	}
	p.pendingFile = ""
	p.pendingLine = 0
	p.phase = phaseAwaitLocation
	return &dispatch.Response{Kind: dispatch.KindLevelMessage}
}

// advanceLocation handles `--> file:line:col` lines.
func (p *Pipeline) advanceLocation(line string) *dispatch.Response {
	m := locationRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	file := p.resolver.Resolve(m[1])
	lineNum, _ := strconv.Atoi(m[2])
	colNum, _ := strconv.Atoi(m[3])
	ref := fmt.Sprintf("%s:%d:%d", file, lineNum, colNum)

	if p.pending != nil {
		p.pending.LineRef = ref
	}
	p.pendingFile = file
	p.pendingLine = lineNum
	p.phase = phaseAwaitSuggestion
	return &dispatch.Response{
		Kind:    dispatch.KindLocation,
		Message: ref,
		File:    file,
		Line:    lineNum,
		Col:     colNum,
	}
}

// advanceNoteHelp accumulates `= note:` and `= help:` lines onto the
// pending diagnostic.
func (p *Pipeline) advanceNoteHelp(line string) bool {
	if m := noteRe.FindStringSubmatch(line); m != nil {
		if p.pending != nil {
			appendJoined(&p.pending.Note, "note: "+m[1])
		}
		return true
	}
	if m := helpRe.FindStringSubmatch(line); m != nil {
		if p.pending != nil {
			appendJoined(&p.pending.Help, "help: "+m[1])
		}
		return true
	}
	return false
}

// advanceSuggestion handles source-context echo lines while a location
// has armed suggestion mode. An echo whose embedded line number differs
// from the diagnostic's own line is rewritten to name it explicitly;
// otherwise only the code fragment is kept.
func (p *Pipeline) advanceSuggestion(line string) *dispatch.Response {
	if p.phase != phaseAwaitSuggestion {
		return nil
	}
	trimmed := strings.TrimSpace(line)
	m := suggestionRe.FindStringSubmatch(trimmed)
	if m == nil {
		// Gutter rows ("  |", "  | ^^^ ...") stay inside the block;
		// anything else ends it.
		if !strings.HasPrefix(trimmed, "|") {
			p.phase = phaseIdle
		}
		return nil
	}
	if p.pending == nil {
		return nil
	}

	embedded, err := strconv.Atoi(m[1])
	if err != nil {
		embedded = p.pendingLine
	}
	frag := m[2]
	entry := frag
	if embedded != p.pendingLine {
		entry = fmt.Sprintf("%s:%d | %s", p.pendingFile, embedded, frag)
	}
	appendJoined(&p.pending.Suggestion, entry)
	return &dispatch.Response{
		Kind:       dispatch.KindSuggestion,
		Message:    entry,
		File:       p.pendingFile,
		Line:       p.pendingLine,
		Suggestion: p.pending.Suggestion,
	}
}

// commitPending pushes the pending diagnostic, if any, and clears the
// slot.
func (p *Pipeline) commitPending() {
	if p.pending == nil {
		return
	}
	d := *p.pending
	p.pending = nil
	p.pendingFile = ""
	p.pendingLine = 0
	if p.hooks.Commit != nil {
		p.hooks.Commit(d)
	}
}

// commitBacktrace assembles the buffered frames, drops toolchain-
// internal ones, attaches the result plus the snapshotted look-behind to
// the pending diagnostic's note, and commits it.
func (p *Pipeline) commitBacktrace() {
	frames := p.assembleFrames()
	if len(frames) > 0 && p.pending != nil {
		var note strings.Builder
		if len(p.btContext) > 0 {
			note.WriteString(strings.Join(p.btContext, "\n"))
			note.WriteByte('\n')
		}
		note.WriteString(strings.Join(frames, "\n"))
		appendJoined(&p.pending.Note, note.String())
		p.commitPending()
	}
	p.phase = phaseIdle
	p.btLines = p.btLines[:0]
	p.btContext = nil
}

// assembleFrames pairs numbered frame lines with their `at path:line`
// continuations, filtering frames whose path is toolchain-internal and
// canonicalizing the survivors to absolute paths. Frame order is
// preserved.
func (p *Pipeline) assembleFrames() []string {
	var out []string
	var pendingFrame *[2]string
	for _, l := range p.btLines {
		if m := frameRe.FindStringSubmatch(l); m != nil {
			if pendingFrame != nil {
				out = append(out, fmt.Sprintf("%s: %s", pendingFrame[0], pendingFrame[1]))
			}
			pendingFrame = &[2]string{m[1], m[2]}
			continue
		}
		if m := framePathRe.FindStringSubmatch(l); m != nil && pendingFrame != nil {
			path, lineNum := m[1], m[2]
			if !p.isToolchainPath(path) {
				if abs, err := filepath.Abs(path); err == nil {
					path = abs
				}
				out = append(out, fmt.Sprintf("%s: %s @ %s:%s", pendingFrame[0], pendingFrame[1], path, lineNum))
			}
			pendingFrame = nil
		}
	}
	if pendingFrame != nil {
		out = append(out, fmt.Sprintf("%s: %s", pendingFrame[0], pendingFrame[1]))
	}
	return out
}

func (p *Pipeline) isToolchainPath(path string) bool {
	if strings.HasPrefix(path, "/rustc") {
		return true
	}
	for _, f := range p.filter {
		if strings.Contains(path, f) {
			return true
		}
	}
	return false
}

// recordLookBehind keeps the last 6 non-blank lines, oldest dropped
// first.
func (p *Pipeline) recordLookBehind(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	p.lookBehind = append(p.lookBehind, line)
	if len(p.lookBehind) > lookBehindDepth {
		p.lookBehind = p.lookBehind[1:]
	}
}

func appendJoined(dst *string, s string) {
	if *dst == "" {
		*dst = s
		return
	}
	*dst += "\n" + s
}
