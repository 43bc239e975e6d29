// Package supervise spawns the build-tool subprocess, captures both of
// its output streams, and exposes live progress plus a final structured
// result.
package supervise

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cargowatch/cargowatch/cargomsg"
	"github.com/cargowatch/cargowatch/diagnose"
	"github.com/cargowatch/cargowatch/dispatch"
	"github.com/cargowatch/cargowatch/manifest"
	"github.com/cargowatch/cargowatch/model"
)

// Size of the compiler-message hand-off channel between the stdout
// reader and the stderr pipeline.
const handoffBuffer = 64

const maxLineBytes = 1024 * 1024

// Options configures a supervised run. Command and Args must already be
// resolved; the supervisor does not interpret build semantics.
type Options struct {
	Command string
	Args    []string
	// Working directory for the subprocess
	Dir string
	// Directory containing the manifest, used to resolve relative
	// diagnostic paths
	ManifestDir string
	// Build target name recorded on Stats
	TargetName string
	// Dispatcher for free-form stdout lines. Nil installs the default
	// URL-detecting dispatcher.
	StdoutDispatcher *dispatch.Dispatcher
	// Extra backtrace path fragments to filter
	FilterPrefixes []string
	// Total output byte estimate; zero disables progress reporting
	EstimateBytes int64
	// Receives percentage progress strings. Sends never block; a slow
	// consumer just misses intermediate updates.
	Progress chan<- string
	// Receives dispatcher/pipeline responses as they happen. Sends
	// never block.
	Responses chan<- dispatch.Response
	// Echo receives the raw pass-through output. Nil discards.
	Echo io.Writer
}

// Handle owns a running subprocess and its two reader goroutines.
type Handle struct {
	logger      zerolog.Logger
	cmd         *exec.Cmd
	pid         int
	commandLine string
	opts        Options

	pipeline *diagnose.Pipeline
	handoff  chan string
	stderrLn chan string
	readers  *errgroup.Group

	mu       sync.Mutex
	stats    model.Stats
	diags    []model.Diagnostic
	terminal model.TerminalStatus
	exitCode int
	exited   bool
	endTime  time.Time
	runErr   error

	startTime    time.Time
	inBuildPhase atomic.Bool
	buildBytes   atomic.Int64
	runBytes     atomic.Int64
	done         chan struct{}
}

// Spawn starts the subprocess with both output streams piped and one
// reader per stream. A process that cannot be started, or a stream that
// cannot be captured, is a fatal error: no handle is returned.
func Spawn(logger zerolog.Logger, opts Options) (*Handle, error) {
	if opts.Command == "" {
		return nil, errors.New("supervise: no command given")
	}
	if opts.Echo == nil {
		opts.Echo = io.Discard
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to capture stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to capture stderr: %w", err)
	}

	h := &Handle{
		logger:      logger,
		cmd:         cmd,
		opts:        opts,
		commandLine: shellescape.QuoteCommand(append([]string{opts.Command}, opts.Args...)),
		handoff:     make(chan string, handoffBuffer),
		stderrLn:    make(chan string, 1),
		done:        make(chan struct{}),
	}
	h.inBuildPhase.Store(true)

	hooks := diagnose.Hooks{
		Commit: func(d model.Diagnostic) {
			h.mu.Lock()
			h.diags = append(h.diags, d)
			h.mu.Unlock()
		},
		CouldNotCompile: func() {
			h.mu.Lock()
			h.stats.CouldNotCompile = true
			h.mu.Unlock()
		},
		BuildFinished: h.markBuildFinished,
		Terminal: func(ts model.TerminalStatus) {
			h.mu.Lock()
			h.terminal = ts
			h.mu.Unlock()
		},
	}
	h.pipeline = diagnose.New(diagnose.Config{
		Resolver:       manifest.DirResolver{ManifestDir: opts.ManifestDir},
		Hooks:          hooks,
		Echo:           opts.Echo,
		FilterPrefixes: opts.FilterPrefixes,
	})
	if h.opts.StdoutDispatcher == nil {
		h.opts.StdoutDispatcher = diagnose.NewStdoutDispatcher(hooks)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", opts.Command, err)
	}
	h.pid = cmd.Process.Pid
	h.startTime = time.Now()
	h.stats.TargetName = opts.TargetName
	h.stats.StartTime = h.startTime

	logger.Debug().
		Int("pid", h.pid).
		Str("command", h.commandLine).
		Msg("Subprocess started")

	g := &errgroup.Group{}
	g.Go(func() error { return h.readStdout(stdout) })
	g.Go(func() error { return h.pumpStderr(stderr) })
	g.Go(func() error { return h.runPipeline() })
	h.readers = g

	go h.awaitExit()
	return h, nil
}

// PID returns the child's process id.
func (h *Handle) PID() int {
	return h.pid
}

// Kill terminates the child. The reader goroutines are not stopped;
// they end naturally when their stream hits end-of-file.
func (h *Handle) Kill() error {
	if err := h.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill pid %d: %w", h.pid, err)
	}
	return nil
}

// TryWait reports the exit code without blocking. ok is false while the
// process is still running or its readers have not drained.
func (h *Handle) TryWait() (exitCode int, ok bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitCode, true
	default:
		return 0, false
	}
}

// Finished reports whether the run is complete: process exited and both
// readers drained.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the process has exited and both reader goroutines
// have drained to end-of-stream, then returns the final result. A
// non-zero exit is not an error here; callers read ExitCode.
func (h *Handle) Wait() (*model.ProcessResult, error) {
	<-h.done
	h.mu.Lock()
	err := h.runErr
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return h.Result(), nil
}

// Result builds a snapshot from the current Stats, diagnostics and exit
// information. Before Finished reports true the snapshot is partial.
func (h *Handle) Result() *model.ProcessResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := h.stats.Clone()
	res := &model.ProcessResult{
		PID:              h.pid,
		CommandLine:      h.commandLine,
		StartTime:        h.startTime,
		Stats:            stats,
		BuildOutputBytes: h.buildBytes.Load(),
		RunOutputBytes:   h.runBytes.Load(),
		Diagnostics:      append([]model.Diagnostic(nil), h.diags...),
		IsFiltered:       true,
		CouldNotCompile:  stats.CouldNotCompile,
		TerminalStatus:   h.terminal,
	}
	if h.exited {
		res.Exited = true
		res.ExitCode = h.exitCode
		res.EndTime = h.endTime
	}
	end := h.endTime
	if end.IsZero() {
		end = time.Now()
	}
	if !stats.BuildFinished.First.IsZero() {
		res.BuildElapsed = stats.BuildFinished.First.Sub(h.startTime)
		res.RunElapsed = end.Sub(stats.BuildFinished.First)
	}
	return res
}

// awaitExit joins the readers, reaps the child and publishes the final
// state. The result only becomes final here, after exit AND drain.
func (h *Handle) awaitExit() {
	readErr := h.readers.Wait()
	waitErr := h.cmd.Wait()

	h.mu.Lock()
	h.endTime = time.Now()
	h.exited = true
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			h.exitCode = exitErr.ExitCode()
		} else {
			h.exitCode = -1
			h.runErr = fmt.Errorf("wait failed for pid %d: %w", h.pid, waitErr)
		}
	}
	if readErr != nil && h.runErr == nil {
		h.runErr = readErr
	}
	h.mu.Unlock()

	h.logger.Debug().
		Int("pid", h.pid).
		Int("exit_code", h.exitCode).
		Msg("Subprocess finished")
	close(h.done)
}

// readStdout decodes structured messages and passes everything else
// through as program output. The first undecodable line flips the run
// from build phase to run phase.
func (h *Handle) readStdout(r io.Reader) error {
	defer close(h.handoff)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := sc.Text()
		if msg, ok := cargomsg.Decode(line); ok {
			now := time.Now()
			h.mu.Lock()
			h.stats.Record(msg.Kind, now)
			h.mu.Unlock()
			switch msg.Kind {
			case model.MessageKindBuildFinished:
				h.markBuildFinished(now)
			case model.MessageKindCompilerMessage:
				if msg.Rendered != "" {
					// Blocking send: the pipeline goroutine drains
					// this until the channel closes, so the bound is
					// a latency limit rather than a deadlock risk.
					h.handoff <- msg.Rendered
				}
			}
			h.countBytes(len(line) + 1)
			continue
		}

		// Free-form output means the program itself is running.
		if h.inBuildPhase.Load() {
			h.markBuildFinished(time.Now())
		}
		if h.opts.StdoutDispatcher != nil {
			for _, resp := range h.opts.StdoutDispatcher.Dispatch(line) {
				h.forward(resp)
			}
		}
		fmt.Fprintln(h.opts.Echo, line)
		h.countBytes(len(line) + 1)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("stdout read: %w", err)
	}
	return nil
}

// pumpStderr feeds raw stderr lines to the pipeline goroutine,
// preserving stream order.
func (h *Handle) pumpStderr(r io.Reader) error {
	defer close(h.stderrLn)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		h.stderrLn <- sc.Text()
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("stderr read: %w", err)
	}
	return nil
}

// runPipeline owns the diagnostic pipeline. It interleaves raw stderr
// lines with rendered compiler messages handed off by the stdout
// reader, then flushes so a trailing diagnostic is never lost.
func (h *Handle) runPipeline() error {
	lines, handoff := h.stderrLn, h.handoff
	for lines != nil || handoff != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			h.feedStderr(line)
			h.countBytes(len(line) + 1)
		case text, ok := <-handoff:
			if !ok {
				handoff = nil
				continue
			}
			for _, l := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
				h.feedStderr(l)
			}
		}
	}
	h.pipeline.Flush()
	return nil
}

func (h *Handle) feedStderr(line string) {
	for _, resp := range h.pipeline.Advance(line) {
		h.forward(resp)
	}
}

func (h *Handle) forward(resp dispatch.Response) {
	if h.opts.Responses == nil {
		return
	}
	select {
	case h.opts.Responses <- resp:
	default:
	}
}

// markBuildFinished idempotently records the end of the build phase.
// The timestamp is set at most once; the occurrence count only moves
// for decoded BuildFinished messages.
func (h *Handle) markBuildFinished(now time.Time) {
	h.inBuildPhase.Store(false)
	h.mu.Lock()
	if h.stats.BuildFinished.First.IsZero() {
		h.stats.BuildFinished.First = now
	}
	h.mu.Unlock()
}

// countBytes attributes n output bytes to the current phase and emits a
// progress percentage when an estimate was supplied.
func (h *Handle) countBytes(n int) {
	if h.inBuildPhase.Load() {
		h.buildBytes.Add(int64(n))
	} else {
		h.runBytes.Add(int64(n))
	}
	if h.opts.EstimateBytes <= 0 || h.opts.Progress == nil {
		return
	}
	total := h.buildBytes.Load() + h.runBytes.Load()
	pct := float64(total) / float64(h.opts.EstimateBytes) * 100.0
	select {
	case h.opts.Progress <- fmt.Sprintf("Progress: %.2f%%", pct):
	default:
	}
}
