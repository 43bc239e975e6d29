package model

import "time"

// TerminalStatus reports whether the subprocess complained about the
// absence of an interactive terminal.
type TerminalStatus uint8

const (
	TerminalStatusUnknown TerminalStatus = iota
	TerminalStatusOK
	TerminalStatusNone
)

// ProcessResult is the immutable snapshot of a supervised run exposed to
// callers. It is derived from Stats, the diagnostics list and the process
// exit information, and is never mutated after construction.
type ProcessResult struct {
	// Process id of the child
	PID int `json:"pid"`
	// Resolved command plus arguments, shell-quoted for display
	CommandLine string `json:"command_line"`
	// Exit code of the child; only meaningful when Exited is true
	ExitCode int `json:"exit_code"`
	// Whether the child has exited and both readers have drained
	Exited bool `json:"exited"`
	// Timestamps bracketing the run
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitzero"`
	// Elapsed durations for the build and run phases
	BuildElapsed time.Duration `json:"build_elapsed,omitempty"`
	RunElapsed   time.Duration `json:"run_elapsed,omitempty"`
	// Copy of the run statistics
	Stats Stats `json:"stats"`
	// Output byte counters, split by phase
	BuildOutputBytes int64 `json:"build_output_bytes"`
	RunOutputBytes   int64 `json:"run_output_bytes"`
	// All committed diagnostics, in commit order
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	// Whether output was routed through dispatchers rather than passed raw
	IsFiltered bool `json:"is_filtered,omitempty"`
	// Mirror of Stats.CouldNotCompile for quick access
	CouldNotCompile bool `json:"could_not_compile,omitempty"`
	// Terminal detection outcome reported by the stderr pipeline
	TerminalStatus TerminalStatus `json:"terminal_status,omitempty"`
}

// DiagnosticsBySeverity filters the diagnostics list by severity,
// preserving commit order.
func (r *ProcessResult) DiagnosticsBySeverity(sev Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}
