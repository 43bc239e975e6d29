package model

import "time"

// MessageKind identifies one of the four structured message kinds the
// build tool emits on stdout.
type MessageKind uint8

const (
	MessageKindBuildFinished MessageKind = iota
	MessageKindCompilerMessage
	MessageKindCompilerArtifact
	MessageKindBuildScriptExecuted
)

func (k MessageKind) String() string {
	switch k {
	case MessageKindBuildFinished:
		return "build-finished"
	case MessageKindCompilerMessage:
		return "compiler-message"
	case MessageKindCompilerArtifact:
		return "compiler-artifact"
	case MessageKindBuildScriptExecuted:
		return "build-script-executed"
	}
	return "unknown"
}

// KindStat is the running count plus the first-occurrence timestamp for
// one structured message kind.
type KindStat struct {
	Count int       `json:"count"`
	First time.Time `json:"first,omitzero"`
}

// Record bumps the count. The first-occurrence timestamp is set at most
// once; later occurrences leave it untouched.
func (k *KindStat) Record(now time.Time) {
	k.Count++
	if k.First.IsZero() {
		k.First = now
	}
}

// Stats accumulates run-wide counters and timestamps for a single
// subprocess run. One instance is shared by both reader goroutines; the
// supervisor guards it with a mutex, so Stats itself carries no lock.
type Stats struct {
	// Name of the build target (package) being supervised
	TargetName string `json:"target,omitempty"`
	// Time the subprocess was spawned
	StartTime time.Time `json:"start_time"`

	BuildFinished       KindStat `json:"build_finished"`
	CompilerMessage     KindStat `json:"compiler_message"`
	CompilerArtifact    KindStat `json:"compiler_artifact"`
	BuildScriptExecuted KindStat `json:"build_script_executed"`

	// Set when the build tool reports it could not compile the target
	CouldNotCompile bool `json:"could_not_compile,omitempty"`
}

// Record routes an occurrence of kind at time now to its KindStat.
func (s *Stats) Record(kind MessageKind, now time.Time) {
	switch kind {
	case MessageKindBuildFinished:
		s.BuildFinished.Record(now)
	case MessageKindCompilerMessage:
		s.CompilerMessage.Record(now)
	case MessageKindCompilerArtifact:
		s.CompilerArtifact.Record(now)
	case MessageKindBuildScriptExecuted:
		s.BuildScriptExecuted.Record(now)
	}
}

// Clone returns an independent copy for result snapshots.
func (s *Stats) Clone() Stats {
	return *s
}
