package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	for _, word := range []string{"error", "warning", "help", "note"} {
		sev, ok := ParseSeverity(word)
		require.True(t, ok)
		require.Equal(t, Severity(word), sev)
	}
	_, ok := ParseSeverity("Compiling")
	require.False(t, ok)
}

func TestKindStat_FirstTimestampIdempotent(t *testing.T) {
	var ks KindStat
	t0 := time.Now()
	ks.Record(t0)
	ks.Record(t0.Add(time.Second))
	ks.Record(t0.Add(2 * time.Second))

	require.Equal(t, 3, ks.Count)
	require.Equal(t, t0, ks.First)
}

func TestStats_RecordRouting(t *testing.T) {
	var s Stats
	now := time.Now()
	s.Record(MessageKindCompilerMessage, now)
	s.Record(MessageKindCompilerMessage, now.Add(time.Second))
	s.Record(MessageKindCompilerArtifact, now)
	s.Record(MessageKindBuildScriptExecuted, now)
	s.Record(MessageKindBuildFinished, now)

	require.Equal(t, 2, s.CompilerMessage.Count)
	require.Equal(t, now, s.CompilerMessage.First)
	require.Equal(t, 1, s.CompilerArtifact.Count)
	require.Equal(t, 1, s.BuildScriptExecuted.Count)
	require.Equal(t, 1, s.BuildFinished.Count)
}

func TestStats_CloneIsIndependent(t *testing.T) {
	var s Stats
	s.Record(MessageKindCompilerArtifact, time.Now())

	clone := s.Clone()
	s.Record(MessageKindCompilerArtifact, time.Now())
	s.CouldNotCompile = true

	require.Equal(t, 1, clone.CompilerArtifact.Count)
	require.False(t, clone.CouldNotCompile)
}

func TestDiagnostic_Tag(t *testing.T) {
	d := Diagnostic{Severity: SeverityWarning, Seq: 7, NumPadding: 2}
	require.Equal(t, "W07", d.Tag())

	d = Diagnostic{Severity: SeverityError, Seq: 12, NumPadding: 2}
	require.Equal(t, "E12", d.Tag())

	// Padding defaults when unset.
	d = Diagnostic{Severity: SeverityNote, Seq: 3}
	require.Equal(t, "N03", d.Tag())

	d = Diagnostic{Severity: SeverityHelp, Seq: 1, NumPadding: 3}
	require.Equal(t, "H001", d.Tag())
}

func TestDiagnostic_RenderPlain(t *testing.T) {
	d := Diagnostic{
		LineRef:    "src/main.rs:10:5",
		Severity:   SeverityError,
		Message:    "mismatched types",
		Code:       "E0308",
		Suggestion: `let x: i32 = "s";`,
		Note:       "note: expected `i32`, found `&str`",
		Seq:        1,
		NumPadding: 2,
	}
	out := d.Render(false)
	require.Contains(t, out, "E01: src/main.rs:10:5 mismatched types")
	require.Contains(t, out, `let x: i32 = "s";`)
	require.Contains(t, out, "note: expected `i32`, found `&str`")
}

func TestProcessResult_DiagnosticsBySeverity(t *testing.T) {
	res := ProcessResult{
		Diagnostics: []Diagnostic{
			{Severity: SeverityError, Message: "first"},
			{Severity: SeverityWarning, Message: "second"},
			{Severity: SeverityError, Message: "third"},
		},
	}
	errs := res.DiagnosticsBySeverity(SeverityError)
	require.Len(t, errs, 2)
	require.Equal(t, "first", errs[0].Message)
	require.Equal(t, "third", errs[1].Message)
	require.Len(t, res.DiagnosticsBySeverity(SeverityNote), 0)
}
