package cargomsg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cargowatch/cargowatch/model"
)

func TestDecode_CompilerArtifact(t *testing.T) {
	msg, ok := Decode(`{"reason":"compiler-artifact","package_id":"foo 0.1.0","target":{"name":"foo"}}`)
	require.True(t, ok)
	require.Equal(t, model.MessageKindCompilerArtifact, msg.Kind)
	require.Equal(t, "foo", msg.Target)
	require.Equal(t, "foo 0.1.0", msg.PackageID)
}

func TestDecode_CompilerMessage(t *testing.T) {
	msg, ok := Decode(`{"reason":"compiler-message","message":{"rendered":"warning: unused variable\n"}}`)
	require.True(t, ok)
	require.Equal(t, model.MessageKindCompilerMessage, msg.Kind)
	require.Equal(t, "warning: unused variable\n", msg.Rendered)
}

func TestDecode_BuildScriptExecuted(t *testing.T) {
	msg, ok := Decode(`{"reason":"build-script-executed","package_id":"bar 2.0.0"}`)
	require.True(t, ok)
	require.Equal(t, model.MessageKindBuildScriptExecuted, msg.Kind)
	require.Equal(t, "bar 2.0.0", msg.PackageID)
}

func TestDecode_BuildFinished(t *testing.T) {
	msg, ok := Decode(`{"reason":"build-finished","success":true}`)
	require.True(t, ok)
	require.Equal(t, model.MessageKindBuildFinished, msg.Kind)
	require.True(t, msg.Success)

	msg, ok = Decode(`  {"reason":"build-finished","success":false}`)
	require.True(t, ok)
	require.False(t, msg.Success)
}

func TestDecode_NotAMessage(t *testing.T) {
	for _, line := range []string{
		"",
		"plain program output",
		`{"reason":"unknown-reason"}`,
		`{"reason":`,
		`[{"reason":"build-finished"}]`,
	} {
		_, ok := Decode(line)
		require.False(t, ok, "line %q must not decode", line)
	}
}
