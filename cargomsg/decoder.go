// Package cargomsg decodes the newline-delimited JSON messages the build
// tool emits on stdout when run with --message-format=json.
package cargomsg

import (
	"encoding/json"
	"strings"

	"github.com/cargowatch/cargowatch/model"
)

// Message is one decoded structured message.
type Message struct {
	Kind model.MessageKind
	// Rendered human-readable text, present on compiler-message
	Rendered string
	// Target name, present on compiler-artifact
	Target string
	// Package id, present on build-script-executed
	PackageID string
	// Build success flag, present on build-finished
	Success bool
}

type wireMessage struct {
	Reason  string `json:"reason"`
	Success *bool  `json:"success"`
	Message *struct {
		Rendered string `json:"rendered"`
	} `json:"message"`
	Target *struct {
		Name string `json:"name"`
	} `json:"target"`
	PackageID string `json:"package_id"`
}

// Decode attempts to parse line as one of the four structured message
// kinds. Any line that is not valid JSON, or whose reason is not one of
// the known kinds, is reported as not-a-message so the caller can treat
// it as the program's own output.
func Decode(line string) (Message, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Message{}, false
	}
	var wire wireMessage
	if err := json.Unmarshal([]byte(trimmed), &wire); err != nil {
		return Message{}, false
	}

	msg := Message{PackageID: wire.PackageID}
	if wire.Success != nil {
		msg.Success = *wire.Success
	}
	if wire.Message != nil {
		msg.Rendered = wire.Message.Rendered
	}
	if wire.Target != nil {
		msg.Target = wire.Target.Name
	}

	switch wire.Reason {
	case "build-finished":
		msg.Kind = model.MessageKindBuildFinished
	case "compiler-message":
		msg.Kind = model.MessageKindCompilerMessage
	case "compiler-artifact":
		msg.Kind = model.MessageKindCompilerArtifact
	case "build-script-executed":
		msg.Kind = model.MessageKindBuildScriptExecuted
	default:
		return Message{}, false
	}
	return msg, true
}
