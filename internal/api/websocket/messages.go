package websocket

import (
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/workflow/streaming"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Loop state and telemetry
	MessageTypeMachineState MessageType = "machine_state"
	MessageTypeTelemetry    MessageType = "telemetry"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"

	// Session messages
	MessageTypeAuth          MessageType = "auth"
	MessageTypeAuthSuccess   MessageType = "auth_success"
	MessageTypeAuthFailed    MessageType = "auth_failed"
	MessageTypeCommand       MessageType = "command"
	MessageTypeCommandResult MessageType = "command_result"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
}

// ClientMessage is what clients send. Token is only used by auth messages,
// Control and Action only by commands.
type ClientMessage struct {
	Type    MessageType `json:"type"`
	Token   string      `json:"token,omitempty"`
	Control string      `json:"control,omitempty"`
	Action  string      `json:"action,omitempty"`
}

type CommandResultData struct {
	Control string `json:"control"`
	Action  string `json:"action"`
	Error   string `json:"error,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// FromEvent maps a live event to its websocket message.
func FromEvent(ev *streaming.Event) Message {
	switch ev.Type {
	case streaming.EventSnapshot:
		return Message{Type: MessageTypeMachineState, Timestamp: ev.Timestamp, Data: ev.Snapshot}
	default:
		return Message{Type: MessageTypeTelemetry, Timestamp: ev.Timestamp, Data: ev.Record}
	}
}
