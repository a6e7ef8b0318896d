package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattjoyce/widgetsync/internal/log"
	"github.com/mattjoyce/widgetsync/internal/protocol"
)

var (
	ErrDisposed       = errors.New("dispatch: dispatcher disposed")
	ErrUnknownCommand = errors.New("dispatch: unknown command")
)

// CommandType names a command sent by the render surface.
type CommandType string

const (
	CmdSendMessage         CommandType = "send_message"
	CmdSendBinaryMessage   CommandType = "send_binary_message"
	CmdRegisterCommTarget  CommandType = "register_comm_target"
	CmdRegisterMessageHook CommandType = "register_message_hook"
	CmdRemoveMessageHook   CommandType = "remove_message_hook"
	CmdMessageHookResult   CommandType = "message_hook_result"
	CmdMessageReceived     CommandType = "msg_received"
	CmdIOPubHandled        CommandType = "iopub_msg_handled"
	CmdLog                 CommandType = "log"
)

// Command is one surface-to-dispatcher message.
type Command struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewCommand marshals payload into a Command.
func NewCommand(t CommandType, payload any) (Command, error) {
	if payload == nil {
		return Command{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Command{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Command{Type: t, Payload: raw}, nil
}

// SendMessagePayload carries a JSON text message, optionally with inline
// buffer views.
type SendMessagePayload struct {
	Data string `json:"data"`
}

type RegisterCommTargetPayload struct {
	TargetName string `json:"target_name"`
}

type RegisterMessageHookPayload struct {
	RequestID string `json:"request_id"`
	HookMsgID string `json:"hook_msg_id"`
}

type RemoveMessageHookPayload struct {
	RequestID       string `json:"request_id"`
	HookMsgID       string `json:"hook_msg_id"`
	LastHookedMsgID string `json:"last_hooked_msg_id,omitempty"`
}

type MessageHookResultPayload struct {
	RequestID string `json:"request_id"`
	ParentID  string `json:"parent_id"`
	MsgType   string `json:"msg_type"`
	Result    bool   `json:"result"`
}

// AckPayload identifies a forwarded message for msg_received and
// iopub_msg_handled.
type AckPayload struct {
	ID string `json:"id"`
}

type LogPayload struct {
	Level    string `json:"level"`
	Message  string `json:"message"`
	Category string `json:"category,omitempty"`
}

// Dispatch applies one surface command. Kernel send failures are logged and
// never returned; errors mean the command itself was unusable.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) error {
	if _, disposed := d.current(); disposed {
		return ErrDisposed
	}

	switch cmd.Type {
	case CmdSendMessage:
		var p SendMessagePayload
		if err := decodePayload(cmd, &p); err != nil {
			return err
		}
		d.enqueue(ctx, outboundPayload{text: p.Data})

	case CmdSendBinaryMessage:
		var p protocol.BinaryPayload
		if err := decodePayload(cmd, &p); err != nil {
			return err
		}
		d.enqueue(ctx, outboundPayload{binary: &p})

	case CmdRegisterCommTarget:
		var p RegisterCommTargetPayload
		if err := decodePayload(cmd, &p); err != nil {
			return err
		}
		if p.TargetName == "" {
			return fmt.Errorf("%s: target_name is required", cmd.Type)
		}
		d.requestCommTarget(p.TargetName)

	case CmdRegisterMessageHook:
		var p RegisterMessageHookPayload
		if err := decodePayload(cmd, &p); err != nil {
			return err
		}
		d.registerMessageHook(p)

	case CmdRemoveMessageHook:
		var p RemoveMessageHookPayload
		if err := decodePayload(cmd, &p); err != nil {
			return err
		}
		d.removeMessageHook(p)

	case CmdMessageHookResult:
		var p MessageHookResultPayload
		if err := decodePayload(cmd, &p); err != nil {
			return err
		}
		d.messageHookResult(p)

	case CmdMessageReceived:
		var p AckPayload
		if err := decodePayload(cmd, &p); err != nil {
			return err
		}
		d.messageReceived(p.ID)

	case CmdIOPubHandled:
		var p AckPayload
		if err := decodePayload(cmd, &p); err != nil {
			return err
		}
		d.iopubHandled(p.ID)

	case CmdLog:
		var p LogPayload
		if err := decodePayload(cmd, &p); err != nil {
			return err
		}
		d.logger.Log(ctx, log.ParseLevel(p.Level), p.Message, "source", "surface", "category", p.Category)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil
}

func decodePayload(cmd Command, v any) error {
	if len(cmd.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", cmd.Type)
	}
	if err := json.Unmarshal(cmd.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", cmd.Type, err)
	}
	return nil
}
