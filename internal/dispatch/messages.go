package dispatch

import (
	"github.com/mattjoyce/widgetsync/internal/protocol"
)

// Notification kinds published on PostMessages and DisplayMessages.
const (
	KindMessage          = "msg"
	KindBinaryMessage    = "binary_msg"
	KindKernelOptions    = "kernel_options"
	KindRestartKernel    = "restart_kernel"
	KindMessageHookCall  = "message_hook_call"
	KindMirrorExecute    = "mirror_execute"
	KindOperationHandled = "operation_handled"
	KindDisplayData      = "display_data"
)

// ForwardedMessage carries a text kernel frame to the surface.
type ForwardedMessage struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// ForwardedBinary carries a binary kernel frame in transport form.
type ForwardedBinary struct {
	ID      string                 `json:"id"`
	Payload protocol.BinaryPayload `json:"payload"`
}

// MirroredExecute announces an execute_request about to reach the kernel.
type MirroredExecute struct {
	ID  string            `json:"id"`
	Msg *protocol.Message `json:"msg"`
}

// HookCall asks the surface whether msg may be delivered.
type HookCall struct {
	RequestID string            `json:"request_id"`
	ParentID  string            `json:"parent_id"`
	Msg       *protocol.Message `json:"msg"`
}

// OperationHandled acknowledges a surface command that expects completion.
type OperationHandled struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
}

// DisplayMessage is a display_data message observed on the kernel stream.
type DisplayMessage struct {
	KernelID string         `json:"kernel_id,omitempty"`
	MsgID    string         `json:"msg_id"`
	ParentID string         `json:"parent_id,omitempty"`
	Content  map[string]any `json:"content"`
}
