package protocol

// Message types that never influence widget state on the render side.
var unmirrored = map[string]bool{
	MsgStatus:             true,
	"comm_info_request":   true,
	"comm_info_reply":     true,
	"kernel_info_request": true,
	"kernel_info_reply":   true,
	"interrupt_request":   true,
	"interrupt_reply":     true,
	"shutdown_request":    true,
	"shutdown_reply":      true,
	"history_request":     true,
	"history_reply":       true,
	"complete_request":    true,
	"complete_reply":      true,
	"inspect_request":     true,
	"inspect_reply":       true,
	"is_complete_request": true,
	"is_complete_reply":   true,
}

// MirrorPredicate decides whether a message is replicated to the render
// surface's simulated kernel. Implementations must be pure.
type MirrorPredicate func(msg *Message) bool

// ShouldMirror is the default MirrorPredicate. Control-channel traffic,
// introspection requests, status chatter and silent executions are skipped.
func ShouldMirror(msg *Message) bool {
	if msg == nil {
		return false
	}
	if msg.Channel == ChannelControl || unmirrored[msg.MsgType()] {
		return false
	}
	if msg.MsgType() == MsgExecuteRequest && boolAt(msg.Content, "silent") {
		return false
	}
	return true
}
