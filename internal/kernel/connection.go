// Package kernel defines the kernel-side contracts the widget dispatcher
// consumes, plus the process-wide comm target registry and a line-delimited
// JSON kernel channel.
package kernel

import (
	"context"

	"github.com/mattjoyce/widgetsync/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_kernel.go -package=mocks github.com/mattjoyce/widgetsync/internal/kernel Connection,Provider

// ReceiveHook sees every raw frame arriving from the kernel before the
// connection processes it. Blocking stalls the connection's read loop.
type ReceiveHook func(ctx context.Context, frame protocol.Frame) error

// SendHook sees every raw frame before it is written to the kernel. A non-nil
// error aborts the send.
type SendHook func(ctx context.Context, frame protocol.Frame) error

// MessageHook decides whether an iopub message whose parent is hooked is
// delivered (true) or suppressed (false).
type MessageHook func(ctx context.Context, msg *protocol.Message) bool

// CommTargetFunc handles comm_open messages for a registered target.
type CommTargetFunc func(msg *protocol.Message)

// Options is the snapshot of connection settings shared with the render surface.
type Options struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Protocol string `json:"protocol,omitempty"`
}

// Connection is a live kernel connection. ID identifies the kernel behind the
// connection; a restart yields a connection with a different ID.
type Connection interface {
	ID() string
	Options() Options

	// Subscribe attaches the socket hooks. The returned function detaches
	// them; calling it after a newer Subscribe is a no-op.
	Subscribe(onReceive ReceiveHook, onSend SendHook) (unsubscribe func())

	SendShell(ctx context.Context, msg *protocol.Message) error
	SendControl(ctx context.Context, msg *protocol.Message) error

	RegisterCommTarget(name string, cb CommTargetFunc) error
	RemoveCommTarget(name string)

	RegisterMessageHook(msgID string, hook MessageHook) (remove func(), err error)
}

// Provider yields the kernel for one document and reports changes. Watch
// callbacks receive nil when the kernel goes away.
type Provider interface {
	Current() Connection
	Watch(fn func(Connection)) (stop func())
}
