package dispatch

import (
	"context"
	"strings"

	"github.com/mattjoyce/widgetsync/internal/protocol"
)

// registerMessageHook installs a hook for hookMsgID on the live kernel. The
// surface is told the operation completed whether or not a kernel is live.
func (d *Dispatcher) registerMessageHook(p RegisterMessageHookPayload) {
	defer d.operationHandled(p.RequestID, CmdRegisterMessageHook)

	d.mu.Lock()
	conn := d.conn
	_, exists := d.hooks[p.HookMsgID]
	if conn == nil || exists {
		d.mu.Unlock()
		return
	}
	d.hooks[p.HookMsgID] = nil
	d.mu.Unlock()

	remove, err := conn.RegisterMessageHook(p.HookMsgID, d.messageHook)

	d.mu.Lock()
	if err != nil {
		delete(d.hooks, p.HookMsgID)
		d.mu.Unlock()
		d.logger.Warn("failed to register message hook", "hook_msg_id", p.HookMsgID, "error", err)
		return
	}
	// A removal or restart while registering leaves no placeholder behind.
	placeholder, pending := d.hooks[p.HookMsgID]
	stale := d.conn != conn || !pending || placeholder != nil
	if !stale {
		d.hooks[p.HookMsgID] = remove
	}
	d.mu.Unlock()
	if stale {
		remove()
	}
}

// removeMessageHook removes the hook now, or once lastHookedMsgID has been
// through it when given.
func (d *Dispatcher) removeMessageHook(p RemoveMessageHookPayload) {
	defer d.operationHandled(p.RequestID, CmdRemoveMessageHook)

	d.mu.Lock()
	if p.LastHookedMsgID != "" {
		d.pendingHookRemovals[p.LastHookedMsgID] = p.HookMsgID
		d.mu.Unlock()
		return
	}
	remove := d.hooks[p.HookMsgID]
	delete(d.hooks, p.HookMsgID)
	d.mu.Unlock()

	if remove != nil {
		remove()
	}
}

// messageHook asks the surface whether msg is delivered. It is installed on
// the kernel for each hooked parent id.
func (d *Dispatcher) messageHook(ctx context.Context, msg *protocol.Message) bool {
	var remove func()
	requestID := d.newID()
	sig := newSignal[bool]()

	d.mu.Lock()
	_, hooked := d.hooks[msg.ParentID()]
	if hookID, ok := d.pendingHookRemovals[msg.MsgID()]; ok {
		delete(d.pendingHookRemovals, msg.MsgID())
		remove = d.hooks[hookID]
		delete(d.hooks, hookID)
	}
	if hooked && !d.disposed {
		d.hookRequests[requestID] = sig
	} else {
		hooked = false
	}
	d.mu.Unlock()

	if remove != nil {
		remove()
	}
	if !hooked {
		return true
	}

	d.posts.Publish(KindMessageHookCall, HookCall{
		RequestID: requestID,
		ParentID:  msg.ParentID(),
		Msg:       msg,
	})
	return sig.wait(ctx, true)
}

// messageHookResult resolves a pending hook call. Comm messages always
// proceed so widget state never diverges.
func (d *Dispatcher) messageHookResult(p MessageHookResultPayload) {
	d.mu.Lock()
	sig := d.hookRequests[p.RequestID]
	delete(d.hookRequests, p.RequestID)
	d.mu.Unlock()

	if sig == nil {
		d.logger.Debug("result for unknown hook request", "request_id", p.RequestID)
		return
	}
	result := p.Result
	if strings.Contains(p.MsgType, "comm") {
		result = true
	}
	sig.resolve(result)
}

func (d *Dispatcher) operationHandled(id string, op CommandType) {
	d.posts.Publish(KindOperationHandled, OperationHandled{ID: id, Operation: string(op)})
}
