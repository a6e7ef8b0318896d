package dispatch

import (
	"context"
	"time"

	"github.com/mattjoyce/widgetsync/internal/kernel"
	"github.com/mattjoyce/widgetsync/internal/protocol"
)

// receiverFor binds the receive hook to conn so frames still in flight from a
// replaced kernel can be recognised.
func (d *Dispatcher) receiverFor(conn kernel.Connection) kernel.ReceiveHook {
	return func(ctx context.Context, frame protocol.Frame) error {
		return d.onKernelReceive(ctx, conn, frame)
	}
}

// onKernelReceive is the kernel receive hook. It returns once the frame has
// been forwarded, or once the surface has fully handled it when required.
func (d *Dispatcher) onKernelReceive(ctx context.Context, conn kernel.Connection, frame protocol.Frame) error {
	raw := frame.Bytes()
	relevant := d.markers.Relevant(raw)
	display := protocol.MayBeDisplayData(raw)
	if !relevant && !display {
		return nil
	}

	if d.markers.MentionsWidgets(raw) {
		d.mu.Lock()
		if !d.usingWidgets {
			d.logger.Debug("widgets in use")
		}
		d.usingWidgets = true
		d.mu.Unlock()
	}

	wsProtocol := conn.Options().Protocol
	msg, err := protocol.Deserialize(frame, wsProtocol)
	if err != nil {
		d.logger.Warn("dropping undecodable kernel frame", "error", err, "binary", frame.IsBinary())
		return nil
	}

	if msg.MsgType() == protocol.MsgDisplayData {
		d.displays.Publish(KindDisplayData, DisplayMessage{
			KernelID: conn.ID(),
			MsgID:    msg.MsgID(),
			ParentID: msg.ParentID(),
			Content:  msg.Content,
		})
	}
	if !relevant || !d.shouldMirror(msg) {
		return nil
	}

	fullHandle, live := d.classify(conn, msg)
	if !live {
		d.logger.Debug("ignoring frame from replaced kernel", "kernel_id", conn.ID(), "msg_id", msg.MsgID())
		return nil
	}
	return d.forward(ctx, conn, frame, msg, wsProtocol, fullHandle)
}

// liveLocked reports whether conn is still the attached kernel. Callers hold d.mu.
func (d *Dispatcher) liveLocked(conn kernel.Connection) bool {
	return !d.disposed && d.conn == conn
}

// classify updates Output widget tracking and reports whether msg must be
// fully handled by the surface before the kernel stream continues. live is
// false when conn is no longer attached; nothing is tracked then.
func (d *Dispatcher) classify(conn kernel.Connection, msg *protocol.Message) (fullHandle, live bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.liveLocked(conn) {
		return false, false
	}

	switch msg.MsgType() {
	case protocol.MsgCommOpen:
		if msg.IsOutputWidgetOpen() {
			d.outputWidgets[msg.CommID()] = struct{}{}
		}
	case protocol.MsgCommClose:
		delete(d.outputWidgets, msg.CommID())
	case protocol.MsgCommMsg:
		if msg.CommMethod() == "update" {
			_, tracked := d.outputWidgets[msg.CommID()]
			return tracked, true
		}
	}
	return false, true
}

// forward posts frame to the surface under a fresh correlation id. Frames
// from a kernel that was replaced meanwhile are dropped unposted.
func (d *Dispatcher) forward(ctx context.Context, conn kernel.Connection, frame protocol.Frame, msg *protocol.Message, wsProtocol string, fullHandle bool) error {
	id := d.newID()
	w := &waitingMessage{id: id, startTime: time.Now(), sig: newSignal[struct{}]()}

	d.mu.Lock()
	if !d.liveLocked(conn) {
		d.mu.Unlock()
		return nil
	}
	d.waiting[id] = w
	d.mu.Unlock()

	var gate *fullHandleGate
	if fullHandle {
		// Reserve before posting so an early handled report is not lost.
		gate = d.openGate(ctx, conn, msg.MsgID())
		if gate == nil && d.dropStale(conn, w) {
			d.logger.Debug("dropping output widget update from replaced kernel", "msg_id", msg.MsgID())
			return nil
		}
	}

	if frame.IsBinary() {
		d.posts.Publish(KindBinaryMessage, ForwardedBinary{
			ID:      id,
			Payload: protocol.ToTransport(frame.Binary, wsProtocol),
		})
	} else {
		d.posts.Publish(KindMessage, ForwardedMessage{ID: id, Data: frame.Text})
	}

	if gate == nil {
		return nil
	}
	d.logger.Debug("holding kernel stream for output widget update", "msg_id", msg.MsgID(), "comm_id", msg.CommID())
	w.sig.wait(ctx, struct{}{})
	gate.sig.wait(ctx, struct{}{})
	return nil
}

// dropStale forgets w when conn is no longer attached and reports whether it
// did.
func (d *Dispatcher) dropStale(conn kernel.Connection, w *waitingMessage) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.liveLocked(conn) {
		return false
	}
	if d.waiting[w.id] == w {
		delete(d.waiting, w.id)
	}
	return true
}

// messageReceived resolves the waiting message for id. Unknown ids are
// ignored.
func (d *Dispatcher) messageReceived(id string) {
	d.mu.Lock()
	w := d.waiting[id]
	delete(d.waiting, id)
	d.mu.Unlock()

	if w == nil {
		d.logger.Debug("ack for unknown message", "id", id)
		return
	}
	w.sig.resolve(struct{}{})
	d.logger.Debug("surface acknowledged message", "id", id, "round_trip", time.Since(w.startTime))
}
