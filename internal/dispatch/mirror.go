package dispatch

import (
	"context"
	"time"

	"github.com/mattjoyce/widgetsync/internal/protocol"
)

// onKernelSend is the kernel send hook. Shell execute_requests are mirrored
// to the surface; once widgets are in use the send waits for the surface to
// acknowledge. It never fails the send.
func (d *Dispatcher) onKernelSend(ctx context.Context, frame protocol.Frame) error {
	if !protocol.MayBeExecuteRequest(frame.Bytes()) {
		return nil
	}
	msg, err := protocol.Deserialize(frame, d.wsProtocol())
	if err != nil {
		d.logger.Debug("outgoing frame not decodable", "error", err)
		return nil
	}
	if msg.MsgType() != protocol.MsgExecuteRequest {
		return nil
	}
	if msg.Channel != "" && msg.Channel != protocol.ChannelShell {
		return nil
	}
	if !d.shouldMirror(msg) {
		return nil
	}

	id := msg.MsgID()
	w := &waitingMessage{id: id, startTime: time.Now(), sig: newSignal[struct{}]()}
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return nil
	}
	d.waiting[id] = w
	using := d.usingWidgets
	d.mu.Unlock()

	d.posts.Publish(KindMirrorExecute, MirroredExecute{ID: id, Msg: msg})
	if !using {
		return nil
	}
	w.sig.wait(ctx, struct{}{})
	return nil
}
