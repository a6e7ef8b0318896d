package dispatch

import (
	"context"
	"fmt"

	"github.com/mattjoyce/widgetsync/internal/kernel"
	"github.com/mattjoyce/widgetsync/internal/protocol"
)

// outboundPayload is a surface payload waiting for a live kernel.
type outboundPayload struct {
	text   string
	binary *protocol.BinaryPayload
}

func (p outboundPayload) decode(wsProtocol string) (*protocol.Message, error) {
	var (
		msg *protocol.Message
		err error
	)
	if p.binary != nil {
		msg, err = protocol.Deserialize(p.binary.Frame(), wsProtocol)
	} else {
		msg, err = protocol.DecodeText([]byte(p.text))
	}
	if err != nil {
		return nil, err
	}
	switch msg.Channel {
	case protocol.ChannelShell, protocol.ChannelControl, "":
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", protocol.ErrUnknownChannel, msg.Channel)
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, p outboundPayload) {
	d.mu.Lock()
	d.outbound = append(d.outbound, p)
	n := len(d.outbound)
	d.mu.Unlock()

	d.logger.Debug("queued outbound payload", "pending", n)
	d.flush(ctx)
}

// flush sends queued payloads in order while a kernel is live. Only one
// flush runs at a time; a concurrent caller returns and the running flush
// picks up its payload. A send failure halts the flush with the queue intact.
func (d *Dispatcher) flush(ctx context.Context) {
	d.mu.Lock()
	if d.flushing || d.conn == nil || d.disposed {
		d.mu.Unlock()
		return
	}
	d.flushing = true
	d.mu.Unlock()

	for {
		d.mu.Lock()
		conn := d.conn
		if conn == nil || d.disposed || len(d.outbound) == 0 {
			d.flushing = false
			d.mu.Unlock()
			return
		}
		head := d.outbound[0]
		gen := d.generation
		d.mu.Unlock()

		msg, err := head.decode(conn.Options().Protocol)
		if err != nil {
			d.logger.Error("dropping undecodable outbound payload", "error", err)
			d.popIf(gen)
			continue
		}

		if err := d.sendToKernel(ctx, conn, msg); err != nil {
			d.mu.Lock()
			d.flushing = false
			pending := len(d.outbound)
			d.mu.Unlock()
			d.logger.Error("failed to send to kernel, keeping queue",
				"error", err, "msg_type", msg.MsgType(), "pending", pending)
			return
		}
		d.popIf(gen)
	}
}

// popIf removes the queue head unless a restart replaced the queue.
func (d *Dispatcher) popIf(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.generation == gen && len(d.outbound) > 0 {
		d.outbound = d.outbound[1:]
	}
}

func (d *Dispatcher) sendToKernel(ctx context.Context, conn kernel.Connection, msg *protocol.Message) error {
	if msg.Channel == protocol.ChannelControl {
		return conn.SendControl(ctx, msg)
	}
	return conn.SendShell(ctx, msg)
}
