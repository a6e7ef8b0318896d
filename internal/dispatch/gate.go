package dispatch

import (
	"context"

	"github.com/mattjoyce/widgetsync/internal/kernel"
)

// openGate installs the full-handle gate for msgID on behalf of conn. When
// another gate is open it waits for that one to clear first. Returns nil if
// ctx ends, the dispatcher is disposed, or conn is no longer attached.
func (d *Dispatcher) openGate(ctx context.Context, conn kernel.Connection, msgID string) *fullHandleGate {
	for {
		d.mu.Lock()
		if !d.liveLocked(conn) {
			d.mu.Unlock()
			return nil
		}
		if d.gate == nil {
			g := &fullHandleGate{id: msgID, sig: newSignal[struct{}]()}
			d.gate = g
			d.mu.Unlock()
			return g
		}
		prev := d.gate
		d.mu.Unlock()

		prev.sig.wait(ctx, struct{}{})
		if ctx.Err() != nil {
			return nil
		}
	}
}

// iopubHandled clears the gate if it is waiting on id.
func (d *Dispatcher) iopubHandled(id string) {
	d.mu.Lock()
	g := d.gate
	if g == nil || g.id != id {
		d.mu.Unlock()
		d.logger.Debug("handled report does not match gate", "id", id)
		return
	}
	d.gate = nil
	d.mu.Unlock()
	g.sig.resolve(struct{}{})
}
