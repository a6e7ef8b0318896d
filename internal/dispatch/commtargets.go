package dispatch

// requestCommTarget records name for registration and registers it if a
// kernel is live. Names already pending or registered are ignored.
func (d *Dispatcher) requestCommTarget(name string) {
	d.mu.Lock()
	if _, ok := d.knownTargets[name]; ok {
		d.mu.Unlock()
		return
	}
	d.knownTargets[name] = struct{}{}
	d.pendingTargets = append(d.pendingTargets, name)
	d.mu.Unlock()

	d.registerPendingCommTargets()
}

// registerPendingCommTargets drains pending names onto the live kernel. The
// default target is recorded as registered but left to the kernel's own
// widget manager.
func (d *Dispatcher) registerPendingCommTargets() {
	for {
		d.mu.Lock()
		conn := d.conn
		if conn == nil || len(d.pendingTargets) == 0 {
			d.mu.Unlock()
			return
		}
		name := d.pendingTargets[0]
		d.pendingTargets = d.pendingTargets[1:]
		d.registeredTargets = append(d.registeredTargets, name)
		d.mu.Unlock()

		if name == d.cfg.DefaultCommTarget {
			continue
		}
		called, err := d.registry.Register(conn, name, nil)
		if err != nil {
			d.logger.Error("failed to register comm target", "target", name, "error", err)
			d.forgetCommTarget(name)
			continue
		}
		if called {
			d.logger.Debug("registered comm target", "target", name, "kernel_id", conn.ID())
		}
	}
}

func (d *Dispatcher) forgetCommTarget(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.knownTargets, name)
	for i, n := range d.registeredTargets {
		if n == name {
			d.registeredTargets = append(d.registeredTargets[:i:i], d.registeredTargets[i+1:]...)
			break
		}
	}
}
