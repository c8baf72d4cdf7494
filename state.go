package tabAuth

// publishLocked swaps in s and notifies watchers. Callers hold m.mu, so
// watchers observe snapshots in mutation order.
func (m *Manager) publishLocked(s *Session) {
	m.current.Store(s)

	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	for _, ch := range m.watchers {
		// Latest value wins; only publishLocked sends, so the send after the
		// drain cannot block.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.clone():
		default:
		}
	}
}

// Watch returns a channel that receives the latest session after every change,
// starting with the current one. Slow readers see only the newest snapshot.
// Call the returned func to stop watching; the channel is closed by it or by
// Close.
func (m *Manager) Watch() (<-chan Session, func()) {
	ch := make(chan Session, 1)

	m.watchMu.Lock()
	if m.watchClosed {
		m.watchMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextWatch
	m.nextWatch++
	m.watchers[id] = ch
	ch <- m.current.Load().clone()
	m.watchMu.Unlock()

	return ch, func() {
		m.watchMu.Lock()
		defer m.watchMu.Unlock()
		if c, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(c)
		}
	}
}

func (m *Manager) closeWatchers() {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	m.watchClosed = true
	for id, ch := range m.watchers {
		delete(m.watchers, id)
		close(ch)
	}
}
