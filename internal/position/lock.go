package position

import "sync"

// executeLock guards the active-position slot, the session counters and the
// cooldown map. Every check-decide-mutate sequence runs inside With so that
// an admission cannot race an exit decision. Broker I/O never runs under it.
type executeLock struct {
	mu sync.Mutex
}

// Hold acquires the lock and returns its release function.
func (l *executeLock) Hold() (release func()) {
	l.mu.Lock()
	return l.mu.Unlock
}

// With runs fn while holding the lock.
func (l *executeLock) With(fn func()) {
	release := l.Hold()
	defer release()
	fn()
}
