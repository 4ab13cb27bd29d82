package daemon

import (
	"sort"
	"sync"
)

// channelLocks marks channels owned by a running program. A program
// either takes all of its channels or none.
type channelLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newChannelLocks() *channelLocks {
	return &channelLocks{held: make(map[string]bool)}
}

// tryLock returns a release func, or the names already held.
func (l *channelLocks) tryLock(names ...string) (func(), []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var busy []string
	for _, n := range names {
		if l.held[n] {
			busy = append(busy, n)
		}
	}
	if len(busy) > 0 {
		return nil, busy
	}

	for _, n := range names {
		l.held[n] = true
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for _, n := range names {
				delete(l.held, n)
			}
		})
	}, nil
}

func (l *channelLocks) busy(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.held[name]
}

func (l *channelLocks) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.held))
	for n := range l.held {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
