package executors

import "sync"

// KeyedLocker serializes work per position inside one process. TryLock never
// blocks: a busy key is skipped for the current tick.
type KeyedLocker struct {
	mu   sync.Mutex
	held map[uint]struct{}
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{held: make(map[uint]struct{})}
}

// TryLock claims id and returns its release func, or false when another
// worker holds it.
func (l *KeyedLocker) TryLock(id uint) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[id]; busy {
		return nil, false
	}
	l.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
	}, true
}
