package mapdata

import "sync"

// Tracker remembers, per key, the last MapData version a consumer has
// observed. A key that was never observed always reports a change.
type Tracker[K comparable] struct {
	mx   sync.Mutex
	seen map[K]uint64
}

func NewTracker[K comparable]() *Tracker[K] {
	return &Tracker[K]{seen: make(map[K]uint64)}
}

// Changed reports whether version differs from the last observed one for key.
// It does not record anything.
func (t *Tracker[K]) Changed(key K, version uint64) bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	last, ok := t.seen[key]
	return !ok || last != version
}

// Observe records version as consumed for key.
func (t *Tracker[K]) Observe(key K, version uint64) {
	t.mx.Lock()
	t.seen[key] = version
	t.mx.Unlock()
}

// Check reports whether m changed since the previous Check for key and
// consumes the change.
func (t *Tracker[K]) Check(key K, m *MapData) bool {
	version := m.Version()

	t.mx.Lock()
	defer t.mx.Unlock()
	last, ok := t.seen[key]
	if ok && last == version {
		return false
	}
	t.seen[key] = version
	return true
}

// Forget drops key; the next check for it reports a change.
func (t *Tracker[K]) Forget(key K) {
	t.mx.Lock()
	delete(t.seen, key)
	t.mx.Unlock()
}

func (t *Tracker[K]) Len() int {
	t.mx.Lock()
	defer t.mx.Unlock()
	return len(t.seen)
}
