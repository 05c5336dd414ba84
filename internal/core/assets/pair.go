package assets

import "sync"

// Pair couples two stores behind one lock so content that belongs together is
// replaced and read as a unit.
type Pair[A, B any] struct {
	mx     sync.RWMutex
	First  *Store[A]
	Second *Store[B]
}

func NewPair[A, B any]() *Pair[A, B] {
	p := &Pair[A, B]{}
	p.First = newStore[A](&p.mx)
	p.Second = newStore[B](&p.mx)
	return p
}

// Add stores both values and returns their handles.
func (p *Pair[A, B]) Add(a A, b B) (Handle, Handle) {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.First.addLocked(a), p.Second.addLocked(b)
}

// Replace overwrites both contents in one critical section. If either handle
// is unknown nothing is written.
func (p *Pair[A, B]) Replace(ha, hb Handle, a A, b B) error {
	p.mx.Lock()
	defer p.mx.Unlock()

	sa, err := p.First.slotLocked(ha)
	if err != nil {
		return err
	}
	sb, err := p.Second.slotLocked(hb)
	if err != nil {
		return err
	}

	sa.value, sb.value = a, b
	sa.revision++
	sb.revision++
	return nil
}

// Load reads both contents in one critical section.
func (p *Pair[A, B]) Load(ha, hb Handle) (A, B, error) {
	p.mx.RLock()
	defer p.mx.RUnlock()

	var (
		za A
		zb B
	)
	sa, err := p.First.slotLocked(ha)
	if err != nil {
		return za, zb, err
	}
	sb, err := p.Second.slotLocked(hb)
	if err != nil {
		return za, zb, err
	}
	return sa.value, sb.value, nil
}
