package generic

import "sync"

// Pool is a typed sync.Pool.
type Pool[T any] struct {
	pool sync.Pool
}

func NewPool[T any](generate func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
	}
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	p.pool.Put(value)
}

// SlicePool hands out zeroed scratch slices and reuses their backing arrays.
type SlicePool[E any] struct {
	pool *Pool[*[]E]
}

func NewSlicePool[E any]() *SlicePool[E] {
	return &SlicePool[E]{pool: NewPool(func() *[]E { return new([]E) })}
}

// Get returns a slice of length n with every element set to the zero value.
func (p *SlicePool[E]) Get(n int) *[]E {
	s := p.pool.Get()
	if cap(*s) < n {
		*s = make([]E, n)
		return s
	}
	*s = (*s)[:n]
	clear(*s)
	return s
}

// Put returns s to the pool. The caller must not use it afterwards.
func (p *SlicePool[E]) Put(s *[]E) {
	p.pool.Put(s)
}
