// Package assets is an in-memory handle store for generated content. Handles
// stay valid across content replacement; only Remove invalidates them.
package assets

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var ErrInvalidHandle = errors.New("invalid asset handle")

// Handle is an opaque reference to store-owned content.
type Handle struct {
	id uuid.UUID
}

func (h Handle) String() string {
	return h.id.String()
}

func (h Handle) IsZero() bool {
	return h.id == uuid.Nil
}

type slot[T any] struct {
	value    T
	revision uint64
}

// Store holds values of one asset type.
type Store[T any] struct {
	mx    *sync.RWMutex
	items map[Handle]*slot[T]
}

// NewStore creates a store with its own lock.
func NewStore[T any]() *Store[T] {
	return newStore[T](&sync.RWMutex{})
}

func newStore[T any](mx *sync.RWMutex) *Store[T] {
	return &Store[T]{mx: mx, items: make(map[Handle]*slot[T])}
}

// Add stores value under a new handle.
func (s *Store[T]) Add(value T) Handle {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.addLocked(value)
}

func (s *Store[T]) Get(h Handle) (T, bool) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	it, ok := s.items[h]
	if !ok {
		var zero T
		return zero, false
	}
	return it.value, true
}

// GetMut runs fn with a pointer to the stored value under the write lock.
func (s *Store[T]) GetMut(h Handle, fn func(v *T)) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	it, err := s.slotLocked(h)
	if err != nil {
		return err
	}
	fn(&it.value)
	it.revision++
	return nil
}

// Replace overwrites the content of an existing handle.
func (s *Store[T]) Replace(h Handle, value T) error {
	return s.GetMut(h, func(v *T) { *v = value })
}

// Revision counts replacements of h's content since it was added.
func (s *Store[T]) Revision(h Handle) (uint64, bool) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	it, ok := s.items[h]
	if !ok {
		return 0, false
	}
	return it.revision, true
}

func (s *Store[T]) Remove(h Handle) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	_, ok := s.items[h]
	delete(s.items, h)
	return ok
}

func (s *Store[T]) Len() int {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return len(s.items)
}

func (s *Store[T]) addLocked(value T) Handle {
	h := Handle{id: uuid.New()}
	s.items[h] = &slot[T]{value: value}
	return h
}

func (s *Store[T]) slotLocked(h Handle) (*slot[T], error) {
	it, ok := s.items[h]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	return it, nil
}
