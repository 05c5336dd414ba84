package regen

import (
	"fmt"

	"github.com/google/uuid"
)

// State is the publication state of one map entity.
type State uint8

const (
	// StateUnpublished: no geometry or material exists yet.
	StateUnpublished State = iota
	// StatePublished: published content matches the last observed parameters.
	StatePublished
	// StateStale: a change was observed and regeneration is pending or being retried.
	StateStale
)

func (s State) String() string {
	switch s {
	case StateUnpublished:
		return "unpublished"
	case StatePublished:
		return "published"
	case StateStale:
		return "stale"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Event types published on the event bus.
const (
	EventProvisioned = "map.provisioned"
	EventPublished   = "map.published"
	EventFailed      = "map.failed"
)

const eventSource = "regen"

// MapEvent is the payload of every map event.
type MapEvent struct {
	ID         uuid.UUID
	Version    uint64
	Generation uint64
	Vertices   int
	Triangles  int
	Err        error
}
