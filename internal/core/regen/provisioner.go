package regen

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/zeusync/mapgen/internal/core/mapdata"
	"github.com/zeusync/mapgen/internal/core/observability/log"
)

// Provisioner creates maps: it generates the first surface synchronously,
// allocates its handles and hands the map to the coordinator as published.
type Provisioner struct {
	coordinator *Coordinator
	logger      log.Log
}

func NewProvisioner(c *Coordinator) *Provisioner {
	return &Provisioner{coordinator: c, logger: c.logger.Named("provisioner")}
}

// Provision builds a MapData from params, publishes its first surface and
// starts tracking it under id. The returned handles stay valid for the life
// of the map.
func (p *Provisioner) Provision(ctx context.Context, id uuid.UUID, params mapdata.Parameters) (*mapdata.MapData, Handles, error) {
	c := p.coordinator

	data, err := mapdata.New(params)
	if err != nil {
		return nil, Handles{}, err
	}
	// claim the id before generating so a duplicate never allocates handles
	if err = c.reserve(id); err != nil {
		return nil, Handles{}, err
	}
	snapshot, version := data.Snapshot()

	c.generations.Add(1)
	geometry, material, err := c.generate(ctx, snapshot)
	if err != nil {
		c.unreserve(id)
		return nil, Handles{}, fmt.Errorf("generate map %s: %w", id, err)
	}

	h, err := c.store.Allocate(geometry, material)
	if err != nil {
		c.unreserve(id)
		return nil, Handles{}, fmt.Errorf("allocate map %s: %w", id, err)
	}
	c.trackPublished(id, data, h, version)
	c.publishes.Add(1)

	p.logger.Info("map provisioned",
		log.Stringer("map", id),
		log.Uint64("version", version),
		log.Int("vertices", geometry.VertexCount()),
		log.Int("triangles", geometry.TriangleCount()),
		log.Stringer("mesh", h.Mesh),
		log.Stringer("material", h.Material),
	)
	c.emit(EventProvisioned, MapEvent{
		ID:         id,
		Version:    version,
		Generation: 1,
		Vertices:   geometry.VertexCount(),
		Triangles:  geometry.TriangleCount(),
	})
	return data, h, nil
}

// MustProvision is Provision for compiled-in or startup parameters, where a
// failure is a configuration error.
func (p *Provisioner) MustProvision(ctx context.Context, id uuid.UUID, params mapdata.Parameters) (*mapdata.MapData, Handles) {
	data, h, err := p.Provision(ctx, id, params)
	if err != nil {
		panic(fmt.Sprintf("provision map %s: %v", id, err))
	}
	return data, h
}
