package regen

import (
	"fmt"

	"github.com/zeusync/mapgen/internal/core/assets"
	"github.com/zeusync/mapgen/internal/core/terrain"
)

// Handles reference the published content of one map entity. They never
// change after provisioning.
type Handles struct {
	Mesh     assets.Handle
	Material assets.Handle
}

// Store is the asset storage the core publishes into. Replace must apply both
// contents as one update: a reader never sees geometry and material from
// different calls.
type Store interface {
	Allocate(geometry terrain.GeometryBuffer, material terrain.MaterialParameters) (Handles, error)
	Replace(h Handles, geometry terrain.GeometryBuffer, material terrain.MaterialParameters) error
}

var _ Store = (*AssetStore)(nil)

// AssetStore is the in-memory Store backed by a paired asset store.
type AssetStore struct {
	pair *assets.Pair[terrain.GeometryBuffer, terrain.MaterialParameters]
}

func NewAssetStore() *AssetStore {
	return &AssetStore{pair: assets.NewPair[terrain.GeometryBuffer, terrain.MaterialParameters]()}
}

func (s *AssetStore) Allocate(geometry terrain.GeometryBuffer, material terrain.MaterialParameters) (Handles, error) {
	mesh, mat := s.pair.Add(geometry, material)
	return Handles{Mesh: mesh, Material: mat}, nil
}

func (s *AssetStore) Replace(h Handles, geometry terrain.GeometryBuffer, material terrain.MaterialParameters) error {
	if err := s.pair.Replace(h.Mesh, h.Material, geometry, material); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailure, err)
	}
	return nil
}

// Load returns the geometry and material currently published under h, read
// together.
func (s *AssetStore) Load(h Handles) (terrain.GeometryBuffer, terrain.MaterialParameters, error) {
	return s.pair.Load(h.Mesh, h.Material)
}

func (s *AssetStore) Meshes() *assets.Store[terrain.GeometryBuffer] {
	return s.pair.First
}

func (s *AssetStore) Materials() *assets.Store[terrain.MaterialParameters] {
	return s.pair.Second
}
