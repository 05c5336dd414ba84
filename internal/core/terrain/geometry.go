package terrain

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl32"
)

// VertexStride is the number of float32 per vertex in Interleaved:
// position.xyz, normal.xyz, uv.xy, height.
const VertexStride = 9

// Vertex is one grid point of the surface.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
	// Height is the vertex elevation normalized to [0, 1] over the map's height
	// range; 0 on a flat map.
	Height float32
}

// GeometryBuffer is an indexed triangle list. Triangles are wound
// counter-clockwise when seen from +Y.
type GeometryBuffer struct {
	Vertices []Vertex
	Indices  []uint32
}

func (g GeometryBuffer) VertexCount() int {
	return len(g.Vertices)
}

func (g GeometryBuffer) TriangleCount() int {
	return len(g.Indices) / 3
}

// Validate checks that the index list forms whole triangles and stays within
// the vertex slice.
func (g GeometryBuffer) Validate() error {
	if len(g.Indices)%3 != 0 {
		return fmt.Errorf("index count %d is not a multiple of 3", len(g.Indices))
	}
	n := uint32(len(g.Vertices))
	for i, idx := range g.Indices {
		if idx >= n {
			return fmt.Errorf("index %d at position %d out of range for %d vertices", idx, i, n)
		}
	}
	return nil
}

// Bounds returns the axis-aligned box enclosing every vertex position.
func (g GeometryBuffer) Bounds() (lo, hi mgl32.Vec3) {
	if len(g.Vertices) == 0 {
		return lo, hi
	}
	lo, hi = g.Vertices[0].Position, g.Vertices[0].Position
	for _, v := range g.Vertices[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = min(lo[k], v.Position[k])
			hi[k] = max(hi[k], v.Position[k])
		}
	}
	return lo, hi
}

// FaceNormal returns the unnormalized normal of triangle t following its winding.
func (g GeometryBuffer) FaceNormal(t int) mgl32.Vec3 {
	a := g.Vertices[g.Indices[3*t]].Position
	b := g.Vertices[g.Indices[3*t+1]].Position
	c := g.Vertices[g.Indices[3*t+2]].Position
	return b.Sub(a).Cross(c.Sub(a))
}

// Interleaved flattens the vertices into a GPU-ready float stream of
// VertexStride floats per vertex.
func (g GeometryBuffer) Interleaved() []float32 {
	out := make([]float32, 0, len(g.Vertices)*VertexStride)
	for _, v := range g.Vertices {
		out = append(out,
			v.Position[0], v.Position[1], v.Position[2],
			v.Normal[0], v.Normal[1], v.Normal[2],
			v.UV[0], v.UV[1],
			v.Height,
		)
	}
	return out
}

// Checksum hashes the exact bit patterns of the vertex stream and indices.
func (g GeometryBuffer) Checksum() uint64 {
	d := xxhash.New()
	var buf [4]byte
	for _, f := range g.Interleaved() {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		_, _ = d.Write(buf[:])
	}
	for _, idx := range g.Indices {
		binary.LittleEndian.PutUint32(buf[:], idx)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
