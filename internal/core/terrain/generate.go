// Package terrain turns map parameters into a height-field triangle mesh and
// the material parameters that shade it.
package terrain

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/mapgen/internal/core/mapdata"
	"github.com/zeusync/mapgen/pkg/generic"
)

var ErrGenerationFailure = errors.New("map generation failed")

// heightBuffers holds height fields between generations; geometry copies the
// heights it needs, so the field never escapes generate.
var heightBuffers = generic.NewSlicePool[float64]()

// Generate builds the surface for p. It is deterministic and has no side
// effects. p must have passed Validate; Generator.Generate checks that.
func Generate(p mapdata.Parameters) (GeometryBuffer, MaterialParameters) {
	g, m, _ := generate(context.Background(), p)
	return g, m
}

// Func is the signature shared by Generate and test doubles.
type Func func(ctx context.Context, p mapdata.Parameters) (GeometryBuffer, MaterialParameters, error)

// Generator wraps Generate with parameter validation, cancellation and panic
// recovery for use from a scheduler.
type Generator struct{}

func NewGenerator() Generator {
	return Generator{}
}

func (Generator) Generate(ctx context.Context, p mapdata.Parameters) (geometry GeometryBuffer, material MaterialParameters, err error) {
	if err = p.Validate(); err != nil {
		return GeometryBuffer{}, MaterialParameters{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			geometry, material = GeometryBuffer{}, MaterialParameters{}
			err = fmt.Errorf("%w: %v", ErrGenerationFailure, r)
		}
	}()

	return generate(ctx, p)
}

func generate(ctx context.Context, p mapdata.Parameters) (GeometryBuffer, MaterialParameters, error) {
	return generateFrom(ctx, p, NewSource(p.Noise, p.Seed))
}

func generateFrom(ctx context.Context, p mapdata.Parameters, src Source) (GeometryBuffer, MaterialParameters, error) {
	buf := heightBuffers.Get(p.Width * p.Height)
	defer heightBuffers.Put(buf)

	heights := *buf
	if err := sampleHeights(ctx, p, src, heights); err != nil {
		return GeometryBuffer{}, MaterialParameters{}, err
	}

	lo, hi := heights[0], heights[0]
	for _, h := range heights[1:] {
		lo = math.Min(lo, h)
		hi = math.Max(hi, h)
	}
	// NaN and Inf propagate through Min and Max
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return GeometryBuffer{}, MaterialParameters{}, fmt.Errorf("%w: non-finite height field [%v, %v]", ErrGenerationFailure, lo, hi)
	}

	return buildGeometry(p, heights, lo, hi), newMaterial(p, lo, hi), nil
}

// sampleHeights fills the zeroed row-major (j*width + i) height field.
func sampleHeights(ctx context.Context, p mapdata.Parameters, src Source, heights []float64) error {
	if p.Amplitude == 0 {
		return nil
	}

	for j := 0; j < p.Height; j++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		z := float64(j) * p.Scale
		row := heights[j*p.Width : (j+1)*p.Width]
		for i := range row {
			x := float64(i) * p.Scale
			row[i] = p.Amplitude * Fractal(src, x, z, p.Octaves, p.Frequency, p.Persistence, p.Lacunarity)
		}
	}
	return nil
}

func buildGeometry(p mapdata.Parameters, heights []float64, lo, hi float64) GeometryBuffer {
	w, h := p.Width, p.Height
	span := hi - lo

	vertices := make([]Vertex, w*h)
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			y := heights[j*w+i]

			var shade float32
			if span > 0 {
				shade = float32((y - lo) / span)
			}

			vertices[j*w+i] = Vertex{
				Position: mgl32.Vec3{float32(float64(i) * p.Scale), float32(y), float32(float64(j) * p.Scale)},
				Normal:   normalAt(heights, w, h, i, j, p.Scale),
				UV:       mgl32.Vec2{float32(i) / float32(w-1), float32(j) / float32(h-1)},
				Height:   shade,
			}
		}
	}

	indices := make([]uint32, 0, 6*(w-1)*(h-1))
	for j := 0; j < h-1; j++ {
		for i := 0; i < w-1; i++ {
			a := uint32(j*w + i)
			b := a + 1
			c := a + uint32(w)
			d := c + 1
			// counter-clockwise seen from +Y
			indices = append(indices, a, c, b, b, c, d)
		}
	}

	return GeometryBuffer{Vertices: vertices, Indices: indices}
}

// normalAt derives the surface normal from neighbouring heights using central
// differences, one-sided on the border.
func normalAt(heights []float64, w, h, i, j int, scale float64) mgl32.Vec3 {
	i0, i1 := max(i-1, 0), min(i+1, w-1)
	j0, j1 := max(j-1, 0), min(j+1, h-1)

	dx := (heights[j*w+i1] - heights[j*w+i0]) / (float64(i1-i0) * scale)
	dz := (heights[j1*w+i] - heights[j0*w+i]) / (float64(j1-j0) * scale)

	// scale before normalizing so steep slopes cannot overflow
	m := math.Max(1, math.Max(math.Abs(dx), math.Abs(dz)))
	nx, ny, nz := -dx/m, 1/m, -dz/m
	l := math.Sqrt(nx*nx + ny*ny + nz*nz)
	return mgl32.Vec3{float32(nx / l), float32(ny / l), float32(nz / l)}
}
