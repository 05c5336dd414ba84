package terrain

import (
	"github.com/aquilax/go-perlin"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/zeusync/mapgen/internal/core/mapdata"
)

// Source is a seeded 2D coherent noise function with output roughly in [-1, 1].
type Source interface {
	Eval2(x, y float64) float64
}

type perlinSource struct {
	p *perlin.Perlin
}

func (s perlinSource) Eval2(x, y float64) float64 {
	return s.p.Noise2D(x, y)
}

// NewSource builds the noise source selected by kind for seed. Both sources are
// fully determined by their seed.
func NewSource(kind mapdata.NoiseKind, seed int64) Source {
	switch kind {
	case mapdata.NoisePerlin:
		// a single internal octave; fractal layering is done by Fractal
		return perlinSource{p: perlin.NewPerlin(2, 2, 1, seed)}
	default:
		return opensimplex.New(seed)
	}
}

// Fractal sums octaves of src at (x, y) and normalizes the result to [-1, 1].
func Fractal(src Source, x, y float64, octaves int, frequency, persistence, lacunarity float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += src.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= lacunarity
	}

	n := total / maxVal
	switch {
	case n > 1:
		return 1
	case n < -1:
		return -1
	default:
		return n
	}
}
