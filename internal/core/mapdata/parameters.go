package mapdata

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Grid and shaping limits enforced by Validate.
const (
	MinDimension  = 2
	MaxDimension  = 4096
	MinScale      = 1e-3
	MaxScale      = 1e4
	MaxAmplitude  = 1e6
	MaxFrequency  = 1e3
	MinOctaves    = 1
	MaxOctaves    = 12
	MinLacunarity = 1.0
	MaxLacunarity = 8.0
	// MaxNoiseCoordinate bounds the largest coordinate passed to a noise
	// source, reached by the highest octave at the far corner of the grid.
	MaxNoiseCoordinate = 1 << 20

	encodedByteSize = 8*11 + 8*8
)

// NoiseKind selects the coherent noise source used for the height field.
type NoiseKind uint8

const (
	NoiseSimplex NoiseKind = iota
	NoisePerlin
)

func (k NoiseKind) String() string {
	switch k {
	case NoiseSimplex:
		return "simplex"
	case NoisePerlin:
		return "perlin"
	default:
		return fmt.Sprintf("noise(%d)", uint8(k))
	}
}

// ParseNoiseKind is the inverse of NoiseKind.String.
func ParseNoiseKind(s string) (NoiseKind, error) {
	switch s {
	case "simplex", "":
		return NoiseSimplex, nil
	case "perlin":
		return NoisePerlin, nil
	default:
		return NoiseSimplex, invalid("noise", "must be simplex or perlin, got %q", s)
	}
}

func (k NoiseKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *NoiseKind) UnmarshalText(text []byte) error {
	parsed, err := ParseNoiseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Color is a linear RGBA colour with components in [0, 1].
type Color struct {
	R float64 `yaml:"r" json:"r"`
	G float64 `yaml:"g" json:"g"`
	B float64 `yaml:"b" json:"b"`
	A float64 `yaml:"a" json:"a"`
}

// Parameters is the complete generation input of one map. It is a plain
// comparable value; equal Parameters always generate equal surfaces.
type Parameters struct {
	Seed        int64     `yaml:"seed" json:"seed"`
	Width       int       `yaml:"width" json:"width"`
	Height      int       `yaml:"height" json:"height"`
	Scale       float64   `yaml:"scale" json:"scale"`
	Amplitude   float64   `yaml:"amplitude" json:"amplitude"`
	Frequency   float64   `yaml:"frequency" json:"frequency"`
	Octaves     int       `yaml:"octaves" json:"octaves"`
	Persistence float64   `yaml:"persistence" json:"persistence"`
	Lacunarity  float64   `yaml:"lacunarity" json:"lacunarity"`
	Noise       NoiseKind `yaml:"noise" json:"noise"`
	Roughness   float64   `yaml:"roughness" json:"roughness"`
	LowColor    Color     `yaml:"low_color" json:"low_color"`
	HighColor   Color     `yaml:"high_color" json:"high_color"`
}

// DefaultParameters returns the compiled-in defaults used for new maps.
func DefaultParameters() Parameters {
	return Parameters{
		Seed:        1,
		Width:       64,
		Height:      64,
		Scale:       1.0,
		Amplitude:   8.0,
		Frequency:   0.05,
		Octaves:     4,
		Persistence: 0.5,
		Lacunarity:  2.0,
		Noise:       NoiseSimplex,
		Roughness:   0.8,
		LowColor:    Color{R: 0.15, G: 0.35, B: 0.1, A: 1},
		HighColor:   Color{R: 0.9, G: 0.9, B: 0.95, A: 1},
	}
}

// Validate rejects parameter combinations the generator cannot turn into a
// valid, non-degenerate surface. The returned error is a *ParameterError.
func (p Parameters) Validate() error {
	if p.Width < MinDimension || p.Width > MaxDimension {
		return invalid("width", "must be in [%d, %d], got %d", MinDimension, MaxDimension, p.Width)
	}
	if p.Height < MinDimension || p.Height > MaxDimension {
		return invalid("height", "must be in [%d, %d], got %d", MinDimension, MaxDimension, p.Height)
	}
	if !finite(p.Scale) || p.Scale < MinScale || p.Scale > MaxScale {
		return invalid("scale", "must be in [%g, %g], got %v", float64(MinScale), float64(MaxScale), p.Scale)
	}
	if !finite(p.Amplitude) || p.Amplitude < 0 || p.Amplitude > MaxAmplitude {
		return invalid("amplitude", "must be finite and in [0, %g], got %v", float64(MaxAmplitude), p.Amplitude)
	}
	if !finite(p.Frequency) || p.Frequency <= 0 || p.Frequency > MaxFrequency {
		return invalid("frequency", "must be in (0, %g], got %v", float64(MaxFrequency), p.Frequency)
	}
	if p.Octaves < MinOctaves || p.Octaves > MaxOctaves {
		return invalid("octaves", "must be in [%d, %d], got %d", MinOctaves, MaxOctaves, p.Octaves)
	}
	if !finite(p.Persistence) || p.Persistence <= 0 || p.Persistence > 1 {
		return invalid("persistence", "must be in (0, 1], got %v", p.Persistence)
	}
	if !finite(p.Lacunarity) || p.Lacunarity < MinLacunarity || p.Lacunarity > MaxLacunarity {
		return invalid("lacunarity", "must be in [%g, %g], got %v", MinLacunarity, MaxLacunarity, p.Lacunarity)
	}
	if reach := p.NoiseReach(); reach > MaxNoiseCoordinate {
		return invalid("frequency", "highest octave samples noise at %g, limit is %g", reach, float64(MaxNoiseCoordinate))
	}
	if p.Noise != NoiseSimplex && p.Noise != NoisePerlin {
		return invalid("noise", "unsupported kind %d", uint8(p.Noise))
	}
	if !unit(p.Roughness) {
		return invalid("roughness", "must be in [0, 1], got %v", p.Roughness)
	}
	if err := p.LowColor.validate("low_color"); err != nil {
		return err
	}
	return p.HighColor.validate("high_color")
}

// NoiseReach is the largest noise-space coordinate the generator samples:
// the far grid corner at the frequency of the last octave.
func (p Parameters) NoiseReach() float64 {
	extent := float64(max(p.Width, p.Height)-1) * p.Scale
	return extent * p.Frequency * math.Pow(p.Lacunarity, float64(p.Octaves-1))
}

// Fingerprint hashes the canonical encoding of p. It is the generation
// version: a pure function of the parameter values.
func (p Parameters) Fingerprint() uint64 {
	var buf [encodedByteSize]byte
	b := buf[:0]
	b = binary.LittleEndian.AppendUint64(b, uint64(p.Seed))
	b = binary.LittleEndian.AppendUint64(b, uint64(p.Width))
	b = binary.LittleEndian.AppendUint64(b, uint64(p.Height))
	b = appendFloat(b, p.Scale)
	b = appendFloat(b, p.Amplitude)
	b = appendFloat(b, p.Frequency)
	b = binary.LittleEndian.AppendUint64(b, uint64(p.Octaves))
	b = appendFloat(b, p.Persistence)
	b = appendFloat(b, p.Lacunarity)
	b = binary.LittleEndian.AppendUint64(b, uint64(p.Noise))
	b = appendFloat(b, p.Roughness)
	for _, c := range [2]Color{p.LowColor, p.HighColor} {
		b = appendFloat(b, c.R)
		b = appendFloat(b, c.G)
		b = appendFloat(b, c.B)
		b = appendFloat(b, c.A)
	}
	return xxhash.Sum64(b)
}

func (c Color) validate(field string) error {
	if !unit(c.R) || !unit(c.G) || !unit(c.B) || !unit(c.A) {
		return invalid(field, "components must be in [0, 1], got %+v", c)
	}
	return nil
}

func appendFloat(b []byte, v float64) []byte {
	// -0 and +0 generate the same surface
	if v == 0 {
		v = 0
	}
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func unit(v float64) bool {
	return finite(v) && v >= 0 && v <= 1
}
