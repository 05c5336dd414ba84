package mapdata

import (
	"fmt"
	"math"
)

// field binds a parameter name to its accessors on Parameters.
type field struct {
	name string
	get  func(p *Parameters) any
	set  func(p *Parameters, v any) error
}

var fields = []field{
	{"seed", func(p *Parameters) any { return p.Seed }, func(p *Parameters, v any) error {
		n, err := toInt("seed", v)
		p.Seed = n
		return err
	}},
	{"width", func(p *Parameters) any { return p.Width }, func(p *Parameters, v any) error {
		n, err := toInt("width", v)
		p.Width = int(n)
		return err
	}},
	{"height", func(p *Parameters) any { return p.Height }, func(p *Parameters, v any) error {
		n, err := toInt("height", v)
		p.Height = int(n)
		return err
	}},
	{"scale", func(p *Parameters) any { return p.Scale }, floatSetter("scale", func(p *Parameters) *float64 { return &p.Scale })},
	{"amplitude", func(p *Parameters) any { return p.Amplitude }, floatSetter("amplitude", func(p *Parameters) *float64 { return &p.Amplitude })},
	{"frequency", func(p *Parameters) any { return p.Frequency }, floatSetter("frequency", func(p *Parameters) *float64 { return &p.Frequency })},
	{"octaves", func(p *Parameters) any { return p.Octaves }, func(p *Parameters, v any) error {
		n, err := toInt("octaves", v)
		p.Octaves = int(n)
		return err
	}},
	{"persistence", func(p *Parameters) any { return p.Persistence }, floatSetter("persistence", func(p *Parameters) *float64 { return &p.Persistence })},
	{"lacunarity", func(p *Parameters) any { return p.Lacunarity }, floatSetter("lacunarity", func(p *Parameters) *float64 { return &p.Lacunarity })},
	{"noise", func(p *Parameters) any { return p.Noise }, func(p *Parameters, v any) error {
		switch kind := v.(type) {
		case NoiseKind:
			p.Noise = kind
			return nil
		case string:
			parsed, err := ParseNoiseKind(kind)
			if err != nil {
				return err
			}
			p.Noise = parsed
			return nil
		default:
			return typeError("noise", v)
		}
	}},
	{"roughness", func(p *Parameters) any { return p.Roughness }, floatSetter("roughness", func(p *Parameters) *float64 { return &p.Roughness })},
	{"low_color", func(p *Parameters) any { return p.LowColor }, colorSetter("low_color", func(p *Parameters) *Color { return &p.LowColor })},
	{"high_color", func(p *Parameters) any { return p.HighColor }, colorSetter("high_color", func(p *Parameters) *Color { return &p.HighColor })},
}

// Fields lists parameter names in declaration order.
func Fields() []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}
	return names
}

func lookup(name string) (field, error) {
	for _, f := range fields {
		if f.name == name {
			return f, nil
		}
	}
	return field{}, fmt.Errorf("%w: %q", ErrUnknownParameter, name)
}

// Get returns the named parameter value.
func (p Parameters) Get(name string) (any, error) {
	f, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return f.get(&p), nil
}

// With returns a copy of p with the named parameter replaced. The copy is not
// validated.
func (p Parameters) With(name string, value any) (Parameters, error) {
	f, err := lookup(name)
	if err != nil {
		return p, err
	}
	next := p
	if err = f.set(&next, value); err != nil {
		return p, err
	}
	return next, nil
}

func floatSetter(name string, ptr func(p *Parameters) *float64) func(p *Parameters, v any) error {
	return func(p *Parameters, v any) error {
		switch n := v.(type) {
		case float64:
			*ptr(p) = n
		case float32:
			*ptr(p) = float64(n)
		case int:
			*ptr(p) = float64(n)
		case int64:
			*ptr(p) = float64(n)
		default:
			return typeError(name, v)
		}
		return nil
	}
}

func colorSetter(name string, ptr func(p *Parameters) *Color) func(p *Parameters, v any) error {
	return func(p *Parameters, v any) error {
		switch c := v.(type) {
		case Color:
			*ptr(p) = c
		case [4]float64:
			*ptr(p) = Color{R: c[0], G: c[1], B: c[2], A: c[3]}
		default:
			return typeError(name, v)
		}
		return nil
	}
}

func toInt(name string, v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > 1<<62 {
			return 0, fmt.Errorf("%w: %s must be integral, got %v", ErrParameterType, name, n)
		}
		return int64(n), nil
	default:
		return 0, typeError(name, v)
	}
}

func typeError(name string, v any) error {
	return fmt.Errorf("%w: %s does not accept %T", ErrParameterType, name, v)
}
