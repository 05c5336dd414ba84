package terrain

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/zeusync/mapgen/internal/core/mapdata"
)

// MaterialParameters are the shading inputs paired with one GeometryBuffer.
type MaterialParameters struct {
	MinHeight float32
	MaxHeight float32
	LowColor  mgl32.Vec4
	HighColor mgl32.Vec4
	Roughness float32
}

func (m MaterialParameters) HeightRange() float32 {
	return m.MaxHeight - m.MinHeight
}

// ColorAt blends LowColor to HighColor by a normalized height t in [0, 1].
func (m MaterialParameters) ColorAt(t float32) mgl32.Vec4 {
	t = mgl32.Clamp(t, 0, 1)
	return m.LowColor.Mul(1 - t).Add(m.HighColor.Mul(t))
}

func newMaterial(p mapdata.Parameters, lo, hi float64) MaterialParameters {
	return MaterialParameters{
		MinHeight: float32(lo),
		MaxHeight: float32(hi),
		LowColor:  toVec4(p.LowColor),
		HighColor: toVec4(p.HighColor),
		Roughness: float32(p.Roughness),
	}
}

func toVec4(c mapdata.Color) mgl32.Vec4 {
	return mgl32.Vec4{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
}
