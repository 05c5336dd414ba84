// Package mapdata holds the parametric description of a generated map and the
// change tracking used to decide when its surface must be regenerated.
package mapdata

import (
	"sync"
)

// MapData is the authoritative parameter record of one map entity. It is safe
// for concurrent use: editing surfaces may write while the regeneration tick
// reads snapshots.
type MapData struct {
	mx       sync.RWMutex
	params   Parameters
	version  uint64
	revision uint64
}

// New validates p and returns a MapData holding it.
func New(p Parameters) (*MapData, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &MapData{params: p, version: p.Fingerprint()}, nil
}

// Default returns a MapData with DefaultParameters.
func Default() *MapData {
	p := DefaultParameters()
	return &MapData{params: p, version: p.Fingerprint()}
}

// Parameters returns a copy of the current parameters.
func (m *MapData) Parameters() Parameters {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return m.params
}

// Snapshot returns the current parameters together with their version, read
// under one lock.
func (m *MapData) Snapshot() (Parameters, uint64) {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return m.params, m.version
}

// Version is the generation version of the current parameters. Two MapData
// with equal parameters report equal versions.
func (m *MapData) Version() uint64 {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return m.version
}

// Revision counts effective mutations since construction.
func (m *MapData) Revision() uint64 {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return m.revision
}

// Update applies fn to a copy of the parameters and commits the result if it
// validates. A rejected edit leaves the MapData untouched.
func (m *MapData) Update(fn func(p *Parameters)) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	next := m.params
	fn(&next)
	return m.commitLocked(next)
}

// Replace swaps in a whole parameter set.
func (m *MapData) Replace(p Parameters) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.commitLocked(p)
}

// Get returns the named parameter.
func (m *MapData) Get(name string) (any, error) {
	return m.Parameters().Get(name)
}

// Set writes the named parameter. Names are those returned by Fields.
func (m *MapData) Set(name string, value any) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	next, err := m.params.With(name, value)
	if err != nil {
		return err
	}
	return m.commitLocked(next)
}

func (m *MapData) SetSeed(seed int64) error {
	return m.Update(func(p *Parameters) { p.Seed = seed })
}

func (m *MapData) SetWidth(width int) error {
	return m.Update(func(p *Parameters) { p.Width = width })
}

func (m *MapData) SetHeight(height int) error {
	return m.Update(func(p *Parameters) { p.Height = height })
}

func (m *MapData) SetScale(scale float64) error {
	return m.Update(func(p *Parameters) { p.Scale = scale })
}

func (m *MapData) SetAmplitude(amplitude float64) error {
	return m.Update(func(p *Parameters) { p.Amplitude = amplitude })
}

func (m *MapData) SetFrequency(frequency float64) error {
	return m.Update(func(p *Parameters) { p.Frequency = frequency })
}

func (m *MapData) SetOctaves(octaves int) error {
	return m.Update(func(p *Parameters) { p.Octaves = octaves })
}

func (m *MapData) SetPersistence(persistence float64) error {
	return m.Update(func(p *Parameters) { p.Persistence = persistence })
}

func (m *MapData) SetLacunarity(lacunarity float64) error {
	return m.Update(func(p *Parameters) { p.Lacunarity = lacunarity })
}

func (m *MapData) SetNoise(kind NoiseKind) error {
	return m.Update(func(p *Parameters) { p.Noise = kind })
}

func (m *MapData) SetRoughness(roughness float64) error {
	return m.Update(func(p *Parameters) { p.Roughness = roughness })
}

func (m *MapData) SetLowColor(c Color) error {
	return m.Update(func(p *Parameters) { p.LowColor = c })
}

func (m *MapData) SetHighColor(c Color) error {
	return m.Update(func(p *Parameters) { p.HighColor = c })
}

func (m *MapData) commitLocked(next Parameters) error {
	if err := next.Validate(); err != nil {
		return err
	}
	if next == m.params {
		return nil
	}
	m.params = next
	m.version = next.Fingerprint()
	m.revision++
	return nil
}
