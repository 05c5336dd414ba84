package regen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/mapgen/internal/core/events/bus"
	"github.com/zeusync/mapgen/internal/core/mapdata"
	"github.com/zeusync/mapgen/internal/core/terrain"
)

func flatParameters() mapdata.Parameters {
	p := mapdata.DefaultParameters()
	p.Width, p.Height = 4, 4
	p.Seed = 1
	p.Scale = 1.0
	p.Amplitude = 0
	return p
}

// countingGenerator wraps the real generator and counts invocations.
type countingGenerator struct {
	calls atomic.Int32
	hook  func(call int32, p mapdata.Parameters) error
}

func (g *countingGenerator) Generate(ctx context.Context, p mapdata.Parameters) (terrain.GeometryBuffer, terrain.MaterialParameters, error) {
	call := g.calls.Add(1)
	if g.hook != nil {
		if err := g.hook(call, p); err != nil {
			return terrain.GeometryBuffer{}, terrain.MaterialParameters{}, err
		}
	}
	return terrain.NewGenerator().Generate(ctx, p)
}

// flakyStore rejects the first failures Replace calls.
type flakyStore struct {
	*AssetStore
	failures atomic.Int32
}

func (s *flakyStore) Replace(h Handles, g terrain.GeometryBuffer, m terrain.MaterialParameters) error {
	if s.failures.Add(-1) >= 0 {
		return errors.New("store busy")
	}
	return s.AssetStore.Replace(h, g, m)
}

// hookStore runs onReplace before each Replace.
type hookStore struct {
	*AssetStore
	onReplace func()
}

func (s *hookStore) Replace(h Handles, g terrain.GeometryBuffer, m terrain.MaterialParameters) error {
	if s.onReplace != nil {
		s.onReplace()
	}
	return s.AssetStore.Replace(h, g, m)
}

type fixture struct {
	store       *AssetStore
	gen         *countingGenerator
	coordinator *Coordinator
	provisioner *Provisioner
}

func newFixture(t *testing.T, store Store, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{gen: &countingGenerator{}}
	if store == nil {
		f.store = NewAssetStore()
		store = f.store
	}
	opts = append([]Option{WithGenerator(f.gen.Generate)}, opts...)
	f.coordinator = NewCoordinator(store, opts...)
	f.provisioner = NewProvisioner(f.coordinator)
	return f
}

func TestProvisionPublishesFirstSurface(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()

	data, h, err := f.provisioner.Provision(context.Background(), id, flatParameters())
	require.NoError(t, err)

	geometry, material, err := f.store.Load(h)
	require.NoError(t, err)
	assert.Equal(t, 16, geometry.VertexCount())
	assert.Equal(t, 18, geometry.TriangleCount())
	assert.Zero(t, material.HeightRange())

	assert.Equal(t, StatePublished, f.coordinator.State(id))
	assert.Equal(t, flatParameters(), data.Parameters())
	assert.EqualValues(t, 1, f.gen.calls.Load())

	got, err := f.coordinator.Handles(id)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestProvisionRejectsInvalidParameters(t *testing.T) {
	f := newFixture(t, nil)
	p := flatParameters()
	p.Width = 0

	_, _, err := f.provisioner.Provision(context.Background(), uuid.New(), p)
	assert.ErrorIs(t, err, mapdata.ErrInvalidParameters)
	assert.Zero(t, f.gen.calls.Load())
	assert.Zero(t, f.store.Meshes().Len())
	assert.Panics(t, func() {
		f.provisioner.MustProvision(context.Background(), uuid.New(), p)
	})
}

func TestProvisionTwiceWithSameID(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	f.provisioner.MustProvision(context.Background(), id, flatParameters())

	_, _, err := f.provisioner.Provision(context.Background(), id, flatParameters())
	assert.ErrorIs(t, err, ErrAlreadyTracked)

	// the duplicate neither generates nor allocates
	assert.EqualValues(t, 1, f.gen.calls.Load())
	assert.Equal(t, 1, f.store.Meshes().Len())
	assert.Equal(t, 1, f.store.Materials().Len())
}

func TestProvisioningIDCannotBeTrackedMeanwhile(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	other, err := f.store.Allocate(terrain.GeometryBuffer{}, terrain.MaterialParameters{})
	require.NoError(t, err)

	f.gen.hook = func(call int32, _ mapdata.Parameters) error {
		if call == 1 {
			assert.ErrorIs(t, f.coordinator.Track(id, mapdata.Default(), other), ErrAlreadyTracked)
		}
		return nil
	}

	_, h, err := f.provisioner.Provision(context.Background(), id, flatParameters())
	require.NoError(t, err)
	assert.NotEqual(t, other, h)
	assert.Equal(t, 2, f.store.Meshes().Len())
	assert.Equal(t, StatePublished, f.coordinator.State(id))
}

func TestFailedProvisionReleasesID(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.hook = func(call int32, _ mapdata.Parameters) error {
		if call == 1 {
			return fmt.Errorf("%w: simulated", terrain.ErrGenerationFailure)
		}
		return nil
	}
	id := uuid.New()

	_, _, err := f.provisioner.Provision(context.Background(), id, flatParameters())
	require.ErrorIs(t, err, terrain.ErrGenerationFailure)
	assert.Zero(t, f.store.Meshes().Len())
	assert.Equal(t, StateUnpublished, f.coordinator.State(id))

	_, _, err = f.provisioner.Provision(context.Background(), id, flatParameters())
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Meshes().Len())
}

func TestTickWithoutChangeRunsNoGeneration(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	f.provisioner.MustProvision(context.Background(), id, flatParameters())

	for i := 0; i < 3; i++ {
		report, err := f.coordinator.Tick(context.Background())
		require.NoError(t, err)
		assert.Empty(t, report.Regenerated)
		assert.Equal(t, 1, report.Unchanged)
	}

	assert.EqualValues(t, 1, f.gen.calls.Load())
	assert.EqualValues(t, 3, f.coordinator.Stats().Ticks)
}

func TestEditTriggersRegeneration(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	data, h := f.provisioner.MustProvision(context.Background(), id, flatParameters())

	require.NoError(t, data.SetAmplitude(2.0))
	assert.Equal(t, StatePublished, f.coordinator.State(id))

	report, err := f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, report.Regenerated)
	assert.Equal(t, StatePublished, f.coordinator.State(id))

	got, err := f.coordinator.Handles(id)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	geometry, material, err := f.store.Load(h)
	require.NoError(t, err)
	first := geometry.Vertices[0].Position.Y()
	varied := false
	for _, v := range geometry.Vertices {
		if v.Position.Y() != first {
			varied = true
		}
	}
	assert.True(t, varied)
	assert.Greater(t, material.HeightRange(), float32(0))

	rev, ok := f.store.Meshes().Revision(h.Mesh)
	require.True(t, ok)
	assert.EqualValues(t, 1, rev)
	assert.Equal(t, 1, f.store.Meshes().Len())
	assert.Equal(t, 1, f.store.Materials().Len())

	// consumed: the next tick has nothing to do
	report, err = f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Regenerated)
	assert.EqualValues(t, 2, f.gen.calls.Load())
}

func TestInvalidEditCausesNoRegeneration(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	data, h := f.provisioner.MustProvision(context.Background(), id, flatParameters())
	before, _, err := f.store.Load(h)
	require.NoError(t, err)

	assert.ErrorIs(t, data.SetWidth(0), mapdata.ErrInvalidParameters)
	assert.Equal(t, 4, data.Parameters().Width)

	_, err = f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.gen.calls.Load())

	after, _, err := f.store.Load(h)
	require.NoError(t, err)
	assert.Equal(t, before.Checksum(), after.Checksum())
}

func TestBatchedEditsCoalesce(t *testing.T) {
	f := newFixture(t, nil)
	data, _ := f.provisioner.MustProvision(context.Background(), uuid.New(), flatParameters())

	require.NoError(t, data.SetAmplitude(1))
	require.NoError(t, data.SetSeed(5))
	require.NoError(t, data.SetOctaves(2))

	_, err := f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.gen.calls.Load())
}

func TestRevertedEditNeedsNoRegeneration(t *testing.T) {
	f := newFixture(t, nil)
	data, _ := f.provisioner.MustProvision(context.Background(), uuid.New(), flatParameters())

	require.NoError(t, data.SetAmplitude(3))
	require.NoError(t, data.SetAmplitude(0))

	_, err := f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.gen.calls.Load())
}

func TestPublishFailureIsRetriedNextTick(t *testing.T) {
	store := &flakyStore{AssetStore: NewAssetStore()}
	f := newFixture(t, store)
	id := uuid.New()
	data, h := f.provisioner.MustProvision(context.Background(), id, flatParameters())
	before, beforeMaterial, err := store.Load(h)
	require.NoError(t, err)

	store.failures.Store(1)
	require.NoError(t, data.SetAmplitude(2))

	report, err := f.coordinator.Tick(context.Background())
	require.ErrorIs(t, err, ErrPublishFailure)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, id, report.Failed[0].ID)
	assert.Equal(t, StateStale, f.coordinator.State(id))
	assert.ErrorIs(t, f.coordinator.LastError(id), ErrPublishFailure)

	// last good content stays visible
	current, currentMaterial, err := store.Load(h)
	require.NoError(t, err)
	assert.Equal(t, before.Checksum(), current.Checksum())
	assert.Equal(t, beforeMaterial, currentMaterial)

	report, err = f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, report.Regenerated)
	assert.Equal(t, StatePublished, f.coordinator.State(id))
	assert.NoError(t, f.coordinator.LastError(id))

	_, material, err := store.Load(h)
	require.NoError(t, err)
	assert.Greater(t, material.HeightRange(), float32(0))
	assert.EqualValues(t, 1, f.coordinator.Stats().Failures)
}

func TestGenerationFailureIsRetriedNextTick(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.hook = func(call int32, _ mapdata.Parameters) error {
		if call == 2 {
			return fmt.Errorf("%w: simulated", terrain.ErrGenerationFailure)
		}
		return nil
	}
	id := uuid.New()
	data, _ := f.provisioner.MustProvision(context.Background(), id, flatParameters())
	require.NoError(t, data.SetAmplitude(2))

	_, err := f.coordinator.Tick(context.Background())
	require.ErrorIs(t, err, terrain.ErrGenerationFailure)
	assert.Equal(t, StateStale, f.coordinator.State(id))

	_, err = f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePublished, f.coordinator.State(id))
	assert.EqualValues(t, 3, f.gen.calls.Load())
}

func TestEditDuringGenerationIsPickedUpNextTick(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()

	var data *mapdata.MapData
	f.gen.hook = func(call int32, _ mapdata.Parameters) error {
		if call == 2 {
			// an editor writes while the tick is generating
			assert.NoError(t, data.SetSeed(42))
		}
		return nil
	}
	data, h := f.provisioner.MustProvision(context.Background(), id, flatParameters())
	require.NoError(t, data.SetAmplitude(2))

	report, err := f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Regenerated, 1)
	first, _, err := f.store.Load(h)
	require.NoError(t, err)

	report, err = f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Regenerated, 1)
	second, _, err := f.store.Load(h)
	require.NoError(t, err)

	assert.NotEqual(t, first.Checksum(), second.Checksum())
	want, _ := terrain.Generate(data.Parameters())
	assert.Equal(t, want.Checksum(), second.Checksum())
	assert.EqualValues(t, 3, f.gen.calls.Load())
}

func TestTrackedMapStartsStale(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	data := mapdata.Default()
	h, err := f.store.Allocate(terrain.GeometryBuffer{}, terrain.MaterialParameters{})
	require.NoError(t, err)

	require.NoError(t, f.coordinator.Track(id, data, h))
	assert.Equal(t, StateStale, f.coordinator.State(id))
	assert.ErrorIs(t, f.coordinator.Track(id, data, h), ErrAlreadyTracked)

	_, err = f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePublished, f.coordinator.State(id))

	geometry, _, err := f.store.Load(h)
	require.NoError(t, err)
	assert.Equal(t, 64*64, geometry.VertexCount())
}

func TestUntrack(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.New()
	data, _ := f.provisioner.MustProvision(context.Background(), id, flatParameters())

	require.NoError(t, f.coordinator.Untrack(id))
	assert.ErrorIs(t, f.coordinator.Untrack(id), ErrUnknownEntity)
	assert.Equal(t, StateUnpublished, f.coordinator.State(id))
	_, err := f.coordinator.Handles(id)
	assert.ErrorIs(t, err, ErrUnknownEntity)

	require.NoError(t, data.SetAmplitude(1))
	_, err = f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.gen.calls.Load())
	assert.Zero(t, f.coordinator.Stats().Tracked)
}

func TestUntrackDuringPublishIsNotUndone(t *testing.T) {
	store := &hookStore{AssetStore: NewAssetStore()}
	f := newFixture(t, store)
	id := uuid.New()
	data, _ := f.provisioner.MustProvision(context.Background(), id, flatParameters())

	fresh, err := store.Allocate(terrain.GeometryBuffer{}, terrain.MaterialParameters{})
	require.NoError(t, err)
	store.onReplace = func() {
		store.onReplace = nil
		assert.NoError(t, f.coordinator.Untrack(id))
		assert.NoError(t, f.coordinator.Track(id, data, fresh))
	}
	require.NoError(t, data.SetAmplitude(2))

	_, err = f.coordinator.Tick(context.Background())
	assert.ErrorIs(t, err, ErrUnknownEntity)
	assert.Equal(t, StateStale, f.coordinator.State(id))

	// the re-tracked map still gets its own handles written
	report, err := f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, report.Regenerated)
	assert.Equal(t, StatePublished, f.coordinator.State(id))

	geometry, _, err := store.Load(fresh)
	require.NoError(t, err)
	assert.Equal(t, 16, geometry.VertexCount())
}

func TestTickIsNotReentrant(t *testing.T) {
	f := newFixture(t, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	f.gen.hook = func(call int32, _ mapdata.Parameters) error {
		if call == 2 {
			close(started)
			<-release
		}
		return nil
	}
	data, _ := f.provisioner.MustProvision(context.Background(), uuid.New(), flatParameters())
	require.NoError(t, data.SetAmplitude(1))

	done := make(chan error, 1)
	go func() {
		_, err := f.coordinator.Tick(context.Background())
		done <- err
	}()

	<-started
	_, err := f.coordinator.Tick(context.Background())
	assert.ErrorIs(t, err, ErrTickInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.EqualValues(t, 2, f.gen.calls.Load())
}

func TestManyMapsRegenerateIndependently(t *testing.T) {
	f := newFixture(t, nil, WithWorkers(3))
	ids := make([]uuid.UUID, 6)
	maps := make([]*mapdata.MapData, 6)
	for i := range ids {
		p := flatParameters()
		p.Seed = int64(i)
		ids[i] = uuid.New()
		maps[i], _ = f.provisioner.MustProvision(context.Background(), ids[i], p)
	}

	for i := 0; i < len(maps); i += 2 {
		require.NoError(t, maps[i].SetAmplitude(1))
	}

	report, err := f.coordinator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ids[0], ids[2], ids[4]}, report.Regenerated)
	assert.Equal(t, 3, report.Unchanged)
	assert.EqualValues(t, 9, f.gen.calls.Load())
}

func TestReadersNeverSeeMismatchedPair(t *testing.T) {
	f := newFixture(t, nil)
	p := flatParameters()
	p.Width, p.Height = 16, 16
	data, h := f.provisioner.MustProvision(context.Background(), uuid.New(), p)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			geometry, material, err := f.store.Load(h)
			if !assert.NoError(t, err) {
				return
			}
			lo, hi := geometry.Bounds()
			if !assert.Equal(t, material.MinHeight, lo.Y()) || !assert.Equal(t, material.MaxHeight, hi.Y()) {
				return
			}
		}
	}()

	for i := 1; i <= 20; i++ {
		require.NoError(t, data.Update(func(p *mapdata.Parameters) {
			p.Amplitude = float64(i)
			p.Seed = int64(i)
		}))
		_, err := f.coordinator.Tick(context.Background())
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

func TestRunTicksOnInterval(t *testing.T) {
	ticker := &manualTicker{ch: make(chan time.Time)}
	var requested time.Duration
	f := newFixture(t, nil,
		WithInterval(250*time.Millisecond),
		WithTicker(func(d time.Duration) Ticker {
			requested = d
			return ticker
		}),
	)
	data, _ := f.provisioner.MustProvision(context.Background(), uuid.New(), flatParameters())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.coordinator.Run(ctx) }()

	ticker.ch <- time.Now()
	ticker.ch <- time.Now()
	require.NoError(t, data.SetAmplitude(2))
	ticker.ch <- time.Now()
	// each send is received only after the previous tick returned
	ticker.ch <- time.Now()

	cancel()
	require.NoError(t, <-done)
	assert.True(t, ticker.stopped.Load())
	assert.Equal(t, 250*time.Millisecond, requested)
	assert.EqualValues(t, 2, f.gen.calls.Load())
	assert.GreaterOrEqual(t, f.coordinator.Stats().Ticks, uint64(3))
}

func TestRunRejectsNonPositiveInterval(t *testing.T) {
	f := newFixture(t, nil, WithInterval(0))
	assert.ErrorIs(t, f.coordinator.Run(context.Background()), ErrInvalidInterval)
}

func TestEventsAreEmitted(t *testing.T) {
	events := bus.New()
	var got []string
	var payloads []MapEvent
	for _, typ := range []string{EventProvisioned, EventPublished, EventFailed} {
		_, err := events.Subscribe(typ, func(e bus.Event) error {
			got = append(got, e.Type())
			payloads = append(payloads, e.Data().(MapEvent))
			return nil
		})
		require.NoError(t, err)
	}

	store := &flakyStore{AssetStore: NewAssetStore()}
	f := newFixture(t, store, WithEventBus(events))
	id := uuid.New()
	data, _ := f.provisioner.MustProvision(context.Background(), id, flatParameters())

	store.failures.Store(1)
	require.NoError(t, data.SetAmplitude(2))
	_, _ = f.coordinator.Tick(context.Background())
	_, _ = f.coordinator.Tick(context.Background())

	assert.Equal(t, []string{EventProvisioned, EventFailed, EventPublished}, got)
	require.Len(t, payloads, 3)
	assert.Equal(t, id, payloads[0].ID)
	assert.EqualValues(t, 1, payloads[0].Generation)
	assert.Equal(t, 18, payloads[0].Triangles)
	assert.ErrorIs(t, payloads[1].Err, ErrPublishFailure)
	assert.EqualValues(t, 2, payloads[2].Generation)
	assert.Equal(t, data.Version(), payloads[2].Version)
}
