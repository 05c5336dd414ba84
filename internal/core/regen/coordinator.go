// Package regen keeps published map surfaces in sync with their parameters.
// A Coordinator polls tracked maps on a fixed interval, regenerates the ones
// whose parameters changed and republishes geometry and material together
// under the handles allocated at provisioning.
package regen

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/mapgen/internal/core/events/bus"
	"github.com/zeusync/mapgen/internal/core/mapdata"
	"github.com/zeusync/mapgen/internal/core/observability/log"
	"github.com/zeusync/mapgen/internal/core/terrain"
	"github.com/zeusync/mapgen/pkg/concurrent"
)

// DefaultInterval is the polling cadence (10 Hz).
const DefaultInterval = 100 * time.Millisecond

// Ticker abstracts time.Ticker so Run can be driven by tests.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type Option func(c *Coordinator)

func WithLogger(l log.Log) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithEventBus(b bus.EventBus) Option {
	return func(c *Coordinator) { c.events = b }
}

// WithGenerator replaces the generation function, e.g. with an instrumented one.
func WithGenerator(fn terrain.Func) Option {
	return func(c *Coordinator) { c.generate = fn }
}

// WithWorkers bounds how many maps are generated in parallel within one tick.
func WithWorkers(n int) Option {
	return func(c *Coordinator) { c.workers = n }
}

func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.interval = d }
}

func WithTicker(factory func(d time.Duration) Ticker) Option {
	return func(c *Coordinator) { c.newTicker = factory }
}

type entry struct {
	id       uuid.UUID
	data     *mapdata.MapData
	handles  Handles
	state    State
	failures int
	lastErr  error
	// generation counts successful publishes, the provisioning one included.
	generation uint64
}

// Stats are cumulative counters since the coordinator was built.
type Stats struct {
	Ticks       uint64
	Generations uint64
	Publishes   uint64
	Failures    uint64
	Tracked     int
}

// TickFailure names one map that stayed stale on a tick.
type TickFailure struct {
	ID  uuid.UUID
	Err error
}

// TickReport summarizes one tick.
type TickReport struct {
	Regenerated []uuid.UUID
	Failed      []TickFailure
	Unchanged   int
}

// Err joins the failures of the tick.
func (r TickReport) Err() error {
	var all error
	for _, f := range r.Failed {
		all = errors.Join(all, fmt.Errorf("map %s: %w", f.ID, f.Err))
	}
	return all
}

// Coordinator owns the regeneration schedule of every tracked map.
type Coordinator struct {
	store     Store
	generate  terrain.Func
	tracker   *mapdata.Tracker[uuid.UUID]
	logger    log.Log
	events    bus.EventBus
	workers   int
	interval  time.Duration
	newTicker func(d time.Duration) Ticker

	mx      sync.RWMutex
	entries map[uuid.UUID]*entry
	order   []uuid.UUID
	// reserved holds ids being provisioned; they are not tracked yet
	reserved map[uuid.UUID]struct{}

	tickMx sync.Mutex

	ticks       atomic.Uint64
	generations atomic.Uint64
	publishes   atomic.Uint64
	failures    atomic.Uint64
}

func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		generate:  terrain.NewGenerator().Generate,
		tracker:   mapdata.NewTracker[uuid.UUID](),
		logger:    log.NewNop(),
		workers:   runtime.GOMAXPROCS(0),
		interval:  DefaultInterval,
		newTicker: newTimeTicker,
		entries:   make(map[uuid.UUID]*entry),
		reserved:  make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("regen")
	return c
}

// Track registers a map whose content the host already allocated. Nothing is
// known about what was published under h, so the map starts stale and the
// next tick regenerates it.
func (c *Coordinator) Track(id uuid.UUID, data *mapdata.MapData, h Handles) error {
	return c.add(&entry{id: id, data: data, handles: h, state: StateStale})
}

// reserve claims id for provisioning so no other Track or Provision can take
// it before trackPublished or unreserve.
func (c *Coordinator) reserve(id uuid.UUID) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.claimableLocked(id); err != nil {
		return err
	}
	c.reserved[id] = struct{}{}
	return nil
}

func (c *Coordinator) unreserve(id uuid.UUID) {
	c.mx.Lock()
	delete(c.reserved, id)
	c.mx.Unlock()
}

// trackPublished turns the reservation of id into an entry whose content for
// version is already published.
func (c *Coordinator) trackPublished(id uuid.UUID, data *mapdata.MapData, h Handles, version uint64) {
	c.mx.Lock()
	defer c.mx.Unlock()
	delete(c.reserved, id)
	c.insertLocked(&entry{id: id, data: data, handles: h, state: StatePublished, generation: 1})
	c.tracker.Observe(id, version)
}

func (c *Coordinator) add(e *entry) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if err := c.claimableLocked(e.id); err != nil {
		return err
	}
	c.insertLocked(e)
	return nil
}

func (c *Coordinator) claimableLocked(id uuid.UUID) error {
	_, tracked := c.entries[id]
	_, reserved := c.reserved[id]
	if tracked || reserved {
		return fmt.Errorf("%w: %s", ErrAlreadyTracked, id)
	}
	return nil
}

func (c *Coordinator) insertLocked(e *entry) {
	c.entries[e.id] = e
	c.order = append(c.order, e.id)
}

// Untrack stops regenerating id. Its handles are left to the host.
func (c *Coordinator) Untrack(id uuid.UUID) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	if _, ok := c.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	delete(c.entries, id)
	for i, other := range c.order {
		if other == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	c.tracker.Forget(id)
	return nil
}

// State reports the publication state of id; unknown maps are unpublished.
func (c *Coordinator) State(id uuid.UUID) State {
	c.mx.RLock()
	defer c.mx.RUnlock()
	if e, ok := c.entries[id]; ok {
		return e.state
	}
	return StateUnpublished
}

func (c *Coordinator) Handles(id uuid.UUID) (Handles, error) {
	c.mx.RLock()
	defer c.mx.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return Handles{}, fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	return e.handles, nil
}

// LastError returns the error that kept id stale on its latest failed tick.
func (c *Coordinator) LastError(id uuid.UUID) error {
	c.mx.RLock()
	defer c.mx.RUnlock()
	if e, ok := c.entries[id]; ok {
		return e.lastErr
	}
	return nil
}

func (c *Coordinator) Stats() Stats {
	c.mx.RLock()
	tracked := len(c.entries)
	c.mx.RUnlock()
	return Stats{
		Ticks:       c.ticks.Load(),
		Generations: c.generations.Load(),
		Publishes:   c.publishes.Load(),
		Failures:    c.failures.Load(),
		Tracked:     tracked,
	}
}

// Run ticks every interval until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.interval <= 0 {
		return ErrInvalidInterval
	}

	ticker := c.newTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("regeneration loop started", log.Duration("interval", c.interval))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("regeneration loop stopped")
			return nil
		case <-ticker.C():
			if _, err := c.Tick(ctx); errors.Is(err, ErrTickInProgress) {
				c.logger.Debug("tick skipped", log.Error(err))
			}
		}
	}
}

type job struct {
	entry   *entry
	params  mapdata.Parameters
	version uint64
}

type output struct {
	geometry terrain.GeometryBuffer
	material terrain.MaterialParameters
}

// Tick checks every tracked map once, regenerates the changed ones and
// publishes the results. It is not reentrant. Failed maps stay stale and are
// retried on the next tick; the returned error joins their failures.
func (c *Coordinator) Tick(ctx context.Context) (TickReport, error) {
	if !c.tickMx.TryLock() {
		return TickReport{}, ErrTickInProgress
	}
	defer c.tickMx.Unlock()
	c.ticks.Add(1)

	var report TickReport
	jobs := c.collect(&report)
	if len(jobs) == 0 {
		return report, nil
	}

	outputs, errs := concurrent.Map(ctx, jobs, c.workers, func(ctx context.Context, j job) (output, error) {
		c.generations.Add(1)
		g, m, err := c.generate(ctx, j.params)
		return output{geometry: g, material: m}, err
	})

	for i, j := range jobs {
		err := errs[i]
		if err == nil {
			err = c.publish(j, outputs[i])
		}
		if err != nil {
			c.fail(j, err)
			report.Failed = append(report.Failed, TickFailure{ID: j.entry.id, Err: err})
			continue
		}
		report.Regenerated = append(report.Regenerated, j.entry.id)
	}

	return report, report.Err()
}

// collect runs the change check of every map and returns those to regenerate.
func (c *Coordinator) collect(report *TickReport) []job {
	c.mx.Lock()
	defer c.mx.Unlock()

	var jobs []job
	for _, id := range c.order {
		e := c.entries[id]
		params, version := e.data.Snapshot()

		if !c.tracker.Changed(id, version) {
			if e.state == StateStale {
				// edits reverted to what is already published
				e.state = StatePublished
				e.failures, e.lastErr = 0, nil
			}
			report.Unchanged++
			continue
		}

		e.state = StateStale
		jobs = append(jobs, job{entry: e, params: params, version: version})
	}
	return jobs
}

func (c *Coordinator) publish(j job, out output) error {
	if !c.isCurrent(j.entry) {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, j.entry.id)
	}

	if err := c.store.Replace(j.entry.handles, out.geometry, out.material); err != nil {
		if !errors.Is(err, ErrPublishFailure) {
			err = fmt.Errorf("%w: %w", ErrPublishFailure, err)
		}
		return err
	}

	c.mx.Lock()
	e := j.entry
	// Untrack may have run during Replace; a forgotten id must stay forgotten
	if c.entries[e.id] != e {
		c.mx.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEntity, e.id)
	}
	e.state = StatePublished
	e.failures, e.lastErr = 0, nil
	e.generation++
	generation := e.generation
	c.tracker.Observe(e.id, j.version)
	c.mx.Unlock()

	c.publishes.Add(1)

	c.logger.Debug("map regenerated",
		log.Stringer("map", e.id),
		log.Uint64("version", j.version),
		log.Uint64("generation", generation),
		log.Int("vertices", out.geometry.VertexCount()),
		log.Int("triangles", out.geometry.TriangleCount()),
	)
	c.emit(EventPublished, MapEvent{
		ID:         e.id,
		Version:    j.version,
		Generation: generation,
		Vertices:   out.geometry.VertexCount(),
		Triangles:  out.geometry.TriangleCount(),
	})
	return nil
}

func (c *Coordinator) isCurrent(e *entry) bool {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.entries[e.id] == e
}

func (c *Coordinator) fail(j job, err error) {
	c.failures.Add(1)

	c.mx.Lock()
	e := j.entry
	e.failures++
	e.lastErr = err
	attempts := e.failures
	c.mx.Unlock()

	fields := []log.Field{
		log.Stringer("map", e.id),
		log.Uint64("version", j.version),
		log.Int("attempts", attempts),
		log.Error(err),
	}
	switch {
	case errors.Is(err, terrain.ErrGenerationFailure):
		c.logger.Error("map generation failed", fields...)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.logger.Debug("map generation interrupted", fields...)
	case errors.Is(err, ErrUnknownEntity):
		c.logger.Debug("map untracked during regeneration", fields...)
	default:
		c.logger.Warn("map left stale, retrying next tick", fields...)
	}
	c.emit(EventFailed, MapEvent{ID: e.id, Version: j.version, Err: err})
}

func (c *Coordinator) emit(eventType string, payload MapEvent) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(bus.NewEvent(eventType, eventSource, payload, nil)); err != nil {
		c.logger.Warn("map event handler failed", log.String("event", eventType), log.Error(err))
	}
}
