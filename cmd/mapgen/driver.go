package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/zeusync/mapgen/internal/config"
	"github.com/zeusync/mapgen/internal/core/mapdata"
	"github.com/zeusync/mapgen/internal/core/observability/log"
	"github.com/zeusync/mapgen/internal/core/regen"
)

type mapEntity struct {
	name      string
	id        uuid.UUID
	initial   mapdata.Parameters
	data      *mapdata.MapData
	handles   regen.Handles
	placement mgl32.Vec3
}

// sweep moves one numeric parameter of a map back and forth between its
// starting value and the configured maximum.
type sweep struct {
	entity    *mapEntity
	start     float64
	direction float64
}

// driver edits map parameters on its own schedule, the way an editor or
// gameplay system would, and leaves regeneration to the coordinator.
type driver struct {
	cfg    config.DriverConfig
	logger log.Log
	sweeps []*sweep
}

func newDriver(cfg config.DriverConfig, logger log.Log, maps []*mapEntity) (*driver, error) {
	d := &driver{cfg: cfg, logger: logger.Named("driver")}
	for _, m := range maps {
		v, err := m.data.Get(cfg.Parameter)
		if err != nil {
			return nil, err
		}
		start, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		d.sweeps = append(d.sweeps, &sweep{entity: m, start: start, direction: 1})
	}
	return d, nil
}

func (d *driver) run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, s := range d.sweeps {
				d.advance(s)
			}
		}
	}
}

func (d *driver) advance(s *sweep) {
	m := s.entity
	v, err := m.data.Get(d.cfg.Parameter)
	if err != nil {
		d.logger.Error("read parameter", log.String("map", m.name), log.Error(err))
		return
	}
	current, err := toFloat(v)
	if err != nil {
		d.logger.Error("read parameter", log.String("map", m.name), log.Error(err))
		return
	}

	next := current + s.direction*d.cfg.Step
	if d.cfg.Max != 0 {
		lo, hi := min(s.start, d.cfg.Max), max(s.start, d.cfg.Max)
		if next > hi || next < lo {
			s.direction = -s.direction
			next = current + s.direction*d.cfg.Step
		}
	}

	if err = m.data.Set(d.cfg.Parameter, next); err != nil {
		s.direction = -s.direction
		d.logger.Warn("parameter edit rejected",
			log.String("map", m.name),
			log.String("parameter", d.cfg.Parameter),
			log.Float64("value", next),
			log.Error(err),
		)
		return
	}
	d.logger.Debug("parameter edited",
		log.String("map", m.name),
		log.String("parameter", d.cfg.Parameter),
		log.Float64("value", next),
		log.Uint64("revision", m.data.Revision()),
	)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("parameter of type %T is not numeric", v)
	}
}
