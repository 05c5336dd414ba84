package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/mapgen/internal/config"
	"github.com/zeusync/mapgen/internal/core/events/bus"
	"github.com/zeusync/mapgen/internal/core/observability/log"
	"github.com/zeusync/mapgen/internal/core/regen"
	"github.com/zeusync/mapgen/internal/injector"
	"github.com/zeusync/mapgen/pkg/concurrent"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "mapgen:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	app := injector.InitializeApp(cfg)
	defer func() { _ = app.Logger.Sync() }()
	logger := app.Logger.Named("mapgen")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	maps := make([]*mapEntity, len(cfg.Maps))
	for i, mc := range cfg.Maps {
		maps[i] = &mapEntity{
			name:      mc.Name,
			id:        uuid.New(),
			initial:   mc.Parameters,
			placement: mgl32.Vec3(mc.Placement),
		}
	}
	err := concurrent.ForEach(ctx, maps, cfg.Workers, func(ctx context.Context, m *mapEntity) error {
		data, h, err := app.Provisioner.Provision(ctx, m.id, m.initial)
		if err != nil {
			return fmt.Errorf("provision %q: %w", m.name, err)
		}
		m.data, m.handles = data, h
		return nil
	})
	if err != nil {
		return err
	}

	if _, err = app.Events.Subscribe(regen.EventPublished, republishedLogger(logger, maps)); err != nil {
		return err
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stopCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.Coordinator.Run(gctx) })
	if cfg.Driver.Every > 0 {
		d, err := newDriver(cfg.Driver, logger, maps)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		g.Go(func() error { return d.run(gctx) })
	}

	logger.Info("mapgen running", log.Int("maps", len(maps)), log.Duration("interval", cfg.TickInterval))
	select {
	case sig := <-stopCh:
		logger.Info("shutting down", log.Stringer("signal", sig))
	case <-gctx.Done():
	}
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}

	printSummary(app, maps)
	return nil
}

// republishedLogger reports regenerated surfaces in world space.
func republishedLogger(logger log.Log, maps []*mapEntity) bus.EventHandler {
	byID := make(map[uuid.UUID]*mapEntity, len(maps))
	for _, m := range maps {
		byID[m.id] = m
	}
	return func(e bus.Event) error {
		ev, ok := e.Data().(regen.MapEvent)
		if !ok {
			return nil
		}
		m, ok := byID[ev.ID]
		if !ok {
			return nil
		}
		logger.Info("surface republished",
			log.String("map", m.name),
			log.Uint64("generation", ev.Generation),
			log.Int("triangles", ev.Triangles),
			log.Any("placement", m.placement),
		)
		return nil
	}
}

func printSummary(app *injector.App, maps []*mapEntity) {
	stats := app.Coordinator.Stats()
	fmt.Printf("ticks=%d generations=%d publishes=%d failures=%d\n",
		stats.Ticks, stats.Generations, stats.Publishes, stats.Failures)

	for _, m := range maps {
		geometry, material, err := app.Store.Load(m.handles)
		if err != nil {
			fmt.Printf("%-12s %s: %v\n", m.name, app.Coordinator.State(m.id), err)
			continue
		}
		lo, hi := geometry.Bounds()
		fmt.Printf("%-12s %-9s revision=%d vertices=%d triangles=%d height=[%.2f, %.2f] world=%v..%v\n",
			m.name,
			app.Coordinator.State(m.id),
			m.data.Revision(),
			geometry.VertexCount(),
			geometry.TriangleCount(),
			material.MinHeight,
			material.MaxHeight,
			lo.Add(m.placement),
			hi.Add(m.placement),
		)
	}
}
