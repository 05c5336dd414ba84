package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/mapgen/internal/config"
	"github.com/zeusync/mapgen/internal/core/events/bus"
	"github.com/zeusync/mapgen/internal/core/observability/log"
	"github.com/zeusync/mapgen/internal/core/regen"
)

// App holds the wired components of the mapgen host.
type App struct {
	Config      *config.Config
	Logger      *log.Logger
	Events      bus.EventBus
	Store       *regen.AssetStore
	Coordinator *regen.Coordinator
	Provisioner *regen.Provisioner
}

var ProviderSet = wire.NewSet(
	ProvideLogger,
	bus.New,
	regen.NewAssetStore,
	ProvideCoordinator,
	regen.NewProvisioner,
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg *config.Config) *log.Logger {
	return log.New(cfg.Level())
}

func ProvideCoordinator(cfg *config.Config, logger *log.Logger, events bus.EventBus, store *regen.AssetStore) *regen.Coordinator {
	return regen.NewCoordinator(store,
		regen.WithLogger(logger),
		regen.WithEventBus(events),
		regen.WithInterval(cfg.TickInterval),
		regen.WithWorkers(cfg.Workers),
	)
}
