package service

import (
	"context"
	"log/slog"

	"github.com/signalmesh/notify-relay-service/config"
	pubsubadapter "github.com/signalmesh/notify-relay-service/internal/adapter/pubsub"
	"github.com/signalmesh/notify-relay-service/internal/domain/registry"
	"github.com/signalmesh/notify-relay-service/internal/metrics"
	"github.com/signalmesh/notify-relay-service/internal/pipeline"
	"github.com/signalmesh/notify-relay-service/internal/store"
	"go.uber.org/fx"
)

var Module = fx.Module("service",
	fx.Provide(
		config.NewLimits,

		func(d pubsubadapter.Dispatcher) DeadLetterer { return d },

		func(hub registry.Hubber, cfg *config.Config) *DeliveryService {
			return NewDeliveryService(hub, cfg.Delivery.SessionBuffer)
		},
		func(s *DeliveryService) Deliverer { return s },

		func(hub registry.Hubber, pending store.PendingStore, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
			return NewOrchestrator(hub, pending, cfg.Delivery.PushTimeout, logger, m)
		},

		fx.Annotate(
			NewIngestService,
			fx.As(new(Ingestor)),
		),

		func(cfg *config.Config) TokenIssuer {
			return NewTokenService(cfg.Token.TTL, cfg.Token.CacheSize)
		},

		func(hub registry.Hubber, pending store.PendingStore, lanes *pipeline.Lanes, orch *Orchestrator, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ReplayDriver {
			return NewReplayDriver(hub.Changes(), pending, lanes, orch, cfg.Delivery.ReplayPageSize, logger, m)
		},
	),

	fx.Invoke(func(lc fx.Lifecycle, driver *ReplayDriver) {
		runCtx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go driver.Run(runCtx)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				cancel()
				return nil
			},
		})
	}),
)
