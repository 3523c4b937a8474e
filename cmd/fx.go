package cmd

import (
	"github.com/signalmesh/notify-relay-service/config"
	"github.com/signalmesh/notify-relay-service/internal/domain/registry"
	amqphandler "github.com/signalmesh/notify-relay-service/internal/handler/amqp"
	httphandler "github.com/signalmesh/notify-relay-service/internal/handler/http"
	"github.com/signalmesh/notify-relay-service/internal/pipeline"
	"github.com/signalmesh/notify-relay-service/internal/service"
	"github.com/signalmesh/notify-relay-service/internal/store"
	"go.uber.org/fx"
)

func NewApp(cfg *config.Config, configPath string) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			ProvideWatermillLogger,
			ProvideBus,
			ProvidePublisher,
			ProvideSubscriber,
			ProvideDispatcher,
			ProvideSequencer,
			ProvideMetrics,
		),
		fx.Invoke(ProvideConfigWatcher(configPath)),
		registry.Module,
		pipeline.Module,
		store.Module,
		service.Module,
		amqphandler.Module,
		httphandler.Module,
	)
}
