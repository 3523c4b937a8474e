package cmd

import (
	"log/slog"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/signalmesh/notify-relay-service/config"
	infrapubsub "github.com/signalmesh/notify-relay-service/infra/pubsub"
	pubsubadapter "github.com/signalmesh/notify-relay-service/internal/adapter/pubsub"
	"github.com/signalmesh/notify-relay-service/internal/metrics"
	"github.com/signalmesh/notify-relay-service/internal/sequence"
)

func ProvideLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})).With("service", ServiceName)

	slog.SetDefault(logger)
	return logger
}

func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger)
}

func ProvideBus(cfg *config.Config, logger watermill.LoggerAdapter) (*infrapubsub.Bus, error) {
	return infrapubsub.NewBus(cfg, logger)
}

func ProvidePublisher(bus *infrapubsub.Bus) message.Publisher {
	return bus.Publisher
}

func ProvideSubscriber(bus *infrapubsub.Bus) message.Subscriber {
	return bus.Subscriber
}

func ProvideDispatcher(pub message.Publisher) pubsubadapter.Dispatcher {
	return pubsubadapter.NewDispatcher(pub)
}

func ProvideSequencer(cfg *config.Config) (*sequence.Sequencer, error) {
	return sequence.New(cfg.Sequencer.MachineID)
}

func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}

// ProvideConfigWatcher arms file-driven hot reload of the dynamic limits.
func ProvideConfigWatcher(path string) func(limits *config.Limits, logger *slog.Logger) error {
	return func(limits *config.Limits, logger *slog.Logger) error {
		return config.Watch(path, limits, logger)
	}
}
