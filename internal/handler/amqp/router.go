package amqp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/signalmesh/notify-relay-service/internal/adapter/pubsub"
	"github.com/signalmesh/notify-relay-service/internal/service"
)

const (
	// ------------------- TOPICS (ROUTING KEYS) -----------------
	TopicMessageQueued = "notify.message.queued.v1"

	// ------------------- QUEUES (CONSUMERS) --------------------
	IngestProcessorQueue = "notify-relay.ingest-processor.v1"
	IngestPoisonTopic    = "notify-relay.ingest-processor.v1.poison"
)

type MessageHandler struct {
	ingest     service.Ingestor
	logger     *slog.Logger
	dispatcher pubsub.Dispatcher
}

func NewMessageHandler(ingest service.Ingestor, logger *slog.Logger, dispatcher pubsub.Dispatcher) *MessageHandler {
	return &MessageHandler{ingest, logger.With("component", "amqp"), dispatcher}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	return message.NewRouter(message.RouterConfig{}, logger)
}

// RegisterHandlers wires the consumer pipeline. Add new bus listeners to the
// table below.
func (h *MessageHandler) RegisterHandlers(router *message.Router, sub message.Subscriber) error {
	poison, err := middleware.PoisonQueue(h.dispatcher.Publisher(), IngestPoisonTopic)
	if err != nil {
		return fmt.Errorf("poison queue setup: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{"ON_MSG_QUEUED", TopicMessageQueued, Bind(h, h.OnMessageQueuedV1)},
	}

	for _, c := range configs {
		router.AddNoPublisherHandler(c.name, c.topic, sub, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			NewRetryMiddleware().Middleware,
			poison,
			middleware.NewThrottle(100, time.Second).Middleware,
			middleware.Timeout(time.Second*30),
		)
	}

	h.logger.Info("amqp pipeline ready", "queue", IngestProcessorQueue)
	return nil
}
