// Package pubsub builds the message-bus endpoints the service runs on:
// durable AMQP in production, the in-process gochannel bus for local runs
// and tests.
package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/signalmesh/notify-relay-service/config"
)

// Bus bundles both directions of one transport.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// NewBus selects the transport from config.
func NewBus(cfg *config.Config, logger watermill.LoggerAdapter) (*Bus, error) {
	if cfg.AMQP.Enabled {
		return newAMQPBus(cfg.AMQP.URL, logger)
	}
	return newChannelBus(logger), nil
}

func newAMQPBus(url string, logger watermill.LoggerAdapter) (*Bus, error) {
	amqpConfig := amqp.NewDurablePubSubConfig(
		url,
		amqp.GenerateQueueNameTopicNameWithSuffix("notify-relay"),
	)

	pub, err := amqp.NewPublisher(amqpConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: amqp publisher: %w", err)
	}
	sub, err := amqp.NewSubscriber(amqpConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: amqp subscriber: %w", err)
	}
	return &Bus{Publisher: pub, Subscriber: sub}, nil
}

func newChannelBus(logger watermill.LoggerAdapter) *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, logger)
	return &Bus{Publisher: ch, Subscriber: ch}
}
