package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/opflow/pkg/channels/gochannel"
	"github.com/dukex/opflow/pkg/channels/kafka"
	"github.com/dukex/opflow/pkg/eventbus"
)

// ErrUnsupportedEventBus is returned for an unknown event bus provider.
var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// NewEventBus creates the event bus for provider: "gochannel" for a single
// process, "kafka" with a comma separated broker list.
func NewEventBus(provider, brokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	adapter := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(adapter)
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, eventbus.WithLogger(logger)), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(adapter, kafka.Config{
			Brokers:       kafka.ParseBrokers(brokers),
			ConsumerGroup: "cg-opflow",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, eventbus.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, provider)
	}
}
