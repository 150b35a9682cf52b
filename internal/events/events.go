// Package events carries the dataset-changed signal between the pending
// queue and the classifier lifecycle manager. The commit path publishes,
// the lifecycle manager subscribes; neither knows about the other.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/pixsort/pixsort-go/internal/logging"
)

// TopicDatasetChanged carries DatasetChanged payloads.
const TopicDatasetChanged = "dataset.changed"

// DatasetChanged is published after a commit moved at least one image.
type DatasetChanged struct {
	MovedImages []string  `json:"moved_images"`
	Targets     []string  `json:"targets"`
	OccurredAt  time.Time `json:"occurred_at"`
}

var (
	serviceLogger *slog.Logger
	loggerOnce    sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logging.ForService("events")
	})
	return serviceLogger
}

// Bus is an in-process pub/sub carrier for dataset events.
type Bus struct {
	pubSub *gochannel.GoChannel
}

// NewBus creates an in-memory event bus.
func NewBus() *Bus {
	return &Bus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{},
			watermill.NopLogger{},
		),
	}
}

// PublishDatasetChanged emits a dataset-changed event.
func (b *Bus) PublishDatasetChanged(event DatasetChanged) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	return b.pubSub.Publish(TopicDatasetChanged, msg)
}

// SubscribeDatasetChanged invokes handler for every dataset-changed event
// until ctx is cancelled. Handlers run on a dedicated goroutine; events are
// acknowledged regardless of handler outcome since retraining failures are
// surfaced to the caller elsewhere.
func (b *Bus) SubscribeDatasetChanged(ctx context.Context, handler func(DatasetChanged)) error {
	messages, err := b.pubSub.Subscribe(ctx, TopicDatasetChanged)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var event DatasetChanged
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				getLogger().Error("dropping malformed dataset event", "error", err)
				msg.Ack()
				continue
			}
			handler(event)
			msg.Ack()
		}
	}()

	return nil
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}
