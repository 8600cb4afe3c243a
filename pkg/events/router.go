package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultTopic = "forkchat.events"

// EventRouter is an in-process watermill pubsub with a router dispatching branch
// events to handlers. Handlers run in the router's goroutines, never in the caller of
// PublishEvent.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	topic      string
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

// WithVerbose routes watermill's internal logging through the global zerolog logger.
func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		if verbose {
			r.logger = NewWatermillLogger(log.Logger)
		}
	}
}

func WithTopic(topic string) EventRouterOption {
	return func(r *EventRouter) {
		r.topic = topic
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
		topic:  DefaultTopic,
	}
	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "could not create event router")
	}
	ret.router = router

	return ret, nil
}

// Sink returns a Sink publishing on the router's topic.
func (e *EventRouter) Sink() *WatermillSink {
	return NewWatermillSink(e.Publisher, e.topic)
}

func (e *EventRouter) Topic() string {
	return e.topic
}

// AddHandler subscribes f to the router's topic. Publishing blocks until handlers ack,
// so f should return nil for anything it cannot process rather than have it redelivered.
func (e *EventRouter) AddHandler(name string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, e.topic, e.Subscriber, f)
}

// Run blocks until ctx is cancelled or the router is closed.
func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) IsRunning() bool {
	return e.router.IsRunning()
}

func (e *EventRouter) Close() error {
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
	}
	if err := e.router.Close(); err != nil {
		return errors.Wrap(err, "could not close event router")
	}
	return nil
}

// NewLoggingHandler logs every event with the given logger.
func NewLoggingHandler(logger zerolog.Logger) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping unparseable event")
			return nil
		}

		var ev *zerolog.Event
		if e.Type == EventTypeInferenceFailed {
			ev = logger.Warn()
		} else {
			ev = logger.Debug()
		}
		ev = ev.Str("event", string(e.Type)).Str("branch", e.BranchID)
		if e.ParentID != "" {
			ev = ev.Str("parent", e.ParentID)
		}
		if e.Role != "" {
			ev = ev.Str("role", string(e.Role)).Int("sequence", e.Sequence)
		}
		if e.Duration > 0 {
			ev = ev.Dur("duration", e.Duration)
		}
		if e.Error != "" {
			ev = ev.Str("error", e.Error)
		}
		ev.Msg("branch event")
		return nil
	}
}
