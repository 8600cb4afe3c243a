package events

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Metrics turns branch events into prometheus series.
type Metrics struct {
	BranchesCreated   prometheus.Counter
	MessagesAppended  *prometheus.CounterVec
	InferenceFailures prometheus.Counter
	InferenceDuration *prometheus.HistogramVec
}

// NewMetrics registers the forkchat series on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BranchesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "forkchat_branches_created_total",
			Help: "Total number of branches created",
		}),
		MessagesAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "forkchat_messages_appended_total",
			Help: "Total number of messages appended to branch histories",
		}, []string{"role"}),
		InferenceFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "forkchat_inference_failures_total",
			Help: "Total number of failed model invocations",
		}),
		InferenceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forkchat_inference_duration_seconds",
			Help:    "Duration of model invocations",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Observe(e Event) {
	switch e.Type {
	case EventTypeBranchCreated:
		m.BranchesCreated.Inc()
	case EventTypeMessageAppended:
		m.MessagesAppended.WithLabelValues(string(e.Role)).Inc()
	case EventTypeInferenceCompleted:
		m.InferenceDuration.WithLabelValues("success").Observe(e.Duration.Seconds())
	case EventTypeInferenceFailed:
		m.InferenceFailures.Inc()
		m.InferenceDuration.WithLabelValues("failure").Observe(e.Duration.Seconds())
	}
}

// Handle is a watermill handler feeding Observe. Unparseable payloads are dropped.
func (m *Metrics) Handle(msg *message.Message) error {
	e, err := NewEventFromJson(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping unparseable event")
		return nil
	}
	m.Observe(e)
	return nil
}
