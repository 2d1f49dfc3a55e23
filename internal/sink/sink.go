package sink

import (
	"encoding/json"

	"github.com/altair-obs/helioscope/internal/infrastructure/mqtt"
)

// retainedEvents are snapshot-type events whose last value is kept by
// the broker for late subscribers. Streams (overlay frames, log lines)
// are not retained.
var retainedEvents = map[string]bool{
	"mount_status":      true,
	"mount_coordinates": true,
	"actuator_state":    true,
	"guiding_status":    true,
	"nstep_feedback":    true,
}

// Publisher is the broker surface the sink needs. *mqtt.Client
// satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger receives diagnostic output from the sink.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

// MQTTSink publishes events to helioscope/event/<event> topics.
type MQTTSink struct {
	client Publisher
	topics mqtt.Topics
	qos    byte
	logger Logger
}

// NewMQTTSink creates a sink publishing through the given client.
// logger may be nil.
func NewMQTTSink(client Publisher, qos byte, logger Logger) *MQTTSink {
	return &MQTTSink{client: client, qos: qos, logger: logger}
}

// Publish JSON-encodes the payload and sends it to the event topic.
// Failures are logged and swallowed: a broker outage must not break
// the control loops publishing through this sink.
func (s *MQTTSink) Publish(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to encode event payload", "event", event, "error", err)
		}
		return
	}

	topic := s.topics.Event(event)
	if err := s.client.Publish(topic, data, s.qos, retainedEvents[event]); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to publish event", "event", event, "error", err)
		}
	}
}

// EventSink is the controller-facing publish interface.
type EventSink interface {
	Publish(event string, payload any)
}

// Fanout delivers every event to each composed sink in order.
type Fanout []EventSink

// Publish forwards the event to all sinks.
func (f Fanout) Publish(event string, payload any) {
	for _, s := range f {
		s.Publish(event, payload)
	}
}
