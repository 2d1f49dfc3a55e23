// Package sink publishes observatory events to the MQTT broker.
//
// Device controllers emit through a minimal Publish(event, payload)
// interface; this package carries those events onto the broker under
// helioscope/event/<event>, JSON-encoded. Snapshot events (mount
// status, actuator state) are published retained so a UI connecting
// mid-session immediately sees the current state.
//
// The Fanout type composes multiple sinks (broker, event history,
// telemetry) behind the same interface, so controllers stay unaware
// of where their events end up.
package sink
