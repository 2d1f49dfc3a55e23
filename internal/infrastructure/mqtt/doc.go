// Package mqtt provides MQTT client connectivity for Helioscope.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Helioscope uses MQTT as the event and command surface connecting the
// core to observatory UIs and external consumers. The broker (Mosquitto)
// decouples the core from whatever client happens to be watching.
//
//	Helioscope Core ↔ MQTT Broker ↔ UI / dashboards / scripts
//
// Status events (mount position, guiding state, overlay frames) flow
// outward on helioscope/event/+; commands flow inward on
// helioscope/command/<subsystem>/<action>.
//
// # Security Considerations
//
//   - TLS is required for remote deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to all inbound commands
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a status event
//	topic := mqtt.Topics{}.Event("mount_status")
//	client.Publish(topic, []byte(`{"status":"Idle"}`), 1, false)
package mqtt
