package mqtt

import "fmt"

// Topic prefixes for the Helioscope MQTT surface.
//
// All topics use the flat scheme: helioscope/{category}/...
// The UI and any external consumers attach to the broker and speak
// these topics only; nothing else of the core is exposed.
const (
	// TopicPrefix is the base for all Helioscope topics.
	TopicPrefix = "helioscope"

	// TopicPrefixEvent is the base for status event topics.
	TopicPrefixEvent = "helioscope/event"

	// TopicPrefixCommand is the base for inbound command topics.
	TopicPrefixCommand = "helioscope/command"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "helioscope/system"
)

// Topics provides builders for Helioscope MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.Event("mount_status")
//	// Returns: "helioscope/event/mount_status"
type Topics struct{}

// Event returns the topic for a status event published by the core:
// mount_status, mount_coordinates, actuator_state, guiding_status,
// guiding_overlay, nstep_feedback, server_log.
//
// Example: helioscope/event/mount_status
func (Topics) Event(event string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvent, event)
}

// Command returns the topic for an inbound command to a subsystem.
//
// Example: helioscope/command/mount/slew
func (Topics) Command(subsystem, action string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixCommand, subsystem, action)
}

// SystemStatus returns the online/offline status topic. The payload is
// retained so late subscribers see the last known state.
//
// Example: helioscope/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllEvents returns a pattern matching every status event.
//
// Pattern: helioscope/event/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/+", TopicPrefixEvent)
}

// AllCommands returns a pattern matching every inbound command.
//
// Pattern: helioscope/command/+/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixCommand)
}

// SubsystemCommands returns a pattern matching all commands for one
// subsystem.
//
// Pattern: helioscope/command/mount/+
func (Topics) SubsystemCommands(subsystem string) string {
	return fmt.Sprintf("%s/%s/+", TopicPrefixCommand, subsystem)
}

// AllTopics returns a pattern matching all Helioscope topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: helioscope/#
func (Topics) AllTopics() string {
	return "helioscope/#"
}
