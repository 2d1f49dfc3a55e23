// Package commands routes inbound MQTT commands to device controllers.
//
// The UI publishes commands on helioscope/command/<subsystem>/<action>
// with a JSON payload; the dispatcher parses the topic, decodes the
// payload, and calls the matching controller method.
//
//	helioscope/command/mount/slew     {"direction":"north","rate":"slow"}
//	helioscope/command/mount/nudge    {"direction":"west","duration_ms":200}
//	helioscope/command/mount/goto     {"ra":13.5,"dec":-5.25}
//	helioscope/command/mount/stop     {}
//	helioscope/command/mount/park     {}
//	helioscope/command/mount/unpark   {}
//	helioscope/command/dome/open      {}
//	helioscope/command/dome/close     {}
//	helioscope/command/etalon/set     {"index":1,"value":90}
//	helioscope/command/focuser/move   {"direction":"in","speed":50}
//	helioscope/command/focuser/stop   {}
//	helioscope/command/guider/start   {}
//	helioscope/command/guider/stop    {}
//	helioscope/command/tracker/start  {}
//	helioscope/command/tracker/stop   {}
//
// Handle is wired as the message handler for the command wildcard
// subscription. Errors are returned to the MQTT layer, which logs
// them; commands never crash the dispatcher.
package commands
