package mqtt

import "fmt"

// TopicPrefix is the root of every pm8sim topic.
//
// Device topics use the scheme: pm8sim/{device_id}/{category}
const TopicPrefix = "pm8sim"

// Topics provides builders for pm8sim MQTT topics.
// Using these helpers keeps topic naming consistent between the simulator,
// the poller and any external subscriber.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("pm8-01")
//	// Returns: "pm8sim/pm8-01/state"
type Topics struct{}

// DeviceState returns the topic for the simulator's published device state.
//
// Example: pm8sim/pm8-01/state
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefix, deviceID)
}

// DeviceHealth returns the topic for simulator health status.
//
// Example: pm8sim/pm8-01/health
func (Topics) DeviceHealth(deviceID string) string {
	return fmt.Sprintf("%s/%s/health", TopicPrefix, deviceID)
}

// DeviceReading returns the topic for readings produced by the poller.
//
// Example: pm8sim/pm8-01/reading
func (Topics) DeviceReading(deviceID string) string {
	return fmt.Sprintf("%s/%s/reading", TopicPrefix, deviceID)
}

// DeviceSetpointCommand returns the topic the simulator accepts setpoint
// commands on.
//
// Example: pm8sim/pm8-01/command/setpoint
func (Topics) DeviceSetpointCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/command/setpoint", TopicPrefix, deviceID)
}

// ClientStatus returns the online/offline topic for one MQTT client.
// The broker publishes the client's LWT here.
//
// Example: pm8sim/status/pm8sim-serve
func (Topics) ClientStatus(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, clientID)
}

// AllDeviceReadings returns a pattern matching every device's readings.
//
// Pattern: pm8sim/+/reading
func (Topics) AllDeviceReadings() string {
	return fmt.Sprintf("%s/+/reading", TopicPrefix)
}

// AllTopics returns a pattern matching all pm8sim topics.
//
// Pattern: pm8sim/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
