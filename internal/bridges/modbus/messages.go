package modbus

import (
	"time"

	"github.com/nerrad567/pm8sim/internal/device"
)

// HealthStatus represents the operational status of the simulator.
type HealthStatus string

const (
	// HealthHealthy indicates the serial port is open and MQTT is connected.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the simulator is running with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the simulator is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the simulator is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the simulator's operational status.
// Topic: pm8sim/{device_id}/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	DeviceID      string            `json:"device_id"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Serial        *SerialStatus     `json:"serial,omitempty"`
	Statistics    *ServerStatistics `json:"statistics,omitempty"`

	// Reason explains the status (especially for degraded).
	Reason string `json:"reason,omitempty"`
}

// SerialStatus describes the RTU link.
type SerialStatus struct {
	Port      string `json:"port"`
	BaudRate  int    `json:"baud_rate"`
	Listening bool   `json:"listening"`
}

// ServerStatistics contains request counters.
type ServerStatistics struct {
	device.Stats
	Exceptions uint64 `json:"exceptions"`
	BadFrames  uint64 `json:"bad_frames"`
}

// StateMessage carries a snapshot of the simulated device.
// Topic: pm8sim/{device_id}/state
// QoS: configured, Retained: Yes
type StateMessage struct {
	DeviceID  string        `json:"device_id"`
	Timestamp time.Time     `json:"timestamp"`
	State     device.Values `json:"state"`
}

// SetpointCommand is accepted on pm8sim/{device_id}/command/setpoint.
//
//	{"setpoint": 65.0}
type SetpointCommand struct {
	Setpoint *float64 `json:"setpoint"`
}

// NewHealthMessage builds a health message from server counters.
func NewHealthMessage(deviceID, version string, status HealthStatus, srv *Server, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		DeviceID:      deviceID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
	}
	if srv != nil {
		msg.Serial = &SerialStatus{
			Port:      srv.Port(),
			BaudRate:  srv.BaudRate(),
			Listening: srv.Listening(),
		}
		msg.Statistics = &ServerStatistics{
			Stats:      srv.Handler().Stats(),
			Exceptions: srv.Exceptions(),
			BadFrames:  srv.BadFrames(),
		}
	}
	return msg
}

// NewStateMessage builds a state message for the given snapshot.
func NewStateMessage(deviceID string, v device.Values) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		State:     v,
	}
}
