// Package modbus connects the simulated device to a Modbus RTU serial line.
//
// Server reads RTU frames off a goburrow/serial port, checks them with
// tbrandon/mbserver's frame codec and routes every function code through a
// device.Handler: read holding registers (3), write single register (6) and
// write multiple registers (16) are served; everything else is answered
// with Illegal Function. Bytes are collected until the length the function
// code implies, or until the line goes quiet for 3.5 character times.
//
// Client wraps goburrow/modbus for the polling side and speaks in register
// words instead of raw bytes.
//
// HealthReporter and SetpointCommandHandler tie the server to MQTT: health
// and state are published on pm8sim/{device_id}/health and /state, and
// setpoint commands arrive on pm8sim/{device_id}/command/setpoint.
package modbus
