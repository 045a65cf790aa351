// Package mqtt provides MQTT client connectivity for pm8sim.
//
// This package manages:
//   - Connection to an MQTT broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// MQTT is an optional telemetry bus. The simulator publishes its health and
// device state and accepts setpoint commands; the poller publishes each
// reading it takes.
//
//	pm8sim serve ──state/health──► Broker ◄──reading── pm8sim poll
//	             ◄─setpoint cmd───
//
// # Security Considerations
//
//   - Use TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Credentials are validated against broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceReading("pm8-01")
//	err = client.PublishDefault(topic, payload)
package mqtt
