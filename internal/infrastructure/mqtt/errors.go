package mqtt

import "errors"

// Connection state.
var (
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")
	ErrNotConnected     = errors.New("mqtt: not connected to broker")
)

// Argument checks, returned before anything reaches the broker.
var (
	ErrInvalidTopic = errors.New("mqtt: empty topic")
	ErrInvalidQoS   = errors.New("mqtt: QoS must be 0, 1 or 2")
)

// Broker acknowledgements. Each wraps the paho error, or ErrTimeout when
// no acknowledgement arrived in time.
var (
	ErrPublishFailed     = errors.New("mqtt: publish not acknowledged")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe not acknowledged")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe not acknowledged")
	ErrTimeout           = errors.New("mqtt: timed out waiting for broker")
)
