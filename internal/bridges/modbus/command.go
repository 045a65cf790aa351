package modbus

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/pm8sim/internal/device"
)

// SetpointCommandHandler returns an MQTT message handler that applies
// setpoint commands as a write to Setpoint 1.
//
// The write goes through the same handler path as a Modbus write, so it is
// logged and counted the same way.
func SetpointCommandHandler(h *device.Handler) func(topic string, payload []byte) error {
	return func(_ string, payload []byte) error {
		var cmd SetpointCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("decoding setpoint command: %w", err)
		}
		if cmd.Setpoint == nil {
			return fmt.Errorf("%w: missing setpoint", ErrInvalidSetpoint)
		}
		word, ok := device.ScaledWord(*cmd.Setpoint)
		if !ok {
			return fmt.Errorf("%w: %v outside 0..%.1f", ErrInvalidSetpoint, *cmd.Setpoint, device.MaxScaled)
		}

		_, err := h.Handle(device.Request{
			Op:      device.OpWriteSingle,
			Address: device.AddrSetpoint1,
			Words:   []uint16{word},
		})
		return err
	}
}
