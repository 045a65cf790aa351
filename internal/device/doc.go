// Package device models the simulated PM8 thermal controller.
//
// It owns the only shared mutable data in the simulator (the process value,
// setpoint and ambient reference) and everything that touches it:
//
//   - State: the lock-guarded container for the three values
//   - Updater: the periodic physics loop (fast heating, slow passive cooling)
//   - RegisterMap: the static address table with aliased encodings
//   - Handler: the per-request entry point used by the Modbus transport
//
// # Architecture
//
//	┌────────────────────┐        ┌──────────────────────────────┐
//	│  Updater (tick)    │───────▶│            State             │
//	└────────────────────┘  Do()  │  pv, sp, ambient  (mutex)    │
//	                              └──────────────▲───────────────┘
//	┌────────────────────┐                       │ Do()
//	│ bridges/modbus     │──Handle()──▶ Handler ─┘──▶ RegisterMap
//	│ (mbserver RTU)     │
//	└────────────────────┘
//
// The updater and the handler never talk to each other. Every access goes
// through State.Do, which holds the lock for the whole read-modify-write so a
// two-word float read always sees one consistent value.
//
// # Register Map
//
//	Address  Quantity        Encoding
//	100      process value   scaled ×10   (legacy)
//	7101     process value   scaled ×10
//	300      setpoint        scaled ×10   (legacy, writable)
//	2322     setpoint        scaled ×10   (writable)
//	360      process value   float32 high word
//	361      process value   float32 low word
//
// The map is permissive: unmapped addresses read as zero and ignore writes.
// The only error in the package is ErrUnsupportedOperation.
//
// # Usage
//
//	state := device.NewState(device.Values{ProcessValue: 22.1, Setpoint: 50, Ambient: 22})
//	updater := device.NewUpdater(state, device.UpdaterConfig{})
//	go updater.Run(ctx)
//
//	handler := device.NewHandler(state, device.DefaultRegisterMap())
//	resp, err := handler.Handle(device.Request{Op: device.OpReadHolding, Address: 360, Count: 2})
package device
