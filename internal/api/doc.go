// Package api serves the simulator's status over HTTP and WebSocket.
//
// Endpoints (all under /api/v1):
//
//	GET  /health     liveness, version and serial link status
//	GET  /state      current device values and request counters
//	GET  /registers  the register map with the word each address reads as now
//	PUT  /setpoint   {"setpoint": 65.0}, applied as a write to Setpoint 1
//	GET  /ws         WebSocket stream (device.state, opt-in device.health)
//
// The browser status page is served under /panel/ and / redirects there.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
