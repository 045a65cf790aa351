// Package panel serves the simulator's browser status page.
//
// The page is a single embedded HTML file. It subscribes to the API's
// WebSocket state stream to show live process value and setpoint, and
// writes new setpoints through PUT /api/v1/setpoint.
package panel
