// Package poller reads the simulated controller on an interval.
//
// Each cycle reads three values in order, each on its own:
//
//	7101 x1  process value, scaled x10
//	360  x2  process value, IEEE-754 float32 (high word first)
//	2322 x1  setpoint, scaled x10
//
// A failed read is logged and leaves that field nil; it never aborts the
// cycle. The resulting Reading is handed to every Sink (console table,
// MQTT, InfluxDB, SQLite history). A failing sink is logged and skipped.
package poller
