// Package influxdb provides InfluxDB connectivity for pm8sim.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, reading writes and health monitoring. The poller's InfluxDB
// sink is the only writer.
//
// # Data Layout
//
// Each poll cycle becomes one point:
//
//	pm8_reading,device_id=pm8-01 pv_scaled=49.9,pv_float=49.93,sp_scaled=50,read_errors=0i
//
// Failed fields are omitted and counted in read_errors.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // not configured
//	}
//	defer client.Close()
//
//	client.WriteReading("pm8-01", time.Now(), &pv, &pvf, &sp)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes; async write
// errors are delivered to the SetOnError callback.
package influxdb
