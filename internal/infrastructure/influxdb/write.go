package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Point layout for poller readings.
const (
	// MeasurementReading is the measurement name of a poll cycle.
	MeasurementReading = "pm8_reading"

	tagDeviceID = "device_id"

	fieldPVScaled  = "pv_scaled"
	fieldPVFloat   = "pv_float"
	fieldSPScaled  = "sp_scaled"
	fieldErrors    = "read_errors"
	readingsFields = 3
)

// WriteReading records one poll cycle.
//
// Failed fields (nil) are omitted from the point and counted in the
// read_errors field, so a cycle where every read failed is still recorded.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Device identifier tag (e.g., "pm8-01")
//   - ts: Time the cycle started
//   - pvScaled, pvFloat, spScaled: Decoded values, nil on failure
func (c *Client) WriteReading(deviceID string, ts time.Time, pvScaled, pvFloat, spScaled *float64) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(readingPoint(deviceID, ts, pvScaled, pvFloat, spScaled))
	c.points.Add(1)
}

// readingPoint builds the line-protocol point for one reading.
func readingPoint(deviceID string, ts time.Time, pvScaled, pvFloat, spScaled *float64) *write.Point {
	fields := make(map[string]interface{}, readingsFields+1)
	failed := 0

	for name, v := range map[string]*float64{
		fieldPVScaled: pvScaled,
		fieldPVFloat:  pvFloat,
		fieldSPScaled: spScaled,
	} {
		if v == nil {
			failed++
			continue
		}
		fields[name] = *v
	}
	fields[fieldErrors] = failed

	return write.NewPoint(
		MeasurementReading,
		map[string]string{tagDeviceID: deviceID},
		fields,
		ts,
	)
}
