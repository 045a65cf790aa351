package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/pm8sim/internal/history"
	"github.com/nerrad567/pm8sim/internal/infrastructure/mqtt"
)

// Console table layout.
const (
	tableRow        = "%-25s | %-10s | %-10s | %-10s\n"
	tableRuleWidth  = 65
	timestampLayout = "2006-01-02 15:04:05"
	missingValue    = "ERR"
)

// TableSink prints readings as a fixed-width console table.
// The header and rule are printed before the first row only.
type TableSink struct {
	w      io.Writer
	header sync.Once
	mu     sync.Mutex
}

// NewTableSink creates a table sink writing to w.
func NewTableSink(w io.Writer) *TableSink {
	return &TableSink{w: w}
}

// Name implements Sink.
func (s *TableSink) Name() string { return "table" }

// Write implements Sink.
func (s *TableSink) Write(_ context.Context, r Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	s.header.Do(func() {
		if _, err = fmt.Fprintf(s.w, tableRow, "Timestamp", "PV (Int)", "PV (F32)", "SP (Read)"); err != nil {
			return
		}
		_, err = fmt.Fprintln(s.w, strings.Repeat("-", tableRuleWidth))
	})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(s.w, tableRow,
		r.Time.Local().Format(timestampLayout),
		formatValue(r.PVScaled, "%.1f"),
		formatValue(r.PVFloat, "%.4f"),
		formatValue(r.SPScaled, "%.1f"),
	)
	return err
}

func formatValue(v *float64, format string) string {
	if v == nil {
		return missingValue
	}
	return fmt.Sprintf(format, *v)
}

// Publisher is the MQTT surface the MQTT sink needs.
// It is implemented by mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// readingMessage is the JSON payload published for each reading.
type readingMessage struct {
	DeviceID string `json:"device_id"`
	Reading
	Failures int `json:"failures"`
}

// MQTTSink publishes readings on pm8sim/{device_id}/reading.
type MQTTSink struct {
	publisher Publisher
	deviceID  string
	qos       byte
}

// NewMQTTSink creates an MQTT sink.
func NewMQTTSink(publisher Publisher, deviceID string, qos byte) *MQTTSink {
	return &MQTTSink{publisher: publisher, deviceID: deviceID, qos: qos}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Write implements Sink.
func (s *MQTTSink) Write(_ context.Context, r Reading) error {
	if !s.publisher.IsConnected() {
		return fmt.Errorf("%w: mqtt disconnected", ErrSinkUnavailable)
	}

	payload, err := json.Marshal(readingMessage{
		DeviceID: s.deviceID,
		Reading:  r,
		Failures: r.Failures(),
	})
	if err != nil {
		return fmt.Errorf("marshalling reading: %w", err)
	}
	return s.publisher.Publish(mqtt.Topics{}.DeviceReading(s.deviceID), payload, s.qos, false)
}

// InfluxWriter is the time-series surface the InfluxDB sink needs.
// It is implemented by influxdb.Client.
type InfluxWriter interface {
	WriteReading(deviceID string, ts time.Time, pvScaled, pvFloat, spScaled *float64)
	IsConnected() bool
}

// InfluxSink writes readings as pm8_reading points.
type InfluxSink struct {
	writer   InfluxWriter
	deviceID string
}

// NewInfluxSink creates an InfluxDB sink.
func NewInfluxSink(writer InfluxWriter, deviceID string) *InfluxSink {
	return &InfluxSink{writer: writer, deviceID: deviceID}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Write implements Sink. The write itself is batched asynchronously.
func (s *InfluxSink) Write(_ context.Context, r Reading) error {
	if !s.writer.IsConnected() {
		return fmt.Errorf("%w: influxdb disconnected", ErrSinkUnavailable)
	}
	s.writer.WriteReading(s.deviceID, r.Time, r.PVScaled, r.PVFloat, r.SPScaled)
	return nil
}

// HistorySink stores readings in the local history database.
type HistorySink struct {
	repo     history.Repository
	deviceID string
}

// NewHistorySink creates a history sink.
func NewHistorySink(repo history.Repository, deviceID string) *HistorySink {
	return &HistorySink{repo: repo, deviceID: deviceID}
}

// Name implements Sink.
func (s *HistorySink) Name() string { return "history" }

// Write implements Sink.
func (s *HistorySink) Write(ctx context.Context, r Reading) error {
	return s.repo.Record(ctx, history.Entry{
		DeviceID:  s.deviceID,
		PVScaled:  r.PVScaled,
		PVFloat:   r.PVFloat,
		SPScaled:  r.SPScaled,
		CreatedAt: r.Time,
	})
}
