package modbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/pm8sim/internal/device"
	"github.com/nerrad567/pm8sim/internal/infrastructure/mqtt"
)

const defaultHealthInterval = 30 * time.Second

// HealthReporter periodically publishes simulator health and device state
// to MQTT.
type HealthReporter struct {
	deviceID  string
	version   string
	startTime time.Time
	interval  time.Duration
	stateQoS  byte
	publisher HealthPublisher
	server    *Server
	state     *device.State

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	DeviceID string
	Version  string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	// StateQoS is the QoS for state messages. Health always uses QoS 1.
	StateQoS byte

	Publisher HealthPublisher
	Server    *Server
	State     *device.State
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		deviceID:  cfg.DeviceID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		stateQoS:  cfg.StateQoS,
		publisher: cfg.Publisher,
		server:    cfg.Server,
		state:     cfg.State,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting. Call Stop to shut down.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop stops reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "simulator starting")
}

// PublishNow publishes health and device state immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	if err := h.publishStatus(status, reason); err != nil {
		return err
	}
	return h.publishState()
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.server == nil || !h.server.Listening() {
		return HealthDegraded, "serial port closed"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	msg := NewHealthMessage(h.deviceID, h.version, status, h.server, h.startTime)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.DeviceHealth(h.deviceID), payload, 1, true)
}

func (h *HealthReporter) publishState() error {
	if h.publisher == nil || h.state == nil {
		return nil
	}

	payload, err := json.Marshal(NewStateMessage(h.deviceID, h.state.Snapshot()))
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.DeviceState(h.deviceID), payload, h.stateQoS, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
