package modbus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/serial"
	"github.com/tbrandon/mbserver"

	"github.com/nerrad567/pm8sim/internal/device"
)

// closeTimeout bounds how long Close waits for the serial reader.
const closeTimeout = 2 * time.Second

// openPort opens the serial device.
var openPort = func(cfg *serial.Config) (io.ReadWriteCloser, error) {
	return serial.Open(cfg)
}

// Logger is the logging interface used by the bridge.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SerialConfig describes one end of the point-to-point RTU link.
type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string

	// Timeout is the client's per-request timeout. The server ignores it
	// and polls the line at the inter-frame gap instead.
	Timeout time.Duration
}

// withDefaults fills in 8-N-1 framing.
func (c SerialConfig) withDefaults() SerialConfig {
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if c.Parity == "" {
		c.Parity = "N"
	}
	return c
}

// Server exposes a device.Handler as a Modbus RTU slave.
//
// Every function code is routed through the handler, so the handler alone
// decides which operations are supported. Requests are read and answered
// on a single goroutine, so they never overlap. Frames with a bad CRC are
// dropped without a reply, and broadcasts (address 0) are applied but not
// answered.
type Server struct {
	handler *device.Handler
	cfg     SerialConfig

	mu      sync.Mutex
	port    io.ReadWriteCloser
	done    chan struct{}
	stopped chan struct{}

	listening  atomic.Bool
	exceptions atomic.Uint64
	badFrames  atomic.Uint64
	closeOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewServer creates a server for the given handler. Call Start to open
// the serial port.
func NewServer(handler *device.Handler, cfg SerialConfig) *Server {
	return &Server{
		handler: handler,
		cfg:     cfg.withDefaults(),
		done:    make(chan struct{}),
	}
}

// SetLogger sets the logger for this server.
func (s *Server) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// Start opens the serial port and begins answering requests in the
// background. Call it at most once.
//
// Returns:
//   - error: ErrPortOpen wrapping the driver error if the port cannot be opened
func (s *Server) Start() error {
	port, err := openPort(&serial.Config{
		Address:  s.cfg.Port,
		BaudRate: s.cfg.BaudRate,
		DataBits: s.cfg.DataBits,
		StopBits: s.cfg.StopBits,
		Parity:   s.cfg.Parity,
		Timeout:  frameGap(s.cfg.BaudRate),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPortOpen, s.cfg.Port, err)
	}
	s.serveOn(port)
	return nil
}

// serveOn starts the request loop on an open port.
func (s *Server) serveOn(port io.ReadWriteCloser) {
	stopped := make(chan struct{})
	s.mu.Lock()
	s.port, s.stopped = port, stopped
	s.mu.Unlock()

	s.listening.Store(true)
	s.logDebug("modbus serial loop started", "port", s.cfg.Port, "gap", frameGap(s.cfg.BaudRate))
	go s.readLoop(port, stopped)
}

// readLoop answers requests until Close or a read error. A read error
// leaves the server not listening.
func (s *Server) readLoop(port io.ReadWriter, stopped chan<- struct{}) {
	defer close(stopped)
	defer s.listening.Store(false)

	frames := newFrameReader(port)
	for {
		adu, err := frames.next(s.done)
		if errors.Is(err, errReaderStopped) {
			return
		}
		if err != nil {
			s.logError("serial read failed, modbus server stopped", "port", s.cfg.Port, "error", err)
			return
		}

		reply := s.handleADU(adu)
		if reply == nil {
			continue
		}
		if _, err := port.Write(reply); err != nil {
			s.logWarn("serial write failed", "port", s.cfg.Port, "error", err)
		}
	}
}

// handleADU validates one RTU frame and returns the reply to send, or nil
// when none is due.
func (s *Server) handleADU(adu []byte) []byte {
	frame, err := mbserver.NewRTUFrame(adu)
	if err != nil {
		s.badFrames.Add(1)
		s.logDebug("discarding frame", "bytes", len(adu), "error", err)
		return nil
	}

	reply := frame.Copy()
	data, exc := s.serve(frame)
	if *exc != mbserver.Success {
		reply.SetException(exc)
	} else {
		reply.SetData(data)
	}
	if frame.Address == 0 {
		return nil
	}
	return reply.Bytes()
}

// Close stops the request loop and releases the serial port.
// Safe to call multiple times.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		port, stopped := s.port, s.stopped
		s.mu.Unlock()
		if port == nil {
			return
		}

		// The loop wakes at least once per inter-frame gap.
		select {
		case <-stopped:
		case <-time.After(closeTimeout):
			s.logWarn("serial reader still running after close", "port", s.cfg.Port)
		}
		if err := port.Close(); err != nil {
			s.logWarn("closing serial port", "port", s.cfg.Port, "error", err)
		}
		s.listening.Store(false)
	})
}

// Listening reports whether requests are being answered. It turns false
// after Close or when the serial port fails.
func (s *Server) Listening() bool {
	return s.listening.Load()
}

// Port returns the configured serial device path.
func (s *Server) Port() string {
	return s.cfg.Port
}

// BaudRate returns the configured line speed.
func (s *Server) BaudRate() int {
	return s.cfg.BaudRate
}

// Exceptions returns the number of exception responses sent.
func (s *Server) Exceptions() uint64 {
	return s.exceptions.Load()
}

// BadFrames returns the number of frames dropped for a bad CRC or length.
func (s *Server) BadFrames() uint64 {
	return s.badFrames.Load()
}

// Handler returns the device handler behind the server.
func (s *Server) Handler() *device.Handler {
	return s.handler
}

// serve answers one decoded frame.
func (s *Server) serve(frame mbserver.Framer) ([]byte, *mbserver.Exception) {
	fc := frame.GetFunction()
	req, exc := decodeRequest(fc, frame.GetData())
	if exc != nil {
		s.exceptions.Add(1)
		s.logDebug("malformed request", "function", fc, "exception", uint8(*exc))
		return []byte{}, exc
	}

	resp, err := s.handler.Handle(req)
	if err != nil {
		s.exceptions.Add(1)
		if errors.Is(err, device.ErrUnsupportedOperation) {
			return []byte{}, &mbserver.IllegalFunction
		}
		s.logError("request failed", "function", fc, "error", err)
		return []byte{}, &mbserver.SlaveDeviceFailure
	}

	return encodeResponse(req.Op, resp), &mbserver.Success
}

func (s *Server) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Server) logDebug(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (s *Server) logWarn(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (s *Server) logError(msg string, keysAndValues ...any) {
	if logger := s.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
