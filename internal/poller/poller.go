package poller

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/pm8sim/internal/device"
)

// DefaultInterval is the pause between poll cycles.
const DefaultInterval = time.Second

// Registers read each cycle.
const (
	regPVScaled = device.AddrProcessValue
	regPVFloat  = device.AddrProcessValueFloat
	regSPScaled = device.AddrSetpoint1
)

// Transport is the register access the poller needs.
// It is implemented by modbus.Client.
type Transport interface {
	ReadHoldingRegisters(ctx context.Context, address, count uint16) ([]uint16, error)
	WriteSingleRegister(ctx context.Context, address, value uint16) error
}

// Logger is the logging interface used by the poller.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Reading is the result of one poll cycle. A nil field means that read
// failed.
type Reading struct {
	Time     time.Time `json:"timestamp"`
	PVScaled *float64  `json:"pv_scaled"`
	PVFloat  *float64  `json:"pv_float"`
	SPScaled *float64  `json:"sp_scaled"`
}

// Failures returns how many of the three reads failed.
func (r Reading) Failures() int {
	n := 0
	for _, v := range []*float64{r.PVScaled, r.PVFloat, r.SPScaled} {
		if v == nil {
			n++
		}
	}
	return n
}

// Sink receives every reading.
type Sink interface {
	Name() string
	Write(ctx context.Context, r Reading) error
}

// Config holds poller settings.
type Config struct {
	// Interval is the pause after each cycle. Default: 1 second.
	Interval time.Duration

	// Setpoint, if set, is written once to Setpoint 1 before polling starts.
	Setpoint *float64

	// Out receives the startup write lines. Default: os.Stdout.
	Out io.Writer

	// ErrOut receives the startup write failure line. Default: os.Stderr.
	ErrOut io.Writer
}

// Stats are cumulative poller counters.
type Stats struct {
	Cycles     uint64 `json:"cycles"`
	ReadErrors uint64 `json:"read_errors"`
	SinkErrors uint64 `json:"sink_errors"`
}

// Poller runs the poll loop against one device.
type Poller struct {
	transport Transport
	cfg       Config
	sinks     []Sink
	now       func() time.Time

	cycles     atomic.Uint64
	readErrors atomic.Uint64
	sinkErrors atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a poller over transport that feeds the given sinks.
func New(transport Transport, cfg Config, sinks ...Sink) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.ErrOut == nil {
		cfg.ErrOut = os.Stderr
	}
	return &Poller{
		transport: transport,
		cfg:       cfg,
		sinks:     sinks,
		now:       time.Now,
	}
}

// SetLogger sets the logger for read and sink failures.
func (p *Poller) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// Stats returns the current counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:     p.cycles.Load(),
		ReadErrors: p.readErrors.Load(),
		SinkErrors: p.sinkErrors.Load(),
	}
}

// Run writes the startup setpoint (if configured) and then polls until ctx
// is cancelled. A failed startup write is reported and polling continues.
//
// Returns:
//   - error: Always nil; cancellation is a normal stop
func (p *Poller) Run(ctx context.Context) error {
	if p.cfg.Setpoint != nil {
		sp := *p.cfg.Setpoint
		fmt.Fprintf(p.cfg.Out, ">>> WRITING SETPOINT: %.1f°C\n", sp)
		if err := p.WriteSetpoint(ctx, sp); err != nil {
			fmt.Fprintf(p.cfg.ErrOut, ">>> Setpoint Write Failed: %v\n", err)
		} else {
			fmt.Fprintln(p.cfg.Out, ">>> Setpoint Write Success")
		}
	}

	fmt.Fprintln(p.cfg.Out, "\nStarting Logger (Ctrl+C to stop)...")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		r := p.PollOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		p.dispatch(ctx, r)
		timer.Reset(p.cfg.Interval)
	}
}

// WriteSetpoint writes sp to Setpoint 1 as round(sp*10).
//
// Returns:
//   - error: ErrSetpointOutOfRange, or the transport error
func (p *Poller) WriteSetpoint(ctx context.Context, sp float64) error {
	word, ok := device.ScaledWord(sp)
	if !ok {
		return fmt.Errorf("%w: %v", ErrSetpointOutOfRange, sp)
	}
	if err := p.transport.WriteSingleRegister(ctx, regSPScaled, word); err != nil {
		return err
	}
	p.logInfo("setpoint written", "register", regSPScaled, "setpoint", sp, "word", word)
	return nil
}

// PollOnce performs one read cycle. Reads run sequentially; each failure is
// logged and leaves its field nil.
func (p *Poller) PollOnce(ctx context.Context) Reading {
	r := Reading{Time: p.now()}
	p.cycles.Add(1)

	if words, ok := p.read(ctx, regPVScaled, 1); ok {
		r.PVScaled = ptr(device.DecodeScaled(words[0]))
	}
	if words, ok := p.read(ctx, regPVFloat, 2); ok {
		r.PVFloat = ptr(float64(device.JoinFloat32(words[0], words[1])))
	}
	if words, ok := p.read(ctx, regSPScaled, 1); ok {
		r.SPScaled = ptr(device.DecodeScaled(words[0]))
	}
	return r
}

func (p *Poller) read(ctx context.Context, address, count uint16) ([]uint16, bool) {
	words, err := p.transport.ReadHoldingRegisters(ctx, address, count)
	if err == nil && len(words) < int(count) {
		err = fmt.Errorf("got %d words, want %d", len(words), count)
	}
	if err != nil {
		p.readErrors.Add(1)
		if ctx.Err() == nil {
			p.logWarn("read failed", "register", address, "error", err)
		}
		return nil, false
	}
	return words, true
}

func (p *Poller) dispatch(ctx context.Context, r Reading) {
	for _, s := range p.sinks {
		if err := s.Write(ctx, r); err != nil {
			p.sinkErrors.Add(1)
			p.logWarn("sink write failed", "sink", s.Name(), "error", err)
		}
	}
}

func ptr(v float64) *float64 { return &v }

func (p *Poller) getLogger() Logger {
	p.loggerMu.RLock()
	defer p.loggerMu.RUnlock()
	return p.logger
}

func (p *Poller) logInfo(msg string, keysAndValues ...any) {
	if logger := p.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (p *Poller) logWarn(msg string, keysAndValues ...any) {
	if logger := p.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
