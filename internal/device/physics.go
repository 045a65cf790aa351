package device

import (
	"context"
	"time"
)

// Physics defaults, matching the reference oven.
const (
	// DefaultTickInterval is the physics update period.
	DefaultTickInterval = 200 * time.Millisecond

	// DefaultHeatingStep is the per-tick rise while heat is demanded.
	DefaultHeatingStep float32 = 0.08

	// DefaultCoolingStep is the per-tick passive loss above ambient.
	DefaultCoolingStep float32 = 0.02

	// DefaultDeadband is the setpoint error below which heating stops.
	DefaultDeadband float32 = 0.05

	// jitterBuckets and jitterScale shape the clock-derived noise into
	// [0, 0.0198]; jitterOffset re-centres it near zero.
	jitterBuckets = 100
	jitterScale   = 5000
	jitterOffset  = 0.01
)

// JitterFunc returns one sample of sensor noise, added to the process value
// on every tick.
type JitterFunc func() float32

// ClockJitter derives noise from the wall clock's microsecond field.
//
// It never observes protocol traffic, so request handling stays
// deterministic regardless of the noise.
func ClockJitter() float32 {
	micros := time.Now().UnixMicro() % jitterBuckets
	return float32(micros)/jitterScale - jitterOffset
}

// NoJitter is a JitterFunc that always returns zero.
func NoJitter() float32 { return 0 }

// UpdaterConfig holds the physics parameters. Zero fields take defaults.
type UpdaterConfig struct {
	// Interval is the tick period. Default: 200ms.
	Interval time.Duration

	// HeatingStep is added per tick while setpoint-pv > Deadband. Default: 0.08.
	HeatingStep float32

	// CoolingStep is subtracted per tick while pv > ambient and no heat is
	// demanded. Default: 0.02.
	CoolingStep float32

	// Deadband is the heat-demand threshold. Default: 0.05.
	Deadband float32

	// Jitter supplies sensor noise. Default: ClockJitter.
	Jitter JitterFunc
}

func (c UpdaterConfig) withDefaults() UpdaterConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultTickInterval
	}
	if c.HeatingStep == 0 {
		c.HeatingStep = DefaultHeatingStep
	}
	if c.CoolingStep == 0 {
		c.CoolingStep = DefaultCoolingStep
	}
	if c.Deadband == 0 {
		c.Deadband = DefaultDeadband
	}
	if c.Jitter == nil {
		c.Jitter = ClockJitter
	}
	return c
}

// Updater advances the process value toward the setpoint on a fixed tick.
//
// Heating is fast and cooling is slow; passive cooling stops at ambient.
// There is no clamp against overshoot: this is a plant model, not a
// controller.
type Updater struct {
	state *State
	cfg   UpdaterConfig
}

// NewUpdater creates a physics updater bound to state.
func NewUpdater(state *State, cfg UpdaterConfig) *Updater {
	return &Updater{
		state: state,
		cfg:   cfg.withDefaults(),
	}
}

// Interval returns the effective tick period.
func (u *Updater) Interval() time.Duration {
	return u.cfg.Interval
}

// Run ticks until ctx is cancelled. It never returns an error.
func (u *Updater) Run(ctx context.Context) {
	ticker := time.NewTicker(u.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.Tick()
		}
	}
}

// Tick performs one physics step under the state lock.
func (u *Updater) Tick() {
	jitter := u.cfg.Jitter()
	u.state.Do(func(v *Values) {
		step(v, u.cfg, jitter)
	})
}

// step is the pure physics rule.
func step(v *Values, cfg UpdaterConfig, jitter float32) {
	diff := v.Setpoint - v.ProcessValue

	switch {
	case diff > cfg.Deadband:
		v.ProcessValue += cfg.HeatingStep
	case v.ProcessValue > v.Ambient:
		v.ProcessValue -= cfg.CoolingStep
	}

	v.ProcessValue += jitter
}
