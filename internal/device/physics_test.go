package device

import (
	"context"
	"math"
	"testing"
	"time"
)

func newTestUpdater(v Values, jitter JitterFunc) (*State, *Updater) {
	state := NewState(v)
	return state, NewUpdater(state, UpdaterConfig{Jitter: jitter})
}

func TestUpdaterConfig_Defaults(t *testing.T) {
	u := NewUpdater(NewState(Values{}), UpdaterConfig{})
	if u.Interval() != 200*time.Millisecond {
		t.Errorf("Interval() = %v, want 200ms", u.Interval())
	}
	if u.cfg.HeatingStep != 0.08 || u.cfg.CoolingStep != 0.02 || u.cfg.Deadband != 0.05 {
		t.Errorf("defaults = %+v", u.cfg)
	}
	if u.cfg.Jitter == nil {
		t.Error("Jitter default should be set")
	}
}

func TestUpdater_Tick(t *testing.T) {
	tests := []struct {
		name   string
		start  Values
		jitter float32
		wantPV float32
	}{
		{"heats when below setpoint", Values{ProcessValue: 22.1, Setpoint: 50, Ambient: 22}, 0, 22.1 + 0.08},
		{"cools above ambient", Values{ProcessValue: 30, Setpoint: 10, Ambient: 22}, 0, 30 - 0.02},
		{"holds at ambient", Values{ProcessValue: 22, Setpoint: 10, Ambient: 22}, 0, 22},
		{"within deadband cools", Values{ProcessValue: 49.97, Setpoint: 50, Ambient: 22}, 0, 49.97 - 0.02},
		{"jitter applied", Values{ProcessValue: 22, Setpoint: 10, Ambient: 22}, 0.005, 22.005},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jitter := tt.jitter
			state, u := newTestUpdater(tt.start, func() float32 { return jitter })
			u.Tick()

			got := state.Snapshot()
			if math.Abs(float64(got.ProcessValue-tt.wantPV)) > 1e-4 {
				t.Errorf("ProcessValue = %v, want %v", got.ProcessValue, tt.wantPV)
			}
			if got.Setpoint != tt.start.Setpoint || got.Ambient != tt.start.Ambient {
				t.Errorf("tick changed setpoint or ambient: %+v", got)
			}
		})
	}
}

func TestUpdater_ConvergesToSetpoint(t *testing.T) {
	state, u := newTestUpdater(Values{ProcessValue: 22.1, Setpoint: 50, Ambient: 22}, NoJitter)

	// 28 degrees at 0.08 per tick needs 350 ticks.
	for range 1000 {
		u.Tick()
	}

	pv := state.Snapshot().ProcessValue
	if math.Abs(float64(pv-50)) > 0.1 {
		t.Errorf("ProcessValue = %v, want within 0.1 of 50", pv)
	}
}

func TestUpdater_CoolsToAmbient(t *testing.T) {
	state, u := newTestUpdater(Values{ProcessValue: 30, Setpoint: 10, Ambient: 22}, NoJitter)

	for range 1000 {
		u.Tick()
	}

	pv := state.Snapshot().ProcessValue
	if pv > 22 || pv < 22-0.03 {
		t.Errorf("ProcessValue = %v, want settled just at or below ambient 22", pv)
	}
}

func TestClockJitter_Range(t *testing.T) {
	for range 1000 {
		j := ClockJitter()
		if j < -0.01-1e-6 || j > 0.0098+1e-6 {
			t.Fatalf("ClockJitter() = %v out of range", j)
		}
	}
}

func TestUpdater_RunStopsOnCancel(t *testing.T) {
	state := NewState(Values{ProcessValue: 22.1, Setpoint: 50, Ambient: 22})
	u := NewUpdater(state, UpdaterConfig{Interval: time.Millisecond, Jitter: NoJitter})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		u.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if state.Snapshot().ProcessValue <= 22.1 {
		t.Error("Run() did not advance the process value")
	}
}
