package instrument

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestSimLoop(t *testing.T) {
	sim := NewSim(990, 10, SimChannelConfig{Name: "a"}, SimChannelConfig{Name: "b", Inverted: true})

	a, err := sim.Lookup("a")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := sim.Lookup("b")
	if _, err := sim.Lookup("c"); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("expected ErrUnknownChannel, got %v", err)
	}

	_ = a.SetCurrentLimit(0.01)
	_ = a.ForceVoltage(1)
	i, _ := a.MeasureCurrent()
	if math.Abs(i-1e-3) > 1e-15 {
		t.Errorf("current = %v, want 1mA", i)
	}
	v, _ := a.MeasureVoltage()
	if math.Abs(v-0.99) > 1e-12 {
		t.Errorf("voltage = %v, want 0.99", v)
	}

	_ = b.SetCurrentLimit(0.01)
	_ = b.ForceVoltage(1)
	if i, _ := b.MeasureCurrent(); i >= 0 {
		t.Errorf("inverted channel current = %v, want negative", i)
	}

	// Compliance clamps the loop current.
	_ = a.SetCurrentLimit(1e-4)
	if i, _ := a.MeasureCurrent(); i != 1e-4 {
		t.Errorf("clamped current = %v", i)
	}
}

func TestSimPulse(t *testing.T) {
	sim := NewSim(990, 10, SimChannelConfig{Name: "a"})
	ch, _ := sim.Lookup("a")
	p := ch.(Pulser)

	_ = ch.SetCurrentLimit(0.01)
	peakV, peakI, err := p.Pulse(PulseShape{Base: 0.1, Amplitude: 2, Width: time.Microsecond})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(peakI-2e-3) > 1e-15 || math.Abs(peakV-1.98) > 1e-12 {
		t.Errorf("peak = %v V, %v A", peakV, peakI)
	}
	if sim.Voltage("a") != 0.1 {
		t.Errorf("channel did not return to base: %v", sim.Voltage("a"))
	}
}

func TestSimSweep(t *testing.T) {
	sim := NewSim(990, 10, SimChannelConfig{Name: "a"}, SimChannelConfig{Name: "b", Inverted: true})
	a, _ := sim.Lookup("a")
	b, _ := sim.Lookup("b")
	_ = a.SetCurrentLimit(0.01)

	n := 5
	req := SweepRequest{
		Force: a, Measure: b, From: 0, To: 1, Points: n, Step: time.Millisecond,
		Forced: make([]float64, n), Voltage: make([]float64, n), Current: make([]float64, n), Elapsed: make([]float64, n),
	}
	if err := sim.Sweep(req); err != nil {
		t.Fatal(err)
	}
	if req.Forced[0] != 0 || req.Forced[n-1] != 1 {
		t.Errorf("forced = %v", req.Forced)
	}
	if req.Current[n-1] >= 0 {
		t.Errorf("current not read on the inverted side: %v", req.Current)
	}
	if req.Elapsed[n-1] != 0.004 {
		t.Errorf("elapsed = %v", req.Elapsed)
	}
	if sim.Voltage("a") != 1 {
		t.Errorf("force channel left at %v", sim.Voltage("a"))
	}

	req.Points = n + 1
	if err := sim.Sweep(req); err == nil {
		t.Errorf("expected short buffer error")
	}
}

func TestSimCallHook(t *testing.T) {
	sim := NewSim(1000, 0, SimChannelConfig{Name: "a"})
	ch, _ := sim.Lookup("a")
	sim.OnCall = func(c Call) error {
		if c.Op == OpForceVoltage && c.Value == 2 {
			return errors.New("boom")
		}
		return nil
	}

	_ = ch.ForceVoltage(1)
	if err := ch.ForceVoltage(2); err == nil {
		t.Fatal("expected hook error")
	}
	if sim.Voltage("a") != 1 {
		t.Errorf("failed call changed state: %v", sim.Voltage("a"))
	}
	if sim.Count(OpForceVoltage, "a", 2) != 1 {
		t.Errorf("failed call not recorded")
	}
	if err := sim.SetRoute(ch, PathPulse); err != nil || sim.Route("a") != PathPulse {
		t.Errorf("route = %v, %v", sim.Route("a"), err)
	}
}
