// Package validate checks programs against hardware-safe ranges before any
// hardware call is issued.
//
// Out-of-range but correctable values are clamped or raised and reported as
// Warnings. Values that cannot be made safe are rejected with a status code:
// CodeSlewRate, CodeSizeMismatch, CodeRange, CodeInvalidBuffer or
// CodeInvalidProgram.
package validate

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smuseq/pkg/instrument"
	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/status"
)

const (
	// MinInterval is the shortest sample interval or sweep step the bus can sustain.
	MinInterval = time.Millisecond
	// MinIntegration is the shortest integration time programmed on a channel.
	MinIntegration = time.Millisecond
	// MinSweepPoints leaves at least one rise and one fall step around the peak.
	MinSweepPoints = 3
	// MinSampleLimit replaces negative sample limits. Zero stays unbounded.
	MinSampleLimit = 1
	// ComplianceFraction of the current limit at which a sample counts as a compliance hit.
	ComplianceFraction = 0.99
)

// Warning records a value that was changed to make a program safe.
type Warning struct {
	Field     string `json:"field"`
	Requested string `json:"requested"`
	Applied   string `json:"applied"`
	Reason    string `json:"reason"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s -> %s (%s)", w.Field, w.Requested, w.Applied, w.Reason)
}

type report struct {
	program  string
	warnings []Warning
}

func (r *report) add(field, requested, applied, reason string) {
	w := Warning{Field: field, Requested: requested, Applied: applied, Reason: reason}
	logrus.WithFields(logrus.Fields{
		"program":   r.program,
		"field":     field,
		"requested": requested,
		"applied":   applied,
	}).Warnf("parameter adjusted: %s", reason)
	r.warnings = append(r.warnings, w)
}

func (r *report) floorDuration(field string, d *program.Duration, floor time.Duration, reason string) {
	if d.D() < floor {
		r.add(field, d.String(), floor.String(), reason)
		*d = program.Duration(floor)
	}
}

// ceilCurrent clamps |*a| to ceiling, keeping the sign.
func (r *report) ceilCurrent(field string, a *float64, ceiling float64) {
	if ceiling > 0 && math.Abs(*a) > ceiling {
		applied := math.Copysign(ceiling, *a)
		r.add(field, formatAmps(*a), formatAmps(applied), "above the channel current ceiling")
		*a = applied
	}
}

func formatAmps(a float64) string  { return fmt.Sprintf("%gA", a) }
func formatVolts(v float64) string { return fmt.Sprintf("%gV", v) }

func finite(field string, vs ...float64) error {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return status.New(status.CodeInvalidProgram, "%s must be finite, got %v", field, v)
		}
	}
	return nil
}

func checkVoltage(field string, v float64, lim instrument.Limits) error {
	if err := finite(field, v); err != nil {
		return err
	}
	if lim.MaxVoltage > 0 && math.Abs(v) > lim.MaxVoltage {
		return status.New(status.CodeRange, "%s %s exceeds the channel rating of ±%s", field, formatVolts(v), formatVolts(lim.MaxVoltage))
	}
	return nil
}

// CheckSlew rejects a rise time that exceeds |amplitude| × slew limit.
// A zero rise time leaves the edge to the hardware and always passes.
func CheckSlew(amplitude float64, rise time.Duration, lim instrument.Limits) error {
	if rise <= 0 {
		return nil
	}
	slew := lim.SlewPerVolt
	if slew <= 0 {
		slew = instrument.DefaultSlewPerVolt
	}
	// Compare in float seconds: |amplitude| × slew is fractional.
	maxRise := math.Abs(amplitude) * slew.Seconds()
	if rise.Seconds() > maxRise {
		return status.New(status.CodeSlewRate, "rise time %s exceeds %gs allowed for a %s step at %s/V",
			rise, maxRise, formatVolts(math.Abs(amplitude)), slew)
	}
	return nil
}

func pulseFloor(lim instrument.Limits) time.Duration {
	if lim.MinPulseWidth > 0 {
		return lim.MinPulseWidth
	}
	return instrument.MinPulseWidth
}

func safeLimit(lim instrument.Limits) float64 {
	if lim.SafeCurrentLimit > 0 {
		return lim.SafeCurrentLimit
	}
	return instrument.DefaultSafeCurrentLimit
}

func resolveCompliance(r *report, field string, a *float64, lim instrument.Limits, ceiling float64) error {
	if err := finite(field, *a); err != nil {
		return err
	}
	*a = math.Abs(*a)
	if *a == 0 {
		*a = safeLimit(lim)
		logrus.WithFields(logrus.Fields{
			"program": r.program,
			"field":   field,
			"applied": formatAmps(*a),
		}).Debug("zero compliance resolved to the channel safe limit")
	}
	r.ceilCurrent(field, a, ceiling)
	return nil
}

// Monitor validates a continuous monitor program for a channel.
func Monitor(p program.Monitor, lim instrument.Limits) (program.Monitor, []Warning, error) {
	r := &report{program: string(program.KindMonitor)}

	if p.Capacity <= 0 {
		return p, nil, status.New(status.CodeInvalidBuffer, "buffer capacity must be positive, got %d", p.Capacity)
	}
	if err := checkVoltage("bias", p.Bias, lim); err != nil {
		return p, nil, err
	}
	if err := resolveCompliance(r, "currentLimit", &p.CurrentLimit, lim, lim.MaxCurrent); err != nil {
		return p, nil, err
	}
	if err := finite("currentRange", p.CurrentRange); err != nil {
		return p, nil, err
	}
	p.CurrentRange = math.Abs(p.CurrentRange)
	r.ceilCurrent("currentRange", &p.CurrentRange, lim.MaxCurrent)

	if p.SampleLimit < 0 {
		r.add("sampleLimit", fmt.Sprint(p.SampleLimit), fmt.Sprint(MinSampleLimit), "below minimum sample count")
		p.SampleLimit = MinSampleLimit
	}
	r.floorDuration("interval", &p.Interval, MinInterval, "below minimum sample interval")
	r.floorDuration("integration", &p.Integration, MinIntegration, "below minimum integration time")
	r.floorDuration("settle", &p.Settle, 0, "negative settle time")

	return p, r.warnings, nil
}

// Pulse validates a single pulse program for a channel.
func Pulse(p program.Pulse, lim instrument.Limits) (program.Pulse, []Warning, error) {
	r := &report{program: string(program.KindPulse)}

	levels := []struct {
		field string
		v     float64
	}{
		{"preBias", p.PreBias},
		{"amplitude", p.Amplitude},
		{"postBias", p.PostBias},
	}
	for _, l := range levels {
		if err := checkVoltage(l.field, l.v, lim); err != nil {
			return p, nil, err
		}
	}
	if err := CheckSlew(p.Amplitude, p.RiseTime.D(), lim); err != nil {
		return p, nil, err
	}
	if err := resolveCompliance(r, "compliance", &p.Compliance, lim, lim.MaxCurrent); err != nil {
		return p, nil, err
	}
	if err := finite("currentRange", p.CurrentRange); err != nil {
		return p, nil, err
	}
	p.CurrentRange = math.Abs(p.CurrentRange)
	r.ceilCurrent("currentRange", &p.CurrentRange, lim.MaxCurrent)

	floor := pulseFloor(lim)
	r.floorDuration("width", &p.Width, floor, "below hardware pulse floor")
	r.floorDuration("preHold", &p.PreHold, floor, "below hardware pulse floor")
	r.floorDuration("postHold", &p.PostHold, floor, "below hardware pulse floor")

	return p, r.warnings, nil
}

// Sweep validates a triangle sweep between a high side and a low side
// channel. sizes are the lengths of any caller-supplied output buffers; each
// must equal the point count.
func Sweep(p program.Sweep, high, low instrument.Limits, sizes ...int) (program.Sweep, []Warning, error) {
	r := &report{program: string(program.KindSweep)}

	if p.Measure == "" {
		p.Measure = program.RoleHigh
	}
	if !p.Measure.Valid() {
		return p, nil, status.New(status.CodeInvalidProgram, "unknown measurement role %q", p.Measure)
	}
	if err := checkVoltage("start", p.Start, high); err != nil {
		return p, nil, err
	}
	if err := checkVoltage("peak", p.Peak, high); err != nil {
		return p, nil, err
	}
	if err := CheckSlew(p.Peak-p.Start, p.RiseTime.D(), high); err != nil {
		return p, nil, err
	}

	if p.Points < MinSweepPoints {
		r.add("points", fmt.Sprint(p.Points), fmt.Sprint(MinSweepPoints), "below minimum sweep point count")
		p.Points = MinSweepPoints
	}
	for i, n := range sizes {
		if n != p.Points {
			return p, nil, status.New(status.CodeSizeMismatch, "output buffer %d holds %d entries, sweep needs exactly %d", i, n, p.Points)
		}
	}

	ceiling := high.MaxCurrent
	if low.MaxCurrent > 0 && (ceiling <= 0 || low.MaxCurrent < ceiling) {
		ceiling = low.MaxCurrent
	}
	if err := resolveCompliance(r, "compliance", &p.Compliance, high, ceiling); err != nil {
		return p, nil, err
	}
	if err := finite("currentRange", p.CurrentRange); err != nil {
		return p, nil, err
	}
	p.CurrentRange = math.Abs(p.CurrentRange)
	r.ceilCurrent("currentRange", &p.CurrentRange, ceiling)

	r.floorDuration("stepTime", &p.StepTime, MinInterval, "below minimum sweep step")
	if p.Hold.D() < 0 {
		r.add("hold", p.Hold.String(), "0s", "negative hold time")
		p.Hold = 0
	} else if p.Hold.D() > 0 {
		r.floorDuration("hold", &p.Hold, pulseFloor(high), "below hardware pulse floor")
	}

	return p, r.warnings, nil
}
