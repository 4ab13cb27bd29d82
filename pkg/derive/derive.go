// Package derive computes quantities from already-collected samples. Nothing
// here touches hardware.
package derive

import (
	"encoding/json"
	"math"

	"github.com/charlie0129/smuseq/pkg/status"
)

// CurrentEpsilon is the smallest current magnitude, in amperes, that a
// resistance is computed from.
const CurrentEpsilon = 1e-12

// Resistance is a resistance value that may be undefined.
type Resistance struct {
	Ohms    float64
	Defined bool
}

// Undefined is returned when the current is indistinguishable from zero.
var Undefined = Resistance{}

// Zero is the degraded pulse result: exactly 0 Ω, reported as defined. The
// accompanying status code is the only failure indicator.
var Zero = Resistance{Ohms: 0, Defined: true}

// MarshalJSON encodes an undefined resistance as null.
func (r Resistance) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Ohms)
}

func (r *Resistance) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = Undefined
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = Resistance{Ohms: v, Defined: true}
	return nil
}

// Ohm computes voltage/current.
func Ohm(voltage, current float64) Resistance {
	if math.IsNaN(voltage) || math.IsNaN(current) || math.Abs(current) < CurrentEpsilon {
		return Undefined
	}
	r := voltage / current
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return Undefined
	}
	return Resistance{Ohms: r, Defined: true}
}

// Resistances computes voltage/current elementwise.
func Resistances(voltage, current []float64) ([]Resistance, error) {
	if len(voltage) != len(current) {
		return nil, status.New(status.CodeBufferMismatch, "voltage has %d entries but current has %d", len(voltage), len(current))
	}
	out := make([]Resistance, len(voltage))
	for i := range voltage {
		out[i] = Ohm(voltage[i], current[i])
	}
	return out, nil
}

// CorrectForced writes forced[i] - measured[i] into out to remove the
// voltage dropped across the loop path. out may alias forced.
func CorrectForced(forced, measured, out []float64) error {
	if len(forced) != len(measured) || len(out) < len(forced) {
		return status.New(status.CodeSizeMismatch, "forced=%d measured=%d out=%d entries", len(forced), len(measured), len(out))
	}
	for i := range forced {
		out[i] = forced[i] - measured[i]
	}
	return nil
}

// Polarity is the sign that maps a current read by the measuring channel
// onto the nominal bias direction. A channel wired with inverted polarity,
// usually the low side terminal of the loop, reads it negated.
func Polarity(inverted bool) float64 {
	if inverted {
		return -1
	}
	return 1
}

// NormalizeCurrent returns the current sign-corrected for the polarity of
// the channel that measured it.
func NormalizeCurrent(inverted bool, current float64) float64 {
	return Polarity(inverted) * current
}

// NormalizeCurrents sign-corrects currents in place.
func NormalizeCurrents(inverted bool, currents []float64) {
	p := Polarity(inverted)
	if p == 1 {
		return
	}
	for i := range currents {
		currents[i] *= p
	}
}

// SplitPoints allocates the requested point count between the rise and fall
// of a triangle sweep so that rise + fall + 1 == points; the 1 is the peak
// sample both halves share.
func SplitPoints(points int) (rise, fall int) {
	rise = (points - 1) / 2
	fall = points - 1 - rise
	return rise, fall
}
