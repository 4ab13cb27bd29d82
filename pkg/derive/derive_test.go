package derive

import (
	"encoding/json"
	"math"
	"testing"
)

func TestOhm(t *testing.T) {
	tests := []struct {
		name string
		v, i float64
		want Resistance
	}{
		{name: "plain", v: 1, i: 1e-3, want: Resistance{Ohms: 1000, Defined: true}},
		{name: "negative", v: -2, i: -1e-3, want: Resistance{Ohms: 2000, Defined: true}},
		{name: "zero current", v: 1, i: 0, want: Undefined},
		{name: "below epsilon", v: 1, i: 1e-13, want: Undefined},
		{name: "negative below epsilon", v: 1, i: -5e-13, want: Undefined},
		{name: "nan", v: math.NaN(), i: 1, want: Undefined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ohm(tt.v, tt.i)
			if got != tt.want {
				t.Errorf("Ohm(%v, %v) = %+v, want %+v", tt.v, tt.i, got, tt.want)
			}
			if math.IsInf(got.Ohms, 0) || math.IsNaN(got.Ohms) {
				t.Errorf("Ohm leaked a non-finite value: %v", got.Ohms)
			}
		})
	}
}

func TestResistances(t *testing.T) {
	got, err := Resistances([]float64{1, 2, 3}, []float64{1, 0, 3e-3})
	if err != nil {
		t.Fatal(err)
	}
	if !got[0].Defined || got[0].Ohms != 1 || got[1].Defined || got[2].Ohms != 1000 {
		t.Errorf("Resistances() = %+v", got)
	}

	if _, err := Resistances([]float64{1}, nil); err == nil {
		t.Errorf("expected length mismatch error")
	}
}

func TestResistanceJSON(t *testing.T) {
	b, err := json.Marshal([]Resistance{Undefined, {Ohms: 10, Defined: true}})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "[null,10]" {
		t.Fatalf("Marshal() = %s", b)
	}
	var back []Resistance
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back[0].Defined || !back[1].Defined || back[1].Ohms != 10 {
		t.Errorf("Unmarshal() = %+v", back)
	}
}

func TestCorrectForced(t *testing.T) {
	forced := []float64{0, 0.5, 1, 0.5}
	measured := []float64{0, 0.01, 0.02, 0.01}
	out := make([]float64, len(forced))
	if err := CorrectForced(forced, measured, out); err != nil {
		t.Fatal(err)
	}
	for i := range forced {
		if out[i] != forced[i]-measured[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], forced[i]-measured[i])
		}
	}

	// In place.
	if err := CorrectForced(forced, measured, forced); err != nil {
		t.Fatal(err)
	}
	if forced[2] != 1-0.02 {
		t.Errorf("in-place correction gave %v", forced[2])
	}

	if err := CorrectForced([]float64{1, 2}, []float64{1}, make([]float64, 2)); err == nil {
		t.Errorf("expected size mismatch")
	}
}

func TestNormalizeCurrents(t *testing.T) {
	tests := []struct {
		name     string
		inverted bool
		in       []float64
		want     []float64
	}{
		{"nominal", false, []float64{1, -2}, []float64{1, -2}},
		{"inverted", true, []float64{1, -2}, []float64{-1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			NormalizeCurrents(tt.inverted, tt.in)
			for i := range tt.in {
				if tt.in[i] != tt.want[i] {
					t.Errorf("index %d = %v, want %v", i, tt.in[i], tt.want[i])
				}
			}
		})
	}
	if NormalizeCurrent(true, 3) != -3 {
		t.Errorf("NormalizeCurrent on an inverted channel did not invert")
	}
}

func TestSplitPoints(t *testing.T) {
	for _, p := range []int{3, 4, 5, 100, 101} {
		rise, fall := SplitPoints(p)
		if rise+fall+1 != p {
			t.Errorf("SplitPoints(%d) = %d, %d", p, rise, fall)
		}
		if rise < 1 || fall < 1 {
			t.Errorf("SplitPoints(%d) left an empty half", p)
		}
	}
}
