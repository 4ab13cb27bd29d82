package instrument

import (
	"errors"
	"time"
)

const (
	// MinPulseWidth is the shortest pulse or hold the pulse hardware can time.
	MinPulseWidth = 20 * time.Nanosecond
	// DefaultSlewPerVolt corresponds to the default 500 µs/V slew limit.
	DefaultSlewPerVolt = 500 * time.Microsecond
	// DefaultMaxCurrent is the current range ceiling of a pulse-capable channel.
	DefaultMaxCurrent = 0.01
	// DefaultMaxVoltage is the absolute voltage rating of a channel.
	DefaultMaxVoltage = 10.0
	// DefaultSafeCurrentLimit is used when a program asks for zero compliance.
	DefaultSafeCurrentLimit = 1e-3
)

// ErrUnknownChannel is returned by Lookup when the name is absent from the
// active hardware configuration.
var ErrUnknownChannel = errors.New("channel not present in hardware configuration")

// Limits are the absolute ratings of a channel.
type Limits struct {
	MaxVoltage       float64       `json:"maxVoltage"`
	MaxCurrent       float64       `json:"maxCurrent"`
	SafeCurrentLimit float64       `json:"safeCurrentLimit"`
	SlewPerVolt      time.Duration `json:"slewPerVolt"`
	MinPulseWidth    time.Duration `json:"minPulseWidth"`
}

// DefaultLimits returns the ratings assumed when a fixture does not say otherwise.
func DefaultLimits() Limits {
	return Limits{
		MaxVoltage:       DefaultMaxVoltage,
		MaxCurrent:       DefaultMaxCurrent,
		SafeCurrentLimit: DefaultSafeCurrentLimit,
		SlewPerVolt:      DefaultSlewPerVolt,
		MinPulseWidth:    MinPulseWidth,
	}
}

// Path is a position of the shared auxiliary routing path.
type Path string

const (
	// PathSMU routes the channel through the general source-measure pathway.
	PathSMU Path = "smu"
	// PathPulse routes the channel through the pulse-optimized pathway.
	PathPulse Path = "pulse"
)

// Channel is a handle to one source-measure unit bound to live hardware.
// Every call blocks until the instrument responds.
type Channel interface {
	Name() string
	Limits() Limits
	// Inverted reports whether the channel reads loop current with the
	// opposite sign to the nominal bias direction.
	Inverted() bool

	SetCurrentLimit(amps float64) error
	// SetCurrentRange selects a fixed range; 0 selects auto range.
	SetCurrentRange(amps float64) error
	SetIntegrationTime(d time.Duration) error

	ForceVoltage(volts float64) error
	MeasureCurrent() (float64, error)
	MeasureVoltage() (float64, error)
}

// PulseShape describes a single voltage pulse. The channel leaves Base,
// jumps to Amplitude for Width and returns to Base.
type PulseShape struct {
	Base      float64
	Amplitude float64
	Width     time.Duration
	// Rise is the edge time; 0 lets the hardware pick its default.
	Rise time.Duration
}

// Pulser is implemented by channels that can fire a pulse and capture the
// peak voltage and current simultaneously.
type Pulser interface {
	Pulse(shape PulseShape) (peakVoltage, peakCurrent float64, err error)
}

// SweepRequest asks the hardware for a linear staircase from From to To in
// Points samples. The hardware fills the caller-owned slices, each of which
// must hold at least Points entries.
type SweepRequest struct {
	Force   Channel
	Measure Channel
	From    float64
	To      float64
	Points  int
	Step    time.Duration
	Rise    time.Duration

	Forced  []float64
	Voltage []float64
	Current []float64
	Elapsed []float64
}

// Instrument is the hardware session that owns the channels.
type Instrument interface {
	// Lookup resolves a logical channel name. It never applies a stimulus.
	Lookup(name string) (Channel, error)
	// Channels lists every configured channel name.
	Channels() []string
	// SetRoute switches the auxiliary routing path for a channel.
	SetRoute(ch Channel, p Path) error
	// Sweep runs a hardware staircase sweep.
	Sweep(req SweepRequest) error
}
