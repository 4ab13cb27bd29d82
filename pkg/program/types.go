package program

import (
	"time"

	"github.com/charlie0129/smuseq/pkg/status"
)

// Version is the only program record version this build understands.
const Version = 1

// Kind selects the program variant.
type Kind string

const (
	KindMonitor Kind = "monitor"
	KindPulse   Kind = "pulse"
	KindSweep   Kind = "sweep"
)

// Role names which side of a two-channel loop performs the measurement.
type Role string

const (
	RoleHigh Role = "high"
	RoleLow  Role = "low"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleHigh || r == RoleLow
}

// Duration is a time.Duration that reads and writes Go duration strings
// ("100ms", "20ns") in every program file format.
type Duration time.Duration

// D converts back to time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Monitor holds a channel at a fixed bias and samples it periodically.
type Monitor struct {
	Channel string  `json:"channel" yaml:"channel" toml:"channel"`
	Bias    float64 `json:"bias" yaml:"bias" toml:"bias"`
	// Interval is the sleep between samples; raised to 1ms at minimum.
	Interval Duration `json:"interval" yaml:"interval" toml:"interval"`
	// Settle is the wait between forcing and measuring.
	Settle      Duration `json:"settle" yaml:"settle" toml:"settle"`
	Integration Duration `json:"integration" yaml:"integration" toml:"integration"`
	// SampleLimit of 0 runs until the context is cancelled.
	SampleLimit  int     `json:"sampleLimit" yaml:"sampleLimit" toml:"sampleLimit"`
	CurrentLimit float64 `json:"currentLimit" yaml:"currentLimit" toml:"currentLimit"`
	// CurrentRange of 0 selects auto range.
	CurrentRange float64 `json:"currentRange" yaml:"currentRange" toml:"currentRange"`
	// MeasureVoltage records the read-back voltage instead of the commanded bias.
	MeasureVoltage bool `json:"measureVoltage" yaml:"measureVoltage" toml:"measureVoltage"`
	// Capacity of the circular sample buffer.
	Capacity int `json:"capacity" yaml:"capacity" toml:"capacity"`
}

// Pulse fires one pulse between a pre-bias and a post-bias level.
type Pulse struct {
	Channel   string   `json:"channel" yaml:"channel" toml:"channel"`
	PreBias   float64  `json:"preBias" yaml:"preBias" toml:"preBias"`
	PreHold   Duration `json:"preHold" yaml:"preHold" toml:"preHold"`
	Amplitude float64  `json:"amplitude" yaml:"amplitude" toml:"amplitude"`
	Width     Duration `json:"width" yaml:"width" toml:"width"`
	// RiseTime of 0 leaves the edge to the hardware default.
	RiseTime Duration `json:"riseTime" yaml:"riseTime" toml:"riseTime"`
	PostBias float64  `json:"postBias" yaml:"postBias" toml:"postBias"`
	PostHold Duration `json:"postHold" yaml:"postHold" toml:"postHold"`
	// Compliance of 0 resolves to the channel's safe current limit.
	Compliance   float64 `json:"compliance" yaml:"compliance" toml:"compliance"`
	CurrentRange float64 `json:"currentRange" yaml:"currentRange" toml:"currentRange"`
	// Route switches the auxiliary routing path to the pulse pathway for the run.
	Route bool `json:"route" yaml:"route" toml:"route"`
}

// Sweep runs a triangle Start -> Peak -> Start on the high side channel while
// the low side channel is held at 0 V.
type Sweep struct {
	HighChannel string   `json:"highChannel" yaml:"highChannel" toml:"highChannel"`
	LowChannel  string   `json:"lowChannel" yaml:"lowChannel" toml:"lowChannel"`
	Start       float64  `json:"start" yaml:"start" toml:"start"`
	Peak        float64  `json:"peak" yaml:"peak" toml:"peak"`
	Points      int      `json:"points" yaml:"points" toml:"points"`
	StepTime    Duration `json:"stepTime" yaml:"stepTime" toml:"stepTime"`
	// Hold keeps the peak level between the rise and the fall.
	Hold         Duration `json:"hold" yaml:"hold" toml:"hold"`
	RiseTime     Duration `json:"riseTime" yaml:"riseTime" toml:"riseTime"`
	Compliance   float64  `json:"compliance" yaml:"compliance" toml:"compliance"`
	CurrentRange float64  `json:"currentRange" yaml:"currentRange" toml:"currentRange"`
	Measure      Role     `json:"measure" yaml:"measure" toml:"measure"`
	Route        bool     `json:"route" yaml:"route" toml:"route"`
}

// Program is the versioned envelope. Exactly one variant matching Kind is set.
type Program struct {
	Version int      `json:"version" yaml:"version" toml:"version"`
	Kind    Kind     `json:"kind" yaml:"kind" toml:"kind"`
	Monitor *Monitor `json:"monitor,omitempty" yaml:"monitor,omitempty" toml:"monitor,omitempty"`
	Pulse   *Pulse   `json:"pulse,omitempty" yaml:"pulse,omitempty" toml:"pulse,omitempty"`
	Sweep   *Sweep   `json:"sweep,omitempty" yaml:"sweep,omitempty" toml:"sweep,omitempty"`
}

func ForMonitor(m Monitor) Program { return Program{Version: Version, Kind: KindMonitor, Monitor: &m} }
func ForPulse(p Pulse) Program     { return Program{Version: Version, Kind: KindPulse, Pulse: &p} }
func ForSweep(s Sweep) Program     { return Program{Version: Version, Kind: KindSweep, Sweep: &s} }

// Check rejects structurally incomplete programs with CodeInvalidProgram.
func (p *Program) Check() error {
	if p.Version != Version {
		return status.New(status.CodeInvalidProgram, "unsupported program version %d, want %d", p.Version, Version)
	}

	set := 0
	for _, v := range []bool{p.Monitor != nil, p.Pulse != nil, p.Sweep != nil} {
		if v {
			set++
		}
	}
	if set != 1 {
		return status.New(status.CodeInvalidProgram, "exactly one program variant must be set, got %d", set)
	}

	switch p.Kind {
	case KindMonitor:
		if p.Monitor == nil {
			return status.New(status.CodeInvalidProgram, "kind %s without monitor section", p.Kind)
		}
		if p.Monitor.Channel == "" {
			return status.New(status.CodeInvalidProgram, "monitor: channel is required")
		}
	case KindPulse:
		if p.Pulse == nil {
			return status.New(status.CodeInvalidProgram, "kind %s without pulse section", p.Kind)
		}
		if p.Pulse.Channel == "" {
			return status.New(status.CodeInvalidProgram, "pulse: channel is required")
		}
	case KindSweep:
		if p.Sweep == nil {
			return status.New(status.CodeInvalidProgram, "kind %s without sweep section", p.Kind)
		}
		if p.Sweep.HighChannel == "" || p.Sweep.LowChannel == "" {
			return status.New(status.CodeInvalidProgram, "sweep: highChannel and lowChannel are required")
		}
	default:
		return status.New(status.CodeInvalidProgram, "unknown program kind %q", p.Kind)
	}

	return nil
}

// Channels lists the channel names a checked program drives.
func (p *Program) Channels() []string {
	switch {
	case p.Monitor != nil:
		return []string{p.Monitor.Channel}
	case p.Pulse != nil:
		return []string{p.Pulse.Channel}
	case p.Sweep != nil:
		return []string{p.Sweep.HighChannel, p.Sweep.LowChannel}
	default:
		return nil
	}
}
