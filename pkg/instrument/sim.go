package instrument

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Op names a hardware call recorded by Sim.
type Op string

const (
	OpSetCurrentLimit    Op = "SetCurrentLimit"
	OpSetCurrentRange    Op = "SetCurrentRange"
	OpSetIntegrationTime Op = "SetIntegrationTime"
	OpForceVoltage       Op = "ForceVoltage"
	OpMeasureCurrent     Op = "MeasureCurrent"
	OpMeasureVoltage     Op = "MeasureVoltage"
	OpPulse              Op = "Pulse"
	OpSweep              Op = "Sweep"
	OpSetRoute           Op = "SetRoute"
)

// Call is one recorded hardware call.
type Call struct {
	Op      Op
	Channel string
	Value   float64
	Path    Path
}

// CallHook lets tests inject failures. A non-nil error fails the call before
// it changes any simulated state.
type CallHook func(c Call) error

// SimChannelConfig describes one simulated channel.
type SimChannelConfig struct {
	Name   string
	Limits Limits
	// Inverted channels report current with the opposite sign, like the low
	// side terminal of a two-channel loop.
	Inverted bool
}

// Sim is an in-memory fixture: a resistive device of Load ohms in a loop with
// Series ohms of path resistance. Current through the loop is
// forced/(Load+Series), clamped at the programmed compliance. A channel reads
// back the device voltage (forced minus the series drop); a sweep reports the
// series drop as its measured voltage.
type Sim struct {
	Load   float64
	Series float64
	OnCall CallHook

	mu       sync.Mutex
	channels map[string]*simChannel
	calls    []Call
}

var _ Instrument = &Sim{}

// NewSim returns a simulated instrument with the given channels.
func NewSim(load, series float64, channels ...SimChannelConfig) *Sim {
	s := &Sim{
		Load:     load,
		Series:   series,
		channels: make(map[string]*simChannel, len(channels)),
	}
	for _, c := range channels {
		if c.Limits == (Limits{}) {
			c.Limits = DefaultLimits()
		}
		s.channels[c.Name] = &simChannel{sim: s, cfg: c, route: PathSMU}
	}
	return s
}

func (s *Sim) record(c Call) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	hook := s.OnCall
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"op":      c.Op,
		"channel": c.Channel,
		"value":   c.Value,
	}).Trace("simulated hardware call")

	if hook != nil {
		return hook(c)
	}
	return nil
}

// Calls returns a copy of every recorded call in order.
func (s *Sim) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Call(nil), s.calls...)
}

// ResetCalls clears the call record.
func (s *Sim) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = nil
}

// Count reports how many calls matched op and channel with exactly value.
func (s *Sim) Count(op Op, channel string, value float64) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Op == op && c.Channel == channel && c.Value == value {
			n++
		}
	}
	return n
}

// Voltage returns the level a channel is currently forcing.
func (s *Sim) Voltage(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.channels[name]; ok {
		return ch.forced
	}
	return math.NaN()
}

// Route returns the routing path a channel is switched to.
func (s *Sim) Route(name string) Path {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.channels[name]; ok {
		return ch.route
	}
	return ""
}

func (s *Sim) Lookup(name string) (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return ch, nil
}

func (s *Sim) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Sim) SetRoute(ch Channel, p Path) error {
	if err := s.record(Call{Op: OpSetRoute, Channel: ch.Name(), Path: p}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.channels[ch.Name()]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch.Name())
	}
	sc.route = p
	return nil
}

func (s *Sim) Sweep(req SweepRequest) error {
	if err := s.record(Call{Op: OpSweep, Channel: req.Force.Name(), Value: req.To}); err != nil {
		return err
	}
	if req.Points < 2 {
		return fmt.Errorf("sweep needs at least 2 points, got %d", req.Points)
	}
	for _, buf := range [][]float64{req.Forced, req.Voltage, req.Current, req.Elapsed} {
		if len(buf) < req.Points {
			return fmt.Errorf("sweep buffer holds %d entries, need %d", len(buf), req.Points)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	force, ok := s.channels[req.Force.Name()]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, req.Force.Name())
	}
	measure, ok := s.channels[req.Measure.Name()]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, req.Measure.Name())
	}

	step := (req.To - req.From) / float64(req.Points-1)
	for i := 0; i < req.Points; i++ {
		v := req.From + step*float64(i)
		if i == req.Points-1 {
			v = req.To
		}
		current := s.loopCurrent(v, force.limit)
		req.Forced[i] = v
		req.Voltage[i] = current * s.Series
		req.Current[i] = measure.sign() * current
		req.Elapsed[i] = (time.Duration(i) * req.Step).Seconds()
	}
	force.forced = req.To
	return nil
}

// loopCurrent must be called with s.mu held.
func (s *Sim) loopCurrent(v, limit float64) float64 {
	total := s.Load + s.Series
	if total <= 0 {
		total = math.SmallestNonzeroFloat64
	}
	current := v / total
	if limit > 0 && math.Abs(current) > limit {
		current = math.Copysign(limit, current)
	}
	return current
}

type simChannel struct {
	sim *Sim
	cfg SimChannelConfig

	forced      float64
	limit       float64
	rng         float64
	integration time.Duration
	route       Path
}

var (
	_ Channel = &simChannel{}
	_ Pulser  = &simChannel{}
)

func (c *simChannel) sign() float64 {
	if c.cfg.Inverted {
		return -1
	}
	return 1
}

func (c *simChannel) Name() string   { return c.cfg.Name }
func (c *simChannel) Limits() Limits { return c.cfg.Limits }
func (c *simChannel) Inverted() bool { return c.cfg.Inverted }

func (c *simChannel) SetCurrentLimit(amps float64) error {
	if err := c.sim.record(Call{Op: OpSetCurrentLimit, Channel: c.cfg.Name, Value: amps}); err != nil {
		return err
	}
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	c.limit = amps
	return nil
}

func (c *simChannel) SetCurrentRange(amps float64) error {
	if err := c.sim.record(Call{Op: OpSetCurrentRange, Channel: c.cfg.Name, Value: amps}); err != nil {
		return err
	}
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	c.rng = amps
	return nil
}

func (c *simChannel) SetIntegrationTime(d time.Duration) error {
	if err := c.sim.record(Call{Op: OpSetIntegrationTime, Channel: c.cfg.Name, Value: d.Seconds()}); err != nil {
		return err
	}
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	c.integration = d
	return nil
}

func (c *simChannel) ForceVoltage(volts float64) error {
	if err := c.sim.record(Call{Op: OpForceVoltage, Channel: c.cfg.Name, Value: volts}); err != nil {
		return err
	}
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	c.forced = volts
	return nil
}

func (c *simChannel) MeasureCurrent() (float64, error) {
	if err := c.sim.record(Call{Op: OpMeasureCurrent, Channel: c.cfg.Name}); err != nil {
		return 0, err
	}
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	return c.sign() * c.sim.loopCurrent(c.forced, c.limit), nil
}

func (c *simChannel) MeasureVoltage() (float64, error) {
	if err := c.sim.record(Call{Op: OpMeasureVoltage, Channel: c.cfg.Name}); err != nil {
		return 0, err
	}
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	return c.forced - c.sim.loopCurrent(c.forced, c.limit)*c.sim.Series, nil
}

func (c *simChannel) Pulse(shape PulseShape) (float64, float64, error) {
	if err := c.sim.record(Call{Op: OpPulse, Channel: c.cfg.Name, Value: shape.Amplitude}); err != nil {
		return 0, 0, err
	}
	c.sim.mu.Lock()
	defer c.sim.mu.Unlock()
	current := c.sim.loopCurrent(shape.Amplitude, c.limit)
	c.forced = shape.Base
	return shape.Amplitude - current*c.sim.Series, c.sign() * current, nil
}
