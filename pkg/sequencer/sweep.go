package sequencer

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smuseq/pkg/derive"
	"github.com/charlie0129/smuseq/pkg/instrument"
	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/route"
	"github.com/charlie0129/smuseq/pkg/status"
	"github.com/charlie0129/smuseq/pkg/validate"
)

// SweepBuffers are caller-owned raw outputs of a sweep. Each slice must hold
// exactly the program's point count.
type SweepBuffers struct {
	Forced  []float64
	Voltage []float64
	Current []float64
	Elapsed []float64
}

func (b *SweepBuffers) sizes() []int {
	if b == nil {
		return nil
	}
	return []int{len(b.Forced), len(b.Voltage), len(b.Current), len(b.Elapsed)}
}

func newSweepBuffers(points int) *SweepBuffers {
	return &SweepBuffers{
		Forced:  make([]float64, points),
		Voltage: make([]float64, points),
		Current: make([]float64, points),
		Elapsed: make([]float64, points),
	}
}

// SweepResult describes a finished sweep. Voltage, Current and Elapsed all
// hold Points entries: the corrected device voltage, the sign-normalized
// current and the seconds since the rise started.
type SweepResult struct {
	Outcome

	Program program.Sweep `json:"program"`
	Points  int           `json:"points"`
	Voltage []float64     `json:"voltage"`
	Current []float64     `json:"current"`
	Elapsed []float64     `json:"elapsed"`

	// Raw hardware outputs, including the unreported final slot.
	Raw *SweepBuffers `json:"-"`
}

// RunSweep runs a triangle Start -> Peak -> Start on the high side channel
// with the low side held at 0 V, measuring current on the channel named by
// the program's Measure role.
//
// The rise and the fall share the peak sample. The slot after the fall's
// last step is not reported, so a program of P points yields P-1 entries.
// When the program asks for routing, the lease brackets the whole sweep.
func (s *Sequencer) RunSweep(ctx context.Context, p program.Sweep, bufs *SweepBuffers) (res *SweepResult, err error) {
	res = &SweepResult{
		Outcome: newOutcome(program.KindSweep, logrus.Fields{"high": p.HighChannel, "low": p.LowChannel}),
		Program: p,
	}
	defer res.finish()

	resolved, err := s.routes.Resolve(
		route.Binding{Role: program.RoleHigh, Name: p.HighChannel},
		route.Binding{Role: program.RoleLow, Name: p.LowChannel},
	)
	if err != nil {
		return res, res.fail(err)
	}
	high, low := resolved[0].Channel, resolved[1].Channel

	p, res.Warnings, err = validate.Sweep(p, high.Limits(), low.Limits(), bufs.sizes()...)
	if err != nil {
		return res, res.fail(err)
	}
	res.Program = p

	if bufs == nil {
		bufs = newSweepBuffers(p.Points)
	}
	res.Raw = bufs

	measure := high
	if p.Measure == program.RoleLow {
		measure = low
	}

	lease, err := s.acquire(ctx, &res.Outcome, p.Route, high, low)
	if err != nil {
		// The switch-in may have touched hardware before failing.
		park(res.log, high, low)
		res.enter(PhaseIdle)
		return res, err
	}
	defer release(&res.Outcome, lease, &err)

	defer func() {
		res.enter(PhaseFinalize)
		park(res.log, high, low)
		res.enter(PhaseIdle)
	}()

	res.enter(PhaseInitialize)
	for _, ch := range []instrument.Channel{high, low} {
		if err := configure(ch, p.Compliance, p.CurrentRange, 0); err != nil {
			return res, res.fail(err)
		}
	}
	for _, ch := range []instrument.Channel{high, low} {
		if err := ch.ForceVoltage(0); err != nil {
			return res, res.fail(hardwareErr(status.CodeForceFailed, err, ch, "failed to initialize at 0V"))
		}
	}

	rise, fall := derive.SplitPoints(p.Points)

	res.enter(PhaseRiseSweep)
	if err := s.routes.Instrument().Sweep(s.request(p, high, measure, p.Start, p.Peak, bufs, 0, rise+1)); err != nil {
		return res, res.fail(hardwareErr(status.CodeSweepFailed, err, high, "rise sweep %gV -> %gV failed", p.Start, p.Peak))
	}
	riseEnd := bufs.Elapsed[rise]

	if p.Hold > 0 {
		res.enter(PhaseHold)
		_ = sleep(context.WithoutCancel(ctx), p.Hold.D())
	}

	res.enter(PhaseFallSweep)
	if err := s.routes.Instrument().Sweep(s.request(p, high, measure, p.Peak, p.Start, bufs, rise, fall+1)); err != nil {
		return res, res.fail(hardwareErr(status.CodeSweepFailed, err, high, "fall sweep %gV -> %gV failed", p.Peak, p.Start))
	}
	offset := riseEnd + p.Hold.D().Seconds()
	for i := rise; i < p.Points; i++ {
		bufs.Elapsed[i] += offset
	}

	n := p.Points - 1
	res.Points = n
	res.Voltage = make([]float64, n)
	if err := derive.CorrectForced(bufs.Forced[:n], bufs.Voltage[:n], res.Voltage); err != nil {
		return res, res.fail(err)
	}
	derive.NormalizeCurrents(measure.Inverted(), bufs.Current)
	res.Current = bufs.Current[:n]
	res.Elapsed = bufs.Elapsed[:n]

	res.log.WithFields(logrus.Fields{
		"points":  n,
		"measure": measure.Name(),
	}).Debug("sweep collected")
	return res, nil
}

// request covers points slots of bufs starting at off.
func (s *Sequencer) request(p program.Sweep, force, measure instrument.Channel, from, to float64, bufs *SweepBuffers, off, points int) instrument.SweepRequest {
	return instrument.SweepRequest{
		Force:   force,
		Measure: measure,
		From:    from,
		To:      to,
		Points:  points,
		Step:    p.StepTime.D(),
		Rise:    p.RiseTime.D(),
		Forced:  bufs.Forced[off : off+points],
		Voltage: bufs.Voltage[off : off+points],
		Current: bufs.Current[off : off+points],
		Elapsed: bufs.Elapsed[off : off+points],
	}
}
