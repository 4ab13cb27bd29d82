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

// PulseResult describes a finished pulse run.
type PulseResult struct {
	Outcome

	Program     program.Pulse     `json:"program"`
	PeakVoltage float64           `json:"peakVoltage"`
	PeakCurrent float64           `json:"peakCurrent"`
	Resistance  derive.Resistance `json:"resistance"`
}

// RunPulse fires a single pulse and derives the device resistance from the
// peak voltage and current captured during it.
//
// A failed peak capture is not fatal: the run continues through the
// post-bias, Resistance is derive.Zero and the result carries
// CodePulseMeasureFailed. Once started, a pulse runs to completion; ctx only
// bounds the wait for the routing path.
func (s *Sequencer) RunPulse(ctx context.Context, p program.Pulse) (res *PulseResult, err error) {
	res = &PulseResult{
		Outcome:    newOutcome(program.KindPulse, logrus.Fields{"channel": p.Channel}),
		Program:    p,
		Resistance: derive.Undefined,
	}
	defer res.finish()

	resolved, err := s.routes.Resolve(route.Binding{Name: p.Channel})
	if err != nil {
		return res, res.fail(err)
	}
	ch := resolved[0].Channel

	p, res.Warnings, err = validate.Pulse(p, ch.Limits())
	if err != nil {
		return res, res.fail(err)
	}
	res.Program = p

	pulser, ok := ch.(instrument.Pulser)
	if !ok {
		return res, res.fail(status.New(status.CodeInvalidProgram, "channel %s cannot fire pulses", ch.Name()))
	}

	lease, err := s.acquire(ctx, &res.Outcome, p.Route, ch)
	if err != nil {
		// The switch-in may have touched hardware before failing.
		park(res.log, ch)
		res.enter(PhaseIdle)
		return res, err
	}
	defer release(&res.Outcome, lease, &err)

	defer func() {
		park(res.log, ch)
		res.enter(PhaseIdle)
	}()

	// Holds are part of the waveform and are not cut short by ctx.
	hold := context.WithoutCancel(ctx)

	res.enter(PhaseConfiguring)
	if err := configure(ch, p.Compliance, p.CurrentRange, 0); err != nil {
		return res, res.fail(err)
	}

	res.enter(PhasePreBias)
	if err := ch.ForceVoltage(p.PreBias); err != nil {
		return res, res.fail(hardwareErr(status.CodeForceFailed, err, ch, "failed to force pre-bias %gV", p.PreBias))
	}
	_ = sleep(hold, p.PreHold.D())

	res.enter(PhasePulse)
	shape := instrument.PulseShape{
		Base:      p.PreBias,
		Amplitude: p.Amplitude,
		Width:     p.Width.D(),
		Rise:      p.RiseTime.D(),
	}
	var degraded error
	peakV, peakI, err := pulser.Pulse(shape)
	peakI = derive.NormalizeCurrent(ch.Inverted(), peakI)
	if err != nil {
		res.Resistance = derive.Zero
		degraded = hardwareErr(status.CodePulseMeasureFailed, err, ch, "failed to capture the pulse peak, reporting 0 Ω")
		_ = res.fail(degraded)
	} else {
		res.PeakVoltage, res.PeakCurrent = peakV, peakI
		res.Resistance = derive.Ohm(peakV, peakI)
		res.log.WithFields(logrus.Fields{
			"peakVoltage": peakV,
			"peakCurrent": peakI,
			"resistance":  res.Resistance,
		}).Debug("pulse captured")
	}

	res.enter(PhasePostBias)
	if err := ch.ForceVoltage(p.PostBias); err != nil {
		return res, res.fail(hardwareErr(status.CodeForceFailed, err, ch, "failed to force post-bias %gV", p.PostBias))
	}
	_ = sleep(hold, p.PostHold.D())

	return res, degraded
}
