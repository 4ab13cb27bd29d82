package sequencer

import (
	"context"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smuseq/pkg/buffer"
	"github.com/charlie0129/smuseq/pkg/derive"
	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/route"
	"github.com/charlie0129/smuseq/pkg/status"
	"github.com/charlie0129/smuseq/pkg/validate"
)

// MonitorOptions are the caller-side knobs of a monitor run.
type MonitorOptions struct {
	// Buffer receives the samples. When nil a buffer of the program's
	// capacity is allocated. A supplied buffer overrides the capacity.
	Buffer *buffer.Buffer
	// Observer is called after every recorded sample.
	Observer Observer
}

// MonitorResult describes a finished monitor run.
type MonitorResult struct {
	Outcome

	Program          program.Monitor `json:"program"`
	Recorded         int             `json:"recorded"`
	Cursor           int             `json:"cursor"`
	ComplianceHits   int             `json:"complianceHits"`
	VoltageFallbacks int             `json:"voltageFallbacks"`
	Samples          []buffer.Sample `json:"samples"`

	Buffer *buffer.Buffer `json:"-"`
}

// RunMonitor holds a channel at a constant bias and records samples into a
// circular buffer until the sample limit is reached or ctx is cancelled.
//
// Cancellation is checked at the top of every iteration; an in-flight
// hardware call is never interrupted. Cancelling an unbounded run
// (SampleLimit 0) is its normal way to stop and is not an error.
func (s *Sequencer) RunMonitor(ctx context.Context, p program.Monitor, opts MonitorOptions) (*MonitorResult, error) {
	res := &MonitorResult{
		Outcome: newOutcome(program.KindMonitor, logrus.Fields{"channel": p.Channel}),
		Program: p,
	}
	defer res.finish()

	resolved, err := s.routes.Resolve(route.Binding{Name: p.Channel})
	if err != nil {
		return res, res.fail(err)
	}
	ch := resolved[0].Channel

	if opts.Buffer != nil {
		p.Capacity = opts.Buffer.Capacity()
	}
	p, res.Warnings, err = validate.Monitor(p, ch.Limits())
	if err != nil {
		return res, res.fail(err)
	}
	res.Program = p

	buf := opts.Buffer
	if buf == nil {
		if buf, err = buffer.New(p.Capacity); err != nil {
			return res, res.fail(err)
		}
	}
	res.Buffer = buf
	defer func() {
		res.Cursor = buf.Cursor()
		res.Samples = buf.ReadAll()
	}()

	defer func() {
		park(res.log, ch)
		res.enter(PhaseStopped)
	}()

	res.enter(PhaseConfiguring)
	if err := configure(ch, p.CurrentLimit, p.CurrentRange, p.Integration.D()); err != nil {
		return res, res.fail(err)
	}

	threshold := validate.ComplianceFraction * p.CurrentLimit
	for n := 0; p.SampleLimit == 0 || n < p.SampleLimit; n++ {
		if err := ctx.Err(); err != nil {
			if p.SampleLimit == 0 {
				res.log.WithField("recorded", res.Recorded).Debug("unbounded monitor stopped")
				return res, nil
			}
			return res, res.fail(status.Wrap(status.CodeCancelled, err, "monitor stopped after %d of %d samples", n, p.SampleLimit))
		}

		res.enter(PhaseForcing)
		if err := ch.ForceVoltage(p.Bias); err != nil {
			return res, res.fail(hardwareErr(status.CodeForceFailed, err, ch, "failed to force %gV", p.Bias))
		}

		res.enter(PhaseSettling)
		_ = sleep(context.WithoutCancel(ctx), p.Settle.D())

		res.enter(PhaseMeasuring)
		i, err := ch.MeasureCurrent()
		if err != nil {
			return res, res.fail(hardwareErr(status.CodeMeasureCurrentFailed, err, ch, "failed to measure current"))
		}
		i = derive.NormalizeCurrent(ch.Inverted(), i)
		v := p.Bias
		if p.MeasureVoltage {
			mv, err := ch.MeasureVoltage()
			if err != nil {
				res.VoltageFallbacks++
				res.log.WithError(err).WithField("bias", p.Bias).Warn("voltage measurement failed, recording the bias instead")
			} else {
				v = mv
			}
		}
		if math.Abs(i) >= threshold {
			res.ComplianceHits++
			res.log.WithFields(logrus.Fields{
				"current": i,
				"limit":   p.CurrentLimit,
			}).Warn("channel is at its current limit")
		}

		res.enter(PhaseRecording)
		sample := buffer.Sample{Time: now(), Voltage: v, Current: i}
		buf.Write(sample)
		res.Recorded++
		res.log.WithFields(logrus.Fields{
			"n":       n,
			"voltage": v,
			"current": i,
		}).Debug("sample recorded")
		if opts.Observer != nil {
			opts.Observer(sample)
		}

		if p.SampleLimit == 0 || n+1 < p.SampleLimit {
			_ = sleep(ctx, p.Interval.D())
		}
	}
	return res, nil
}
