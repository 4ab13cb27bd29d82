// Package sequencer drives the hardware through the three bias programs.
//
// Every run follows the same discipline: resolve channels, validate the
// program against their limits, optionally take the routing lease, then issue
// hardware calls in strict program order. Whatever happens after the first
// hardware call, each channel the run owns is commanded to 0 V exactly once
// on the way out, and a held routing lease is released after that.
//
// The sequencer is synchronous: every call blocks until the instrument
// answers, and timing between steps is realized by blocking sleeps. Callers
// that want several channels in parallel run several sequencers on disjoint
// channels.
package sequencer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smuseq/pkg/buffer"
	"github.com/charlie0129/smuseq/pkg/instrument"
	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/route"
	"github.com/charlie0129/smuseq/pkg/status"
	"github.com/charlie0129/smuseq/pkg/validate"
)

// Timing seams, replaced in tests.
var (
	sleep = func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return ctx.Err()
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	now = time.Now
)

// Phase is a state of a program's state machine.
type Phase string

const (
	PhaseIdle Phase = "Idle"

	// Monitor.
	PhaseConfiguring Phase = "Configuring"
	PhaseForcing     Phase = "Forcing"
	PhaseSettling    Phase = "Settling"
	PhaseMeasuring   Phase = "Measuring"
	PhaseRecording   Phase = "Recording"
	PhaseStopped     Phase = "Stopped"

	// Pulse.
	PhasePreBias  Phase = "PreBias"
	PhasePulse    Phase = "Pulse"
	PhasePostBias Phase = "PostBias"

	// Sweep.
	PhaseInitialize Phase = "Initialize"
	PhaseRiseSweep  Phase = "RiseSweep"
	PhaseHold       Phase = "Hold"
	PhaseFallSweep  Phase = "FallSweep"
	PhaseFinalize   Phase = "Finalize"
)

// Observer receives every recorded sample as soon as it is written.
type Observer func(s buffer.Sample)

// DataLines returns an Observer that writes "DATA <voltage> <current>" per
// sample and flushes it immediately, for a consuming process to tail.
func DataLines(w io.Writer) Observer {
	bw := bufio.NewWriter(w)
	return func(s buffer.Sample) {
		fmt.Fprintf(bw, "DATA %g %g\n", s.Voltage, s.Current)
		if err := bw.Flush(); err != nil {
			logrus.WithError(err).Debug("failed to flush data line")
		}
	}
}

// Outcome is the part of every result that describes how the run ended.
type Outcome struct {
	Code      status.Code        `json:"code"`
	Message   string             `json:"message,omitempty"`
	Phase     Phase              `json:"phase"`
	Warnings  []validate.Warning `json:"warnings,omitempty"`
	StartedAt time.Time          `json:"startedAt"`
	Duration  time.Duration      `json:"duration"`

	log *logrus.Entry
}

func newOutcome(kind program.Kind, fields logrus.Fields) Outcome {
	f := logrus.Fields{"program": kind}
	for k, v := range fields {
		f[k] = v
	}
	return Outcome{Phase: PhaseIdle, StartedAt: now(), log: logrus.WithFields(f)}
}

func (o *Outcome) enter(p Phase) {
	if o.Phase != p {
		o.log.WithFields(logrus.Fields{"from": o.Phase, "to": p}).Debug("phase change")
	}
	o.Phase = p
}

// fail records err and returns it unchanged.
func (o *Outcome) fail(err error) error {
	o.Code = status.CodeOf(err)
	o.Message = err.Error()
	switch o.Code.Class() {
	case status.ClassConfiguration:
		o.log.WithError(err).Warn("program rejected")
	case status.ClassDegraded, status.ClassCancelled:
		o.log.WithError(err).Warn("program degraded")
	default:
		o.log.WithError(err).WithField("phase", o.Phase).Error("program failed")
	}
	return err
}

func (o *Outcome) finish() {
	o.Duration = now().Sub(o.StartedAt)
	o.log.WithFields(logrus.Fields{
		"code":     o.Code,
		"phase":    o.Phase,
		"duration": o.Duration,
	}).Info("program finished")
}

// hardwareErr wraps a failed hardware call with its own status code.
func hardwareErr(code status.Code, err error, ch instrument.Channel, format string, args ...any) error {
	return status.Wrap(code, pkgerrors.Wrapf(err, "channel %s", ch.Name()), format, args...)
}

// Sequencer runs programs on the channels of one instrument.
type Sequencer struct {
	routes *route.Controller
}

// New returns a Sequencer that resolves channels and routing through routes.
func New(routes *route.Controller) *Sequencer {
	return &Sequencer{routes: routes}
}

// park commands every channel to 0 V. It is the last line of defense, so a
// failure is only logged.
func park(log *logrus.Entry, channels ...instrument.Channel) {
	for _, ch := range channels {
		if err := ch.ForceVoltage(0); err != nil {
			log.WithError(err).WithField("channel", ch.Name()).Error("failed to park channel at 0 V")
			continue
		}
		log.WithField("channel", ch.Name()).Trace("channel parked at 0 V")
	}
}

// Park commands every named channel to 0 V, skipping names the instrument
// does not know. It is used on shutdown.
func (s *Sequencer) Park(names ...string) {
	log := logrus.WithField("operation", "park")
	for _, name := range names {
		ch, err := s.routes.Instrument().Lookup(name)
		if err != nil {
			log.WithError(err).Warn("skipping unknown channel")
			continue
		}
		park(log, ch)
	}
}

// release frees a routing lease after the channels have been parked. A
// failed switch-out downgrades an otherwise successful run and replaces its
// nil error.
func release(o *Outcome, lease *route.Lease, err *error) {
	if lease == nil {
		return
	}
	if rerr := lease.Release(); rerr != nil && o.Code == status.OK {
		*err = o.fail(rerr)
	}
}

func (s *Sequencer) acquire(ctx context.Context, o *Outcome, enabled bool, channels ...instrument.Channel) (*route.Lease, error) {
	if !enabled {
		return nil, nil
	}
	lease, err := s.routes.Acquire(ctx, instrument.PathPulse, channels...)
	if err != nil {
		return nil, o.fail(err)
	}
	return lease, nil
}

func configure(ch instrument.Channel, limit, rng float64, integration time.Duration) error {
	if err := ch.SetCurrentLimit(limit); err != nil {
		return hardwareErr(status.CodeConfigureFailed, err, ch, "failed to set current limit %gA", limit)
	}
	if err := ch.SetCurrentRange(rng); err != nil {
		return hardwareErr(status.CodeConfigureFailed, err, ch, "failed to set current range %gA", rng)
	}
	if integration > 0 {
		if err := ch.SetIntegrationTime(integration); err != nil {
			return hardwareErr(status.CodeConfigureFailed, err, ch, "failed to set integration time %s", integration)
		}
	}
	return nil
}
