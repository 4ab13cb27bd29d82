package sequencer

import (
	"context"

	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/status"
)

// Result holds the result of whichever program variant ran.
type Result struct {
	Kind    program.Kind   `json:"kind"`
	Code    status.Code    `json:"code"`
	Monitor *MonitorResult `json:"monitor,omitempty"`
	Pulse   *PulseResult   `json:"pulse,omitempty"`
	Sweep   *SweepResult   `json:"sweep,omitempty"`
}

// Outcome returns the shared part of the variant result.
func (r *Result) Outcome() *Outcome {
	switch {
	case r.Monitor != nil:
		return &r.Monitor.Outcome
	case r.Pulse != nil:
		return &r.Pulse.Outcome
	case r.Sweep != nil:
		return &r.Sweep.Outcome
	default:
		return nil
	}
}

// Run checks the program envelope and dispatches to its variant. obs is only
// used by monitor programs.
func (s *Sequencer) Run(ctx context.Context, p program.Program, obs Observer) (*Result, error) {
	res := &Result{Kind: p.Kind}
	if err := p.Check(); err != nil {
		res.Code = status.CodeOf(err)
		return res, err
	}

	var err error
	switch p.Kind {
	case program.KindMonitor:
		res.Monitor, err = s.RunMonitor(ctx, *p.Monitor, MonitorOptions{Observer: obs})
	case program.KindPulse:
		res.Pulse, err = s.RunPulse(ctx, *p.Pulse)
	case program.KindSweep:
		res.Sweep, err = s.RunSweep(ctx, *p.Sweep, nil)
	default:
		// Check rejects unknown kinds.
		err = status.New(status.CodeInvalidProgram, "unknown program kind %q", p.Kind)
	}
	if o := res.Outcome(); o != nil {
		res.Code = o.Code
	} else {
		res.Code = status.CodeOf(err)
	}
	return res, err
}
