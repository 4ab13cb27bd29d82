package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/status"
)

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&local, "local", false, "run in-process against the simulated fixture instead of the daemon")
	f.BoolVar(&jsonOutput, "json", false, "print the run record as JSON")
}

func NewMonitorCommand() *cobra.Command {
	var (
		m           program.Monitor
		interval    time.Duration
		settle      time.Duration
		integration time.Duration
	)

	cmd := &cobra.Command{
		Use:     "monitor [channel]",
		Short:   "Hold a channel at a bias and sample it",
		GroupID: gPrograms,
		Long: `Hold a channel at a constant bias and sample (voltage, current) into a
circular buffer.

With --samples 0 the monitor runs until interrupted. Interrupting an
unbounded monitor is its normal way to stop and still reports OK.`,
		Example: `  smuseq monitor smu1 --bias 0.2 --samples 100 --interval 10ms
  smuseq monitor smu1 --bias 0.1 --samples 0 --stream --local`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m.Channel = args[0]
			m.Interval = dur(interval)
			m.Settle = dur(settle)
			m.Integration = dur(integration)

			run, err := execute(program.ForMonitor(m))
			if stream && !jsonOutput && run != nil {
				// Samples already went to stdout, keep it parseable.
				cmd.PrintErrf("%s: %s\n", run.Kind, code2Text(run.Code))
				if run.Code.Class() == status.ClassOK {
					return nil
				}
				return err
			}
			return report(cmd, run, err)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&m.Bias, "bias", 0, "bias voltage in volts")
	f.IntVar(&m.SampleLimit, "samples", 10, "number of samples to record, 0 runs until interrupted")
	f.IntVar(&m.Capacity, "capacity", 1024, "circular buffer capacity")
	f.DurationVar(&interval, "interval", 100*time.Millisecond, "sleep between samples")
	f.DurationVar(&settle, "settle", 0, "wait between forcing and the first measurement")
	f.DurationVar(&integration, "integration", 0, "measurement integration time, 0 for the instrument default")
	f.Float64Var(&m.CurrentLimit, "current-limit", 0, "compliance in amperes, 0 for the channel safe limit")
	f.Float64Var(&m.CurrentRange, "current-range", 0, "current range in amperes, 0 for auto range")
	f.BoolVar(&m.MeasureVoltage, "measure-voltage", false, "record the read-back voltage instead of the commanded bias")
	f.BoolVar(&stream, "stream", false, "print every sample as a 'DATA <volts> <amps>' line")
	addRunFlags(cmd)

	return cmd
}

func NewPulseCommand() *cobra.Command {
	var (
		p                 program.Pulse
		preHold, postHold time.Duration
		width, riseTime   time.Duration
	)

	cmd := &cobra.Command{
		Use:     "pulse [channel]",
		Short:   "Fire a single pulse and derive the device resistance",
		GroupID: gPrograms,
		Long: `Fire one pulse between a pre-bias and a post-bias level and report the
resistance derived from the peak voltage and current.

A failed peak capture still completes the pulse; the run is reported as
PULSE_MEASURE_FAILED with a resistance of 0 Ω.`,
		Example: `  smuseq pulse smu1 --amplitude 1.5 --width 10us --pre-bias 0.1 --post-bias 0.1`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Channel = args[0]
			p.PreHold = dur(preHold)
			p.PostHold = dur(postHold)
			p.Width = dur(width)
			p.RiseTime = dur(riseTime)
			run, err := execute(program.ForPulse(p))
			return report(cmd, run, err)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&p.Amplitude, "amplitude", 0, "pulse level in volts")
	f.DurationVar(&width, "width", 10*time.Microsecond, "pulse width")
	f.DurationVar(&riseTime, "rise-time", 0, "edge time, 0 for the hardware default")
	f.Float64Var(&p.PreBias, "pre-bias", 0, "level held before the pulse")
	f.DurationVar(&preHold, "pre-hold", time.Millisecond, "time at the pre-bias")
	f.Float64Var(&p.PostBias, "post-bias", 0, "level held after the pulse")
	f.DurationVar(&postHold, "post-hold", time.Millisecond, "time at the post-bias")
	f.Float64Var(&p.Compliance, "compliance", 0, "compliance in amperes, 0 for the channel safe limit")
	f.Float64Var(&p.CurrentRange, "current-range", 0, "current range in amperes, 0 for auto range")
	f.BoolVar(&p.Route, "route", false, "switch the routing path to the pulse pathway for the run")
	addRunFlags(cmd)

	return cmd
}

func NewSweepCommand() *cobra.Command {
	var (
		s                       program.Sweep
		stepTime, hold, riseDur time.Duration
		measure                 string
	)

	cmd := &cobra.Command{
		Use:     "sweep [high-channel] [low-channel]",
		Short:   "Run a triangle sweep across a two-terminal device",
		GroupID: gPrograms,
		Long: `Sweep the high side channel Start -> Peak -> Start while the low side is
held at 0 V, and report the corrected device voltage and current per point.

A sweep of N points reports N-1 entries: the rise and the fall share the
peak sample and the slot after the last fall step is not reported.

The routing path is switched to the pulse pathway around the whole sweep
unless --route=false is given.`,
		Example: `  smuseq sweep smu1 smu2 --peak 1.2 --points 101 --step-time 1ms`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s.HighChannel = args[0]
			s.LowChannel = args[1]
			s.StepTime = dur(stepTime)
			s.Hold = dur(hold)
			s.RiseTime = dur(riseDur)
			s.Measure = program.Role(measure)
			run, err := execute(program.ForSweep(s))
			return report(cmd, run, err)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&s.Start, "start", 0, "start and end level in volts")
	f.Float64Var(&s.Peak, "peak", 0, "peak level in volts")
	f.IntVar(&s.Points, "points", 101, "total number of points of the triangle")
	f.DurationVar(&stepTime, "step-time", time.Millisecond, "time per point")
	f.DurationVar(&hold, "hold", 0, "time at the peak between rise and fall")
	f.DurationVar(&riseDur, "rise-time", 0, "edge time per step, 0 for the hardware default")
	f.Float64Var(&s.Compliance, "compliance", 0, "compliance in amperes, 0 for the channel safe limit")
	f.Float64Var(&s.CurrentRange, "current-range", 0, "current range in amperes, 0 for auto range")
	f.StringVar(&measure, "measure", string(program.RoleHigh), "which side measures current (high, low)")
	f.BoolVar(&s.Route, "route", true, "switch the routing path to the pulse pathway for the whole sweep")
	addRunFlags(cmd)

	return cmd
}

func NewRunCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:     "run -f [program-file]",
		Short:   "Run a program file",
		GroupID: gPrograms,
		Long: `Run a program stored in a JSON, YAML or TOML file. The file holds a
versioned envelope with exactly one of monitor, pulse or sweep set.`,
		Example: `  smuseq run -f read-pulse.yaml
  smuseq run -f iv.toml --local --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := program.LoadFile(file)
			if err != nil {
				return err
			}
			run, err := execute(*p)
			return report(cmd, run, err)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "program file (.json, .yaml, .yml, .toml)")
	_ = cmd.MarkFlagRequired("file")
	cmd.Flags().BoolVar(&stream, "stream", false, "print every monitor sample as a 'DATA <volts> <amps>' line")
	addRunFlags(cmd)

	return cmd
}
