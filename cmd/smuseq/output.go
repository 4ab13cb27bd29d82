package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/smuseq/pkg/derive"
	"github.com/charlie0129/smuseq/pkg/status"
	"github.com/charlie0129/smuseq/pkg/types"
)

// report prints a finished run and turns a non-OK code into the command's
// error. Degraded runs print a warning but still exit 0.
func report(cmd *cobra.Command, run *types.Run, err error) error {
	if run == nil {
		return err
	}

	if jsonOutput {
		b, merr := json.MarshalIndent(run, "", "  ")
		if merr != nil {
			return merr
		}
		cmd.Println(string(b))
	} else {
		printRun(cmd, run)
	}

	if run.Code.Class() == status.ClassOK || run.Code.Class() == status.ClassDegraded {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("program finished with %s", run.Code)
	}
	return err
}

func printRun(cmd *cobra.Command, run *types.Run) {
	cmd.Printf("%s %s on %v: %s\n", bold("Run %s", run.ID), run.Kind, run.Channels, code2Text(run.Code))
	if run.Message != "" {
		cmd.Printf("  %s\n", run.Message)
	}

	res := run.Result
	if res == nil {
		return
	}
	if o := res.Outcome(); o != nil {
		cmd.Printf("  Last phase: %s\n", o.Phase)
		cmd.Printf("  Took: %s\n", bold("%s", o.Duration.Round(time.Microsecond)))
		for _, w := range o.Warnings {
			cmd.Printf("  Adjusted: %v\n", w)
		}
	}

	switch {
	case res.Monitor != nil:
		m := res.Monitor
		cmd.Printf("  Samples recorded: %s (buffer cursor %d)\n", bold("%d", m.Recorded), m.Cursor)
		cmd.Printf("  Compliance hits: %s\n", bold("%d", m.ComplianceHits))
		if m.VoltageFallbacks > 0 {
			cmd.Printf("  Voltage read-back fallbacks: %s\n", bold("%d", m.VoltageFallbacks))
		}
		if n := len(m.Samples); n > 0 {
			last := m.Samples[n-1]
			cmd.Printf("  Last sample: %s\n", bold("%g V, %g A", last.Voltage, last.Current))
		}
	case res.Pulse != nil:
		p := res.Pulse
		cmd.Printf("  Peak: %s\n", bold("%g V, %g A", p.PeakVoltage, p.PeakCurrent))
		cmd.Printf("  Resistance: %s\n", bold("%s", ohms(p.Resistance)))
	case res.Sweep != nil:
		s := res.Sweep
		cmd.Printf("  Points reported: %s\n", bold("%d", len(s.Voltage)))
		for i := range s.Voltage {
			cmd.Printf("    %10.6fs  %+.6f V  %+.6e A\n", s.Elapsed[i], s.Voltage[i], s.Current[i])
		}
	}
}

func ohms(r derive.Resistance) string {
	if !r.Defined {
		return "undefined"
	}
	return fmt.Sprintf("%g Ω", r.Ohms)
}

func printChannel(cmd *cobra.Command, ch types.ChannelInfo) {
	role := string(ch.Role)
	if role == "" {
		role = "-"
	}
	cmd.Printf("%s (%s)\n", bold("%s", ch.Name), role)
	cmd.Printf("  Max voltage: %s\n", bold("%g V", ch.Limits.MaxVoltage))
	cmd.Printf("  Max current: %s\n", bold("%g A", ch.Limits.MaxCurrent))
	cmd.Printf("  Safe current limit: %s\n", bold("%g A", ch.Limits.SafeCurrentLimit))
	cmd.Printf("  Slew per volt: %s\n", bold("%s", ch.Limits.SlewPerVolt))
	cmd.Printf("  Min pulse width: %s\n", bold("%s", ch.Limits.MinPulseWidth))
	cmd.Printf("  Inverted current: %s\n", bool2Text(ch.Inverted))
	cmd.Printf("  Busy: %s\n", bool2Text(ch.Busy))
}
