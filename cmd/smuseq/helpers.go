package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smuseq/pkg/config"
	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/route"
	"github.com/charlie0129/smuseq/pkg/sequencer"
	"github.com/charlie0129/smuseq/pkg/status"
	"github.com/charlie0129/smuseq/pkg/types"
	"github.com/charlie0129/smuseq/pkg/version"
)

var (
	// local runs programs in-process against the simulated fixture.
	local = false
	// stream prints every monitor sample as a DATA line.
	stream = false
	// jsonOutput prints the raw run record.
	jsonOutput = false
)

func getVersion() (clientVersion, daemonVersion string, err error) {
	daemonVersion, err = apiClient.GetVersion()
	if err != nil {
		return version.Version, "", err
	}
	return version.Version, daemonVersion, nil
}

func dur(d time.Duration) program.Duration {
	return program.Duration(d)
}

// execute runs p either through the daemon or in-process.
func execute(p program.Program) (*types.Run, error) {
	if !local {
		run, err := apiClient.RunProgram(p)
		if run != nil && stream && run.Result != nil && run.Result.Monitor != nil {
			obs := sequencer.DataLines(os.Stdout)
			for _, s := range run.Result.Monitor.Samples {
				obs(s)
			}
		}
		return run, err
	}

	c, err := config.NewFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logrus.WithFields(c.LogrusFields()).Debug("running in-process against the simulated fixture")

	sim := config.NewSim(c)
	seq := sequencer.New(route.NewController(sim))

	// An unbounded monitor stops on Ctrl-C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var obs sequencer.Observer
	if stream {
		obs = sequencer.DataLines(os.Stdout)
	}

	started := time.Now()
	res, err := seq.Run(ctx, p, obs)
	run := &types.Run{
		ID:         "local",
		Kind:       p.Kind,
		Channels:   p.Channels(),
		Code:       status.CodeOf(err),
		StartedAt:  started.Round(0),
		FinishedAt: time.Now().Round(0),
		Result:     res,
	}
	if res != nil {
		run.Code = res.Code
	}
	if err != nil {
		run.Message = err.Error()
	}
	return run, err
}

func code2Text(c status.Code) string {
	switch c.Class() {
	case status.ClassOK:
		return color.New(color.Bold, color.FgGreen).Sprint(c.String())
	case status.ClassDegraded, status.ClassCancelled:
		return color.New(color.Bold, color.FgYellow).Sprint(c.String())
	default:
		return color.New(color.Bold, color.FgRed).Sprint(c.String())
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
