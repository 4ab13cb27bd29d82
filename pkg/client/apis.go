package client

import (
	"encoding/json"
	"errors"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/smuseq/pkg/config"
	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/status"
	"github.com/charlie0129/smuseq/pkg/types"
)

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}

	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

func (c *Client) GetChannels() ([]types.ChannelInfo, error) {
	ret, err := c.Get("/channels")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get channels")
	}

	var infos []types.ChannelInfo
	if err := json.Unmarshal([]byte(ret), &infos); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal channels")
	}
	return infos, nil
}

func (c *Client) RunMonitor(m program.Monitor) (*types.Run, error) {
	return c.postProgram("/monitor", m)
}

func (c *Client) RunPulse(p program.Pulse) (*types.Run, error) {
	return c.postProgram("/pulse", p)
}

func (c *Client) RunSweep(s program.Sweep) (*types.Run, error) {
	return c.postProgram("/sweep", s)
}

// RunProgram sends a full program envelope.
func (c *Client) RunProgram(p program.Program) (*types.Run, error) {
	return c.postProgram("/run", p)
}

// postProgram returns the recorded run whenever the daemon recorded one,
// together with a *status.Error for runs that did not finish OK. Degraded
// runs come back without an error; check Run.Code.
func (c *Client) postProgram(path string, v any) (*types.Run, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to marshal program")
	}

	ret, err := c.Post(path, string(payload))
	var se *StatusError
	if err != nil && !errors.As(err, &se) {
		return nil, pkgerrors.Wrapf(err, "failed to run program")
	}

	var run types.Run
	if uerr := json.Unmarshal([]byte(ret), &run); uerr != nil || run.ID == "" {
		if se != nil {
			// Rejected before anything was recorded; the body is a message.
			var msg string
			if json.Unmarshal([]byte(ret), &msg) == nil {
				se.Body = msg
			}
			return nil, pkgerrors.Wrapf(se, "program rejected")
		}
		return nil, pkgerrors.Errorf("failed to unmarshal run: %s", strings.TrimSpace(ret))
	}

	if se != nil {
		return &run, status.New(run.Code, "%s", run.Message)
	}
	return &run, nil
}

func (c *Client) GetRuns() ([]types.Run, error) {
	ret, err := c.Get("/runs")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get runs")
	}

	var runs []types.Run
	if err := json.Unmarshal([]byte(ret), &runs); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal runs")
	}
	return runs, nil
}

func (c *Client) GetRun(id string) (*types.Run, error) {
	ret, err := c.Get("/runs/" + id)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get run %s", id)
	}

	var run types.Run
	if err := json.Unmarshal([]byte(ret), &run); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal run")
	}
	return &run, nil
}

func (c *Client) GetSchedules() ([]types.ScheduleInfo, error) {
	ret, err := c.Get("/schedules")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get schedules")
	}

	var infos []types.ScheduleInfo
	if err := json.Unmarshal([]byte(ret), &infos); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedules")
	}
	return infos, nil
}

func (c *Client) SkipSchedule(name string) (*types.ScheduleInfo, error) {
	ret, err := c.Post("/schedules/"+name+"/skip", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to skip schedule %s", name)
	}

	var info types.ScheduleInfo
	if err := json.Unmarshal([]byte(ret), &info); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal schedule")
	}
	return &info, nil
}
