package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smuseq/pkg/config"
	"github.com/charlie0129/smuseq/pkg/events"
	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/status"
	"github.com/charlie0129/smuseq/pkg/types"
	"github.com/charlie0129/smuseq/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getChannels(c *gin.Context) {
	infos := []types.ChannelInfo{}
	for _, name := range inst.Channels() {
		ch, err := inst.Lookup(name)
		if err != nil {
			logrus.WithError(err).WithField("channel", name).Warn("listed channel cannot be resolved")
			continue
		}
		info := types.ChannelInfo{
			Name:   name,
			Limits:   ch.Limits(),
			Inverted: ch.Inverted(),
			Busy:     locks.busy(name),
		}
		for _, cc := range conf.Channels() {
			if cc.Name == name {
				info.Role = cc.Role
			}
		}
		infos = append(infos, info)
	}
	c.IndentedJSON(http.StatusOK, infos)
}

func postMonitor(c *gin.Context) {
	var m program.Monitor
	if err := c.ShouldBindJSON(&m); err != nil {
		badRequest(c, err)
		return
	}
	runProgram(c, program.ForMonitor(m))
}

func postPulse(c *gin.Context) {
	var p program.Pulse
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	runProgram(c, program.ForPulse(p))
}

func postSweep(c *gin.Context) {
	var s program.Sweep
	if err := c.ShouldBindJSON(&s); err != nil {
		badRequest(c, err)
		return
	}
	runProgram(c, program.ForSweep(s))
}

// postRun accepts a full program envelope, as stored in a program file.
func postRun(c *gin.Context) {
	b, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, err)
		return
	}
	p, err := program.Decode(b, program.FormatJSON)
	if err != nil {
		badRequest(c, err)
		return
	}
	runProgram(c, *p)
}

func runProgram(c *gin.Context, p program.Program) {
	if err := p.Check(); err != nil {
		badRequest(c, err)
		return
	}

	run, err := execute(c.Request.Context(), p, "")
	if errors.Is(err, errChannelsBusy) {
		c.IndentedJSON(http.StatusConflict, err.Error())
		_ = c.AbortWithError(http.StatusConflict, err)
		return
	}

	code := httpStatus(run.Code)
	if err != nil && code >= http.StatusBadRequest {
		_ = c.Error(err)
	}
	c.IndentedJSON(code, run)
}

var errChannelsBusy = errors.New("channels are owned by another program")

// execute runs p while holding all of its channels, records the run and
// publishes its start and end on the event hub. schedule names the schedule that
// fired it, if any.
func execute(ctx context.Context, p program.Program, schedule string) (types.Run, error) {
	release, busy := locks.tryLock(p.Channels()...)
	if len(busy) > 0 {
		return types.Run{}, fmt.Errorf("%w: %v", errChannelsBusy, busy)
	}
	defer release()

	id := uuid.NewString()
	started := time.Now()
	hub.Publish(events.RunStarted, events.RunStartedEvent{
		ID:       id,
		Kind:     string(p.Kind),
		Channels: p.Channels(),
		Schedule: schedule,
		Ts:       started.Unix(),
	})

	res, err := seq.Run(ctx, p, nil)
	run := runRecorder.AddRecord(id, p, started, res, err)

	hub.Publish(events.RunFinished, events.RunFinishedEvent{
		ID:      run.ID,
		Kind:    string(run.Kind),
		Code:    run.Code.String(),
		Message: run.Message,
		Ts:      run.FinishedAt.Unix(),
	})
	logrus.WithFields(logrus.Fields{
		"id":       run.ID,
		"kind":     run.Kind,
		"channels": run.Channels,
		"code":     run.Code,
		"schedule": schedule,
	}).Info("program run recorded")

	return run, err
}

// httpStatus maps a run's status code to the response status. Failed runs
// still carry the partial result in the body.
func httpStatus(code status.Code) int {
	switch code.Class() {
	case status.ClassOK:
		return http.StatusCreated
	case status.ClassDegraded:
		return http.StatusOK
	case status.ClassConfiguration:
		return http.StatusBadRequest
	case status.ClassCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, err error) {
	c.IndentedJSON(http.StatusBadRequest, err.Error())
	_ = c.AbortWithError(http.StatusBadRequest, err)
}

func getRuns(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, runRecorder.GetRecords())
}

func getRun(c *gin.Context) {
	id := c.Param("id")
	run, ok := runRecorder.GetRecord(id)
	if !ok {
		err := errors.New("no run with id " + id)
		c.IndentedJSON(http.StatusNotFound, err.Error())
		_ = c.AbortWithError(http.StatusNotFound, err)
		return
	}
	c.IndentedJSON(http.StatusOK, run)
}

func getSchedules(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, schedules.list())
}

func postSkipSchedule(c *gin.Context) {
	name := c.Param("name")
	sc, ok := schedules.get(name)
	if !ok {
		err := errors.New("no schedule named " + name)
		c.IndentedJSON(http.StatusNotFound, err.Error())
		_ = c.AbortWithError(http.StatusNotFound, err)
		return
	}
	if err := sc.Skip(); err != nil {
		badRequest(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, schedules.info(name, sc))
}

// getEvents streams hub events as server-sent events until the client
// goes away.
func getEvents(c *gin.Context) {
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	// Send headers now so subscribers see the stream open before any event.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
