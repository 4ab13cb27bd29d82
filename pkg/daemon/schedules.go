package daemon

import (
	"context"
	"sort"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/smuseq/pkg/config"
	"github.com/charlie0129/smuseq/pkg/program"
	"github.com/charlie0129/smuseq/pkg/status"
	"github.com/charlie0129/smuseq/pkg/types"
)

var schedules = newScheduleSet()

// loadProgram is replaced in tests.
var loadProgram = program.LoadFile

type scheduleSet struct {
	mu      sync.Mutex
	entries map[string]*Scheduler
	files   map[string]string
}

func newScheduleSet() *scheduleSet {
	return &scheduleSet{
		entries: make(map[string]*Scheduler),
		files:   make(map[string]string),
	}
}

// apply stops every running schedule and starts the given ones. Runs they
// fire are cancelled with ctx.
func (s *scheduleSet) apply(ctx context.Context, list []config.Schedule) error {
	s.stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sc := range list {
		sched := NewScheduler(sc.Name, scheduledTask(ctx, sc), scheduledPreCheck(sc), func(err error) {
			logrus.WithError(err).WithField("schedule", sc.Name).Warn("scheduled program did not run cleanly")
		})
		if err := sched.Schedule(sc.Cron); err != nil {
			return pkgerrors.Wrapf(err, "schedule %q has a bad cron expression", sc.Name)
		}
		sched.Start()
		s.entries[sc.Name] = sched
		s.files[sc.Name] = sc.Program
		_, next, _ := sched.Status()
		logrus.WithFields(logrus.Fields{
			"schedule": sc.Name,
			"program":  sc.Program,
			"nextRun":  next,
		}).Info("program scheduled")
	}
	return nil
}

func (s *scheduleSet) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sched := range s.entries {
		sched.Stop()
	}
	s.entries = make(map[string]*Scheduler)
	s.files = make(map[string]string)
}

func (s *scheduleSet) get(name string) (*Scheduler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.entries[name]
	return sched, ok
}

func (s *scheduleSet) info(name string, sched *Scheduler) types.ScheduleInfo {
	s.mu.Lock()
	file := s.files[name]
	s.mu.Unlock()

	expr, next, running := sched.Status()
	return types.ScheduleInfo{
		Name:    name,
		Cron:    expr,
		Program: file,
		NextRun: next,
		Running: running,
	}
}

func (s *scheduleSet) list() []types.ScheduleInfo {
	s.mu.Lock()
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	s.mu.Unlock()
	sort.Strings(names)

	infos := make([]types.ScheduleInfo, 0, len(names))
	for _, n := range names {
		if sched, ok := s.get(n); ok {
			infos = append(infos, s.info(n, sched))
		}
	}
	return infos
}

// scheduledPreCheck holds a run back while its program is unreadable or one
// of its channels is owned by another program.
func scheduledPreCheck(sc config.Schedule) TaskFunc {
	return func() error {
		p, err := loadProgram(sc.Program)
		if err != nil {
			return err
		}
		for _, ch := range p.Channels() {
			if locks.busy(ch) {
				return pkgerrors.Errorf("channel %s is busy", ch)
			}
		}
		return nil
	}
}

func scheduledTask(ctx context.Context, sc config.Schedule) TaskFunc {
	return func() error {
		p, err := loadProgram(sc.Program)
		if err != nil {
			return err
		}
		run, err := execute(ctx, *p, sc.Name)
		if err != nil && run.Code.Class() != status.ClassDegraded {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"schedule": sc.Name,
			"id":       run.ID,
			"code":     run.Code,
		}).Info("scheduled program finished")
		return nil
	}
}
