package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	preCheckMaxTimes = 30
	preCheckInterval = time.Second * 10
)

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler fires a task on a cron schedule. Before each run PreCheck is
// retried every preCheckInterval, up to preCheckMaxTimes, after which that
// run is dropped and the next one is waited for.
type Scheduler struct {
	Name     string
	OnError  func(err error) // called on task or precheck error
	Task     TaskFunc
	PreCheck TaskFunc

	parser cron.Parser

	expr     string
	schedule cron.Schedule
	nextRun  time.Time

	mu      sync.Mutex
	running bool

	controlCh chan controlMsg
	stopCh    chan struct{}
}

// internal control kinds (not user visible events)
type controlKind int

const (
	ctrlRecalculate controlKind = iota // timer needs recalculation due to schedule change
	ctrlSkip                           // next run skipped
)

type controlMsg struct {
	kind controlKind
	data any
}

func NewScheduler(name string, task, preCheck TaskFunc, onError func(err error)) *Scheduler {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Scheduler{
		Name:      name,
		OnError:   onError,
		Task:      task,
		PreCheck:  preCheck,
		parser:    cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		controlCh: make(chan controlMsg, 4),
		stopCh:    make(chan struct{}),
	}
}

func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh: // already closed
	default:
		close(s.stopCh)
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.runScheduled()
}

func (s *Scheduler) Schedule(cronExpr string) error {
	sh, err := s.parser.Parse(cronExpr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.expr = cronExpr
	running := s.running
	if !running {
		s.schedule = sh
		s.nextRun = sh.Next(time.Now())
	}
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlRecalculate, sh)
	}
	return nil
}

// Skip skips the next scheduled run.
func (s *Scheduler) Skip() error {
	s.mu.Lock()
	if s.schedule == nil || s.nextRun.IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("no active schedule to skip")
	}
	s.nextRun = s.schedule.Next(s.nextRun)
	running := s.running
	s.mu.Unlock()

	if running {
		s.trySendControl(ctrlSkip, nil)
	}
	return nil
}

// Status reports the cron expression, the next run and whether the loop runs.
func (s *Scheduler) Status() (expr string, nextRun time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.expr, s.nextRun, s.running
}

func (s *Scheduler) runScheduled() {
	log := logrus.WithField("schedule", s.Name)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		log.Debug("scheduler stopped")
	}()

	log.Debug("scheduler started")

	for {
		attempts := 0
		var precheckErr error

		schedule, nextRun := s.snapshot()
		var timer *time.Timer
		if schedule == nil || nextRun.IsZero() {
			timer = time.NewTimer(time.Hour * 10000)
		} else {
			wait := time.Until(nextRun)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
		}

		for {
			select {
			case <-timer.C:
				if schedule == nil || nextRun.IsZero() {
					break
				}

				log.Debugf("running scheduled task at %s", nextRun.Format(time.DateTime))

				if s.PreCheck != nil {
					if err := s.PreCheck(); err != nil {
						if precheckErr == nil || err.Error() != precheckErr.Error() {
							precheckErr = err
							s.sendError(fmt.Errorf("precheck failed: %v", err))
						}

						attempts++
						if attempts <= preCheckMaxTimes {
							log.Debugf("precheck failed (%d/%d): %v; retrying in %s", attempts, preCheckMaxTimes, err, preCheckInterval)
							timer.Reset(preCheckInterval)
							continue
						}

						timer.Stop()
						s.advanceNextRun()
						break
					}
				}

				timer.Stop()

				go func() {
					if err := s.Task(); err != nil {
						s.sendError(fmt.Errorf("task failed: %v", err))
					}
				}()
				s.advanceNextRun()
			case <-s.stopCh:
				timer.Stop()
				return
			case msg := <-s.controlCh: // internal control messages
				log.WithField("kind", msg.kind).Debug("received control msg")

				switch msg.kind {
				case ctrlRecalculate:
					timer.Stop()
					sh := msg.data.(cron.Schedule)
					s.mu.Lock()
					s.schedule = sh
					s.nextRun = sh.Next(time.Now())
					s.mu.Unlock()
				case ctrlSkip:
					timer.Stop()
				}
			}

			break
		}
	}
}

func (s *Scheduler) snapshot() (cron.Schedule, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule, s.nextRun
}

func (s *Scheduler) advanceNextRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return
	}
	s.nextRun = s.schedule.Next(s.nextRun)
}

func (s *Scheduler) sendError(err error) {
	if s.OnError == nil {
		return
	}

	go s.OnError(err)
}

func (s *Scheduler) trySendControl(kind controlKind, data any) {
	select {
	case s.controlCh <- controlMsg{kind: kind, data: data}:
	default:
	}
}
