package daemon

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func TestCronParse(t *testing.T) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse("@every 10m")
	if err != nil {
		t.Fatalf("failed to parse cron expression: %v", err)
	}

	now := time.Now()
	next1 := schedule.Next(now)
	next2 := schedule.Next(next1)

	if !next2.After(next1) {
		t.Fatalf("expected next2 to be after next1, got next1=%v next2=%v", next1, next2)
	}
}

func TestSchedulerScheduleStatus(t *testing.T) {
	s := NewScheduler("read", func() error { return nil }, nil, nil)

	if err := s.Schedule("*/5 * * * *"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	expr, next, running := s.Status()
	if running {
		t.Fatalf("scheduler should not be running")
	}
	if expr != "*/5 * * * *" {
		t.Fatalf("expr = %q", expr)
	}
	if next.IsZero() {
		t.Fatalf("next run should be set after scheduling")
	}
}

func TestSchedulerRejectsBadExpression(t *testing.T) {
	s := NewScheduler("read", func() error { return nil }, nil, nil)
	if err := s.Schedule("every tuesday"); err == nil {
		t.Fatal("expected parse error")
	}
	if err := s.Skip(); err == nil {
		t.Fatal("skip without a schedule should fail")
	}
}

func TestSchedulerSkip(t *testing.T) {
	s := NewScheduler("read", func() error { return nil }, nil, nil)
	if err := s.Schedule("@every 10m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	_, orig, _ := s.Status()

	s.Start()
	defer s.Stop()

	if err := s.Skip(); err != nil {
		t.Fatal(err)
	}
	_, skipped, _ := s.Status()
	if !skipped.After(orig) {
		t.Fatalf("expected skip to move schedule forward, got %v <= %v", skipped, orig)
	}
}

func TestSchedulerRunCycle(t *testing.T) {
	taskCh := make(chan struct{}, 1)
	errCh := make(chan error, 1)
	var preChecks int32

	task := func() error {
		taskCh <- struct{}{}
		return nil
	}

	preCheck := func() error {
		atomic.AddInt32(&preChecks, 1)
		return nil
	}

	s := NewScheduler("read", task, preCheck, func(err error) { errCh <- err })
	if err := s.Schedule("@every 1s"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	s.mu.Lock()
	s.nextRun = time.Now().Add(50 * time.Millisecond)
	s.mu.Unlock()

	s.Start()
	defer s.Stop()

	select {
	case <-taskCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not execute in time")
	}

	if atomic.LoadInt32(&preChecks) == 0 {
		t.Fatalf("precheck should have been executed")
	}

	select {
	case err := <-errCh:
		t.Fatalf("unexpected error callback: %v", err)
	default:
	}
}

func TestSchedulerPreCheckFailure(t *testing.T) {
	taskCh := make(chan struct{}, 1)
	errCh := make(chan error, 2)

	task := func() error {
		taskCh <- struct{}{}
		return nil
	}

	preCheck := func() error {
		return errors.New("channels busy")
	}

	s := NewScheduler("read", task, preCheck, func(err error) { errCh <- err })
	if err := s.Schedule("@every 1s"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	s.mu.Lock()
	s.nextRun = time.Now().Add(50 * time.Millisecond)
	s.mu.Unlock()

	s.Start()
	defer s.Stop()

	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatalf("expected error callback from failed precheck")
	}

	select {
	case <-taskCh:
		t.Fatalf("task should not execute when precheck fails")
	default:
	}
}
