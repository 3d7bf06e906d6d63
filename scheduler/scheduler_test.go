package scheduler

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wfunc/turnserver/logger"
)

func TestMain(m *testing.M) {
	logger.InitDevelopment()
	os.Exit(m.Run())
}

func TestScheduleAtFires(t *testing.T) {
	s := New()
	defer s.Stop()

	var fired atomic.Int32
	s.ScheduleAt("test-job", time.Now().Add(150*time.Millisecond), func() {
		fired.Add(1)
	})

	time.Sleep(500 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("job fired %d times, want 1", got)
	}
}

func TestScheduleAtPastEtaFiresImmediately(t *testing.T) {
	s := New()
	defer s.Stop()

	var fired atomic.Int32
	s.ScheduleAt("late-job", time.Now().Add(-time.Second), func() {
		fired.Add(1)
	})

	time.Sleep(400 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("overdue job fired %d times, want 1", got)
	}
}

func TestCancel(t *testing.T) {
	s := New()
	defer s.Stop()

	var fired atomic.Int32
	id := s.ScheduleAt("cancelled-job", time.Now().Add(300*time.Millisecond), func() {
		fired.Add(1)
	})
	s.Cancel(id)

	time.Sleep(600 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("cancelled job fired %d times, want 0", got)
	}
	if s.Pending() != 0 {
		t.Errorf("pending = %d, want 0", s.Pending())
	}
}

func TestScheduleEveryRepeats(t *testing.T) {
	s := New()
	defer s.Stop()

	var fired atomic.Int32
	s.ScheduleEvery("periodic-job", 200*time.Millisecond, func() {
		fired.Add(1)
	})

	time.Sleep(time.Second)
	if got := fired.Load(); got < 2 {
		t.Errorf("periodic job fired %d times, want at least 2", got)
	}
	// Still queued for its next run.
	if s.Pending() != 1 {
		t.Errorf("pending = %d, want 1", s.Pending())
	}
}

func TestStopHaltsProcessing(t *testing.T) {
	s := New()

	var fired atomic.Int32
	s.ScheduleAt("never-job", time.Now().Add(300*time.Millisecond), func() {
		fired.Add(1)
	})
	s.Stop()

	time.Sleep(600 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("job fired %d times after Stop, want 0", got)
	}
}

func TestPanickingJobDoesNotKillScheduler(t *testing.T) {
	s := New()
	defer s.Stop()

	var fired atomic.Int32
	s.ScheduleAt("panicky-job", time.Now(), func() {
		panic("boom")
	})
	s.ScheduleAt("follow-up-job", time.Now().Add(200*time.Millisecond), func() {
		fired.Add(1)
	})

	time.Sleep(600 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Errorf("follow-up fired %d times, want 1", got)
	}
}
