package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCommitSchedulerFiresAfterQuiescentGap(t *testing.T) {
	fired := make(chan struct{}, 1)
	sched := NewCommitScheduler(20*time.Millisecond, func() {
		fired <- struct{}{}
	})

	sched.Schedule()

	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected commit callback to fire")
	}
}

func TestCommitSchedulerCoalescesRapidFrames(t *testing.T) {
	var commits atomic.Int32
	sched := NewCommitScheduler(50*time.Millisecond, func() {
		commits.Add(1)
	})

	// Three frames in quick succession reschedule one timer.
	sched.Schedule()
	time.Sleep(10 * time.Millisecond)
	sched.Schedule()
	time.Sleep(10 * time.Millisecond)
	sched.Schedule()

	time.Sleep(150 * time.Millisecond)
	if got := commits.Load(); got != 1 {
		t.Fatalf("expected exactly 1 commit, got %d", got)
	}
}

func TestCommitSchedulerStopPreventsFiring(t *testing.T) {
	var commits atomic.Int32
	sched := NewCommitScheduler(30*time.Millisecond, func() {
		commits.Add(1)
	})

	sched.Schedule()
	sched.Stop()

	time.Sleep(80 * time.Millisecond)
	if got := commits.Load(); got != 0 {
		t.Fatalf("expected 0 commits after stop, got %d", got)
	}

	sched.Stop() // idempotent
}

func TestCommitSchedulerReschedulesAfterFiring(t *testing.T) {
	fired := make(chan struct{}, 2)
	sched := NewCommitScheduler(15*time.Millisecond, func() {
		fired <- struct{}{}
	})

	sched.Schedule()
	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected first commit")
	}

	sched.Schedule()
	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected second commit")
	}
}

func TestCommitSchedulerDefaultsInterval(t *testing.T) {
	sched := NewCommitScheduler(0, nil)
	if sched.interval != defaultCommitInterval {
		t.Fatalf("expected default interval %s, got %s", defaultCommitInterval, sched.interval)
	}
}
