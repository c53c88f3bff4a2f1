package session

import (
	"sync"
	"time"
)

const defaultCommitInterval = 200 * time.Millisecond

// CommitScheduler tells the engine when a chunk of buffered input audio is
// ready to be interpreted. It holds a single outstanding timer: every inbound
// audio frame reschedules it, so the commit fires once per quiescent gap,
// timed from the last frame, never stacked.
type CommitScheduler struct {
	interval time.Duration
	onCommit func()

	mu    sync.Mutex
	timer *time.Timer
}

func NewCommitScheduler(interval time.Duration, onCommit func()) *CommitScheduler {
	if interval <= 0 {
		interval = defaultCommitInterval
	}
	return &CommitScheduler{interval: interval, onCommit: onCommit}
}

// Schedule arms the commit timer, replacing any outstanding one.
func (c *CommitScheduler) Schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}

	c.timer = time.AfterFunc(c.interval, func() {
		c.mu.Lock()
		callback := c.onCommit
		c.timer = nil
		c.mu.Unlock()

		if callback != nil {
			callback()
		}
	})
}

// Stop cancels the outstanding timer, if any. Called during teardown so a
// late commit never fires against a closed session.
func (c *CommitScheduler) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
