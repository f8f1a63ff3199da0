// SPDX-License-Identifier: MPL-2.0

package record

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultQueueSize bounds the number of pending transcript operations.
const DefaultQueueSize = 1024

type (
	// Async forwards to another Recorder from a single background goroutine.
	// Neither Record nor Close blocks: when the queue is full the operation is
	// dropped and counted. Close is queued behind the session's pending
	// entries; a dropped Close leaves the transcript open until the
	// downstream recorder shuts down.
	Async struct {
		next    Recorder
		logger  *log.Logger
		queue   chan op
		dropped atomic.Uint64
		orphans atomic.Uint64

		stopOnce sync.Once
		mu       sync.RWMutex
		stopped  bool
		done     chan struct{}
	}

	op struct {
		session string
		dir     Direction
		ts      time.Time
		data    []byte
		close   bool
	}
)

// NewAsync starts the background writer. queueSize <= 0 uses DefaultQueueSize.
func NewAsync(next Recorder, queueSize int, logger *log.Logger) *Async {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = log.Default().WithPrefix("record")
	}
	a := &Async{
		next:   next,
		logger: logger,
		queue:  make(chan op, queueSize),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

// Record implements Recorder. data is copied before it is queued.
func (a *Async) Record(session string, dir Direction, ts time.Time, data []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		return ErrClosed
	}

	select {
	case a.queue <- op{session: session, dir: dir, ts: ts, data: append([]byte(nil), data...)}:
	default:
		if n := a.dropped.Add(1); n == 1 || n%100 == 0 {
			a.logger.Warn("transcript queue full, dropping entries", "session", session, "dropped", n)
		}
	}
	return nil
}

// Close implements Recorder.
func (a *Async) Close(session string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		return ErrClosed
	}

	select {
	case a.queue <- op{session: session, close: true}:
	default:
		n := a.orphans.Add(1)
		a.logger.Warn("transcript queue full, close deferred to shutdown", "session", session, "orphaned", n)
	}
	return nil
}

// Dropped returns the number of entries discarded because the queue was full.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Orphaned returns the number of Close calls dropped because the queue was full.
func (a *Async) Orphaned() uint64 { return a.orphans.Load() }

// Stop drains the queue and waits for the writer to finish.
func (a *Async) Stop() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
}

func (a *Async) loop() {
	defer close(a.done)
	for o := range a.queue {
		var err error
		if o.close {
			err = a.next.Close(o.session)
		} else {
			err = a.next.Record(o.session, o.dir, o.ts, o.data)
		}
		if err != nil {
			a.logger.Error("transcript write failed", "session", o.session, "err", err)
		}
	}
}
