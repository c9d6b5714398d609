package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/aretw0/proctrace/pkg/domain"
)

var (
	// ErrChannelClosed is returned when sending on a completed channel.
	ErrChannelClosed = errors.New("push channel closed")
	// ErrChannelFull is returned when more distinct topics are pending than the channel holds.
	ErrChannelFull = errors.New("push channel buffer full")
	// ErrChannelStalled is returned when the consumer took no frame for longer than the stall timeout.
	ErrChannelStalled = errors.New("push channel stalled")
	// ErrChannelTimeout completes a channel that stayed idle past its timeout.
	ErrChannelTimeout = errors.New("push channel idle timeout")
)

// Frame is one unit pushed to an observer: either a reconnect hint or an event.
type Frame struct {
	Retry time.Duration
	Event *domain.Event
}

// Channel is the push handle of one observer session.
//
// Sends never block. Frames wait in a queue drained by a pump goroutine into Frames; an event
// for a topic that already has an undelivered event replaces it in place, so a consumer that
// falls behind skips intermediate states of a topic but always receives the latest one.
type Channel struct {
	sessionID string
	out       chan Frame
	wake      chan struct{}
	done      chan struct{}

	mu       sync.Mutex
	pending  []*Frame
	byTopic  map[string]*Frame
	inflight bool
	progress time.Time
	capacity int
	stall    time.Duration
	closed   bool
	err      error
	idle     time.Duration
	timer    *time.Timer
	onDone   func(*Channel)
}

func newChannel(sessionID string, capacity int, idle, stall time.Duration, onDone func(*Channel)) *Channel {
	if capacity < 1 {
		capacity = 1
	}
	c := &Channel{
		sessionID: sessionID,
		out:       make(chan Frame),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		byTopic:   make(map[string]*Frame),
		capacity:  capacity,
		stall:     stall,
		idle:      idle,
		onDone:    onDone,
	}
	if idle > 0 {
		c.timer = time.AfterFunc(idle, func() {
			c.CompleteWithError(ErrChannelTimeout)
		})
	}
	go c.pump()
	return c
}

// SessionID returns the session owning the channel.
func (c *Channel) SessionID() string {
	return c.sessionID
}

// Frames returns the frames ready for the consumer. It is never closed; stop reading once Done is closed.
func (c *Channel) Frames() <-chan Frame {
	return c.out
}

// Done is closed when the channel completes.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns why the channel completed: nil for a normal completion.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send queues f without blocking. It fails with ErrChannelStalled when frames have been waiting
// on a consumer that took nothing for the stall timeout, and with ErrChannelFull when f would
// exceed the number of pending frames the channel holds.
func (c *Channel) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}

	busy := c.inflight || len(c.pending) > 0
	if busy && c.stall > 0 && time.Since(c.progress) > c.stall {
		return ErrChannelStalled
	}
	if f.Event != nil {
		if queued, ok := c.byTopic[f.Event.Topic]; ok {
			queued.Event = f.Event
			return nil
		}
	}
	if len(c.pending) >= c.capacity {
		return ErrChannelFull
	}
	if !busy {
		c.progress = time.Now()
	}

	queued := &f
	c.pending = append(c.pending, queued)
	if f.Event != nil {
		c.byTopic[f.Event.Topic] = queued
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *Channel) pump() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			f, ok := c.pop()
			if !ok {
				break
			}
			select {
			case c.out <- f:
				c.mu.Lock()
				c.inflight = false
				c.progress = time.Now()
				c.mu.Unlock()
			case <-c.done:
				return
			}
		}
	}
}

func (c *Channel) pop() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return Frame{}, false
	}
	queued := c.pending[0]
	c.pending[0] = nil
	c.pending = c.pending[1:]
	if queued.Event != nil && c.byTopic[queued.Event.Topic] == queued {
		delete(c.byTopic, queued.Event.Topic)
	}
	c.inflight = true
	return *queued, true
}

// Touch restarts the idle timer.
func (c *Channel) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.timer == nil {
		return
	}
	c.timer.Reset(c.idle)
}

// Complete ends the channel normally. Completing twice is a no-op.
func (c *Channel) Complete() {
	c.finish(nil)
}

// CompleteWithError ends the channel with err. Completing twice is a no-op.
func (c *Channel) CompleteWithError(err error) {
	c.finish(err)
}

func (c *Channel) finish(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = err
	c.pending = nil
	c.byTopic = nil
	if c.timer != nil {
		c.timer.Stop()
	}
	close(c.done)
	onDone := c.onDone
	c.mu.Unlock()

	if onDone != nil {
		onDone(c)
	}
}
