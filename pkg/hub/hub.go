// Package hub fans process updates out to observer sessions over push channels.
//
// Each session owns at most one Channel and a set of topics. Broadcast delivers an
// event to every session subscribed to the topic. Undelivered events of a topic are
// replaced by newer ones, so a slow reader only skips intermediate states. A session
// whose reader stalled is completed with an error and removed, without affecting the others.
package hub

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/proctrace/internal/logging"
	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/aretw0/proctrace/pkg/metrics"
)

// SessionInvalid is the sole topic returned when subscribing an unknown session.
const SessionInvalid = "SSE_SESSION_INVALID"

const (
	DefaultIdleTimeout   = 10 * time.Minute
	DefaultReconnectHint = time.Second
	DefaultBuffer        = 64
	DefaultStallTimeout  = 30 * time.Second
)

type subscriber struct {
	sessionID string
	topics    atomic.Pointer[map[string]struct{}]
	ch        *Channel
}

func (s *subscriber) wants(topic string) bool {
	topics := s.topics.Load()
	if topics == nil {
		return false
	}
	_, ok := (*topics)[topic]
	return ok
}

// Hub tracks observer sessions.
type Hub struct {
	idleTimeout   time.Duration
	reconnectHint time.Duration
	buffer        int
	stallTimeout  time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*subscriber
}

// Option configures the Hub.
type Option func(*Hub)

// WithIdleTimeout completes channels that see no subscription activity for d. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.idleTimeout = d
	}
}

// WithReconnectHint sets the retry interval advertised on connect.
func WithReconnectHint(d time.Duration) Option {
	return func(h *Hub) {
		h.reconnectHint = d
	}
}

// WithBuffer sets how many frames for distinct topics a channel holds before deliveries fail.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		h.buffer = n
	}
}

// WithStallTimeout fails deliveries to a channel whose reader took no frame for d while frames
// were waiting. Zero disables stall detection.
func WithStallTimeout(d time.Duration) Option {
	return func(h *Hub) {
		h.stallTimeout = d
	}
}

// WithLogger configures a logger for the Hub.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithMetrics records session activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// New creates an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		idleTimeout:   DefaultIdleTimeout,
		reconnectHint: DefaultReconnectHint,
		buffer:        DefaultBuffer,
		stallTimeout:  DefaultStallTimeout,
		logger:        logging.NewNop(),
		sessions:      make(map[string]*subscriber),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect opens a channel for sessionID, replacing any channel the session already has.
// The new session starts with no topics.
func (h *Hub) Connect(sessionID string) *Channel {
	sub := &subscriber{sessionID: sessionID}
	empty := map[string]struct{}{}
	sub.topics.Store(&empty)
	sub.ch = newChannel(sessionID, h.buffer, h.idleTimeout, h.stallTimeout, func(c *Channel) {
		h.remove(sub, reason(c.Err()))
	})
	if h.reconnectHint > 0 {
		_ = sub.ch.Send(Frame{Retry: h.reconnectHint})
	}

	h.mu.Lock()
	old := h.sessions[sessionID]
	h.sessions[sessionID] = sub
	h.mu.Unlock()

	h.metrics.SessionConnected()
	if old != nil {
		h.logger.Debug("Replacing existing session channel", "session_id", sessionID)
		old.ch.Complete()
		h.metrics.SessionClosed("completion")
	}
	h.logger.Info("Session connected", "session_id", sessionID)
	return sub.ch
}

// Subscribe replaces the topic set of sessionID and returns it sorted.
// An unknown session gets []string{SessionInvalid}.
func (h *Hub) Subscribe(sessionID string, topics []string) []string {
	h.mu.RLock()
	sub := h.sessions[sessionID]
	h.mu.RUnlock()
	if sub == nil {
		h.logger.Warn("Subscribe on unknown session", "session_id", sessionID)
		return []string{SessionInvalid}
	}

	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	sub.topics.Store(&set)
	sub.ch.Touch()

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	h.logger.Debug("Session subscribed", "session_id", sessionID, "topics", out)
	return out
}

// Broadcast delivers payload to every session subscribed to topic.
func (h *Hub) Broadcast(topic string, payload any) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.sessions))
	for _, sub := range h.sessions {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.wants(topic) {
			continue
		}
		event := &domain.Event{SessionID: sub.sessionID, Topic: topic, Content: payload}
		if err := sub.ch.Send(Frame{Event: event}); err != nil {
			h.fail(sub, err)
			continue
		}
		h.metrics.EventDelivered()
	}
}

func (h *Hub) fail(sub *subscriber, err error) {
	failure := "closed"
	switch {
	case errors.Is(err, ErrChannelFull):
		failure = "full"
	case errors.Is(err, ErrChannelStalled):
		failure = "stalled"
	}
	h.metrics.DeliveryFailed(failure)
	h.logger.Warn("Delivery failed, dropping session", "session_id", sub.sessionID, "err", err)
	sub.ch.CompleteWithError(err)
	h.remove(sub, "error")
}

// Close completes the channel of sessionID and forgets the session.
func (h *Hub) Close(sessionID string) {
	h.mu.RLock()
	sub := h.sessions[sessionID]
	h.mu.RUnlock()
	if sub == nil {
		return
	}
	sub.ch.Complete()
	h.remove(sub, "completion")
}

// Sessions returns the connected session ids, sorted.
func (h *Hub) Sessions() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Shutdown completes every channel.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.sessions))
	for _, sub := range h.sessions {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.ch.Complete()
	}
}

// remove forgets sub only if it is still the session's current subscriber.
func (h *Hub) remove(sub *subscriber, why string) {
	h.mu.Lock()
	current, ok := h.sessions[sub.sessionID]
	if !ok || current != sub {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, sub.sessionID)
	h.mu.Unlock()

	h.metrics.SessionClosed(why)
	h.logger.Info("Session closed", "session_id", sub.sessionID, "reason", why)
}

func reason(err error) string {
	switch {
	case err == nil:
		return "completion"
	case errors.Is(err, ErrChannelTimeout):
		return "timeout"
	default:
		return "error"
	}
}
