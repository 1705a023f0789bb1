package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	EventReady   = "ready"
	EventChanged = "message"

	DefaultPollInterval = 5 * time.Second
)

var ErrEmptySubject = errors.New("subject is required")

// Source reports the most recent change instant for a subject. A subject with
// no data yields the zero time.
type Source interface {
	LatestChange(ctx context.Context, subject string) (time.Time, error)
}

type Signal struct {
	Event   string
	Subject string
}

// Stream turns polling of a Source into per-subject change signals.
type Stream struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[string]*Subscription
}

func NewStream(source Source, interval time.Duration, logger *slog.Logger) *Stream {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		source:   source,
		interval: interval,
		logger:   logger,
		subs:     make(map[string]*Subscription),
	}
}

// Open registers a subscription for subject, takes the baseline observation and
// starts polling. Changes made after Open returns are reported on the next
// tick. If the baseline query fails, the first successful tick takes it instead.
// Cancelling ctx tears the subscription down.
func (s *Stream) Open(ctx context.Context, subject string) (*Subscription, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrEmptySubject
	}

	sub := &Subscription{
		ID:      uuid.NewString(),
		Subject: subject,
		source:  s.source,
		ready:   make(chan Signal, 1),
		changed: make(chan Signal, 1),
		done:    make(chan struct{}),
	}
	sub.logger = s.logger.With("subscription_id", sub.ID, "subject", subject)

	s.mu.Lock()
	s.subs[sub.ID] = sub
	s.mu.Unlock()

	sub.Poll(ctx)

	sub.ready <- Signal{Event: EventReady, Subject: subject}
	sub.logger.Debug("stream opened")

	go s.run(ctx, sub)
	return sub, nil
}

// Active returns the number of open subscriptions.
func (s *Stream) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Stream) run(ctx context.Context, sub *Subscription) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		s.mu.Lock()
		delete(s.subs, sub.ID)
		s.mu.Unlock()
		sub.close()
		sub.logger.Debug("stream closed")
	}()

	// in-flight polls run to completion; results after teardown are dropped
	pollCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go sub.Poll(pollCtx)
		}
	}
}

// Subscription is the per-stream polling state.
type Subscription struct {
	ID      string
	Subject string

	source Source
	logger *slog.Logger

	busy    atomic.Bool
	skipped atomic.Int64

	mu       sync.Mutex
	closed   bool
	seeded   bool
	lastSeen time.Time

	ready   chan Signal
	changed chan Signal
	done    chan struct{}
}

// Ready yields the ready signal sent on open.
func (s *Subscription) Ready() <-chan Signal {
	return s.ready
}

// Changed yields coalesced change signals. At most one is pending at a time.
// The channel is closed on teardown.
func (s *Subscription) Changed() <-chan Signal {
	return s.changed
}

// Done is closed once the subscription has been torn down.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Skipped returns how many poll steps were skipped because one was in flight.
func (s *Subscription) Skipped() int64 {
	return s.skipped.Load()
}

// Poll runs one poll step. It is a no-op while another step is in flight.
// Query errors are logged and swallowed.
func (s *Subscription) Poll(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return
	}
	defer s.busy.Store(false)

	ts, err := s.source.LatestChange(ctx, s.Subject)
	if err != nil {
		if !s.isClosed() {
			s.logger.Warn("stream poll failed", "error", err)
		}
		return
	}
	s.observe(ts)
}

// observe records ts and emits a change when it is strictly newer than the last
// observation. The first observation only sets the baseline.
func (s *Subscription) observe(ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if !s.seeded {
		s.seeded = true
		s.lastSeen = ts
		return false
	}
	if !ts.After(s.lastSeen) {
		return false
	}

	s.lastSeen = ts
	select {
	case s.changed <- Signal{Event: EventChanged, Subject: s.Subject}:
	default:
		// a change is already pending
	}
	return true
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.changed)
	close(s.done)
}
