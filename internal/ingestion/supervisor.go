// Package ingestion drives the upstream subscription lifecycle.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/mr-tron/base58"

	"pumpfeed/internal/bus"
	"pumpfeed/internal/classify"
	"pumpfeed/internal/geyser"
	"pumpfeed/internal/observability"
)

// UpdateConn is a single live upstream subscription.
type UpdateConn interface {
	// Subscribe sends the subscription request on the open stream.
	Subscribe(ctx context.Context, filter geyser.SubscribeFilter) error
	// Next returns the next update. io.EOF reports a clean upstream close;
	// any other error is a stream failure.
	Next(ctx context.Context) (*geyser.Update, error)
	Close() error
}

// Dialer opens upstream connections.
type Dialer interface {
	Dial(ctx context.Context) (UpdateConn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (UpdateConn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context) (UpdateConn, error) {
	return f(ctx)
}

// Supervisor states. The loop is a single-owner state machine:
// Disconnected -> Connecting -> Subscribed -> Streaming, falling back to
// Disconnected on any failure or close.
type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateSubscribed
	stateStreaming
)

func (s state) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateSubscribed:
		return "subscribed"
	case stateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Supervisor keeps one upstream subscription alive, classifies every update
// and publishes the resulting create events to the bus. All upstream errors
// are retried with capped exponential backoff; none are fatal.
type Supervisor struct {
	dialer     Dialer
	filter     geyser.SubscribeFilter
	classifier *classify.Classifier
	bus        *bus.Bus

	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *log.Logger

	state state

	// sleep is replaced in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// SupervisorOptions contains configuration for creating a Supervisor.
type SupervisorOptions struct {
	Dialer     Dialer
	Filter     geyser.SubscribeFilter
	Classifier *classify.Classifier // default: classify.New()
	Bus        *bus.Bus

	InitialBackoff time.Duration // default: 1s
	MaxBackoff     time.Duration // default: 30s
	Logger         *log.Logger
}

// NewSupervisor creates a new stream supervisor.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	classifier := opts.Classifier
	if classifier == nil {
		classifier = classify.New()
	}

	initialBackoff := opts.InitialBackoff
	if initialBackoff == 0 {
		initialBackoff = 1 * time.Second
	}

	maxBackoff := opts.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 30 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Supervisor{
		dialer:         opts.Dialer,
		filter:         opts.Filter,
		classifier:     classifier,
		bus:            opts.Bus,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		logger:         logger,
		sleep:          sleepCtx,
	}
}

// Run drives the reconnect loop until ctx is cancelled. It always returns
// ctx.Err(); upstream failures never terminate the loop.
func (s *Supervisor) Run(ctx context.Context) error {
	backoff := s.initialBackoff

	for {
		err := s.streamOnce(ctx)
		if ctx.Err() != nil {
			s.setState(stateDisconnected)
			return ctx.Err()
		}

		if err == nil {
			// A clean close is not a failure signal: reset to the floor.
			backoff = s.initialBackoff
			observability.RecordReconnect("clean_close")
			s.logger.Printf("upstream closed cleanly, reconnecting in %v", backoff)
		} else {
			observability.RecordReconnect("stream_error")
			s.logger.Printf("upstream error: %v (reconnecting in %v)", err, backoff)
		}

		s.setState(stateDisconnected)
		if serr := s.sleep(ctx, backoff); serr != nil {
			return serr
		}

		if err != nil {
			backoff = nextBackoff(backoff, s.maxBackoff)
		}
	}
}

// streamOnce runs one full connection lifetime: dial, subscribe, stream
// until close or failure. A nil return means the upstream closed cleanly.
func (s *Supervisor) streamOnce(ctx context.Context) error {
	s.setState(stateConnecting)
	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial upstream: %w", err)
	}
	defer conn.Close()

	if err := conn.Subscribe(ctx, s.filter); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	s.setState(stateSubscribed)
	s.logger.Printf("subscribed: programs=%v commitment=%s", s.filter.AccountInclude, s.filter.Commitment)

	for {
		update, err := conn.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read update: %w", err)
		}
		s.setState(stateStreaming)
		observability.RecordUpdateReceived()

		// Malformed or non-matching updates are simply skipped; there is
		// nothing to retry.
		event := s.classifier.Classify(update)
		if event == nil {
			continue
		}

		s.bus.Publish(*event)
		observability.RecordEventPublished(event.Slot)
		s.noteCreator(event.CreatorAddress)
		s.logger.Printf("create: mint=%s creator=%s slot=%d", event.MintAddress, event.CreatorAddress, event.Slot)
	}
}

// noteCreator tracks creators that are not ed25519 curve points. pump.fun
// creators are wallet fee payers, so an off-curve creator means the first
// account key was a PDA; worth watching but not a reason to suppress the
// event.
func (s *Supervisor) noteCreator(creator string) {
	raw, err := base58.Decode(creator)
	if err != nil {
		return
	}
	if !classify.IsOnCurve(raw) {
		observability.RecordOffCurveCreator()
	}
}

func (s *Supervisor) setState(st state) {
	s.state = st
	observability.SetSupervisorState(int(st))
}

// nextBackoff doubles the delay up to the cap.
func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		next = max
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
