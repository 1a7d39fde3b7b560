package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"portal-relay/internal/portal"
)

// ErrInterrupted is returned by Run when the context is cancelled while
// waiting for the next cycle
var ErrInterrupted = errors.New("relay: interrupted")

// Portal is a message source that manages its own session
type Portal interface {
	WithSession(ctx context.Context, fn func(portal.Fetcher) error) error
}

// Sink composes and sends one message at a time
type Sink interface {
	Prepare()
	SetHeaders(subject, from string) error
	SetBody(html string) error
	Send(ctx context.Context, to ...string) error
	Close() error
}

// PortalOpener creates a fresh portal for each cycle
type PortalOpener func() (Portal, error)

// SinkOpener creates a fresh sink for each cycle
type SinkOpener func(ctx context.Context) (Sink, error)

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Config configures the relay loop
type Config struct {
	WaitTime    time.Duration
	MaxMessages int
	OnlyUnread  bool

	// Recipient receives relayed mail; empty means the mail account
	Recipient string

	// Once runs a single cycle
	Once bool
}

// Relay moves portal messages into the mailbox, one cycle at a time
type Relay struct {
	config     Config
	openPortal PortalOpener
	openSink   SinkOpener
	logger     *slog.Logger
	metrics    *Metrics
	sleep      Sleeper
}

// New creates a relay
func New(config Config, openPortal PortalOpener, openSink SinkOpener, logger *slog.Logger) *Relay {
	return &Relay{
		config:     config,
		openPortal: openPortal,
		openSink:   openSink,
		logger:     logger,
		metrics:    NewMetrics(),
		sleep:      sleepContext,
	}
}

// Metrics returns the live counters
func (r *Relay) Metrics() *Metrics {
	return r.metrics
}

// Run repeats cycles until ctx is cancelled. Cancellation is only
// observed while sleeping between cycles; a running cycle always
// finishes. Failed cycles are logged and the loop carries on.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("Starting relay",
		"wait_time", r.config.WaitTime,
		"max_messages", r.config.MaxMessages,
		"only_unread", r.config.OnlyUnread,
		"once", r.config.Once)

	for {
		_, err := r.RunCycle(context.WithoutCancel(ctx))
		if r.config.Once {
			return err
		}

		r.logger.Info("Sleeping", "seconds", int(r.config.WaitTime.Seconds()))
		if err := r.sleep(ctx, r.config.WaitTime); err != nil {
			r.logger.Info("Relay interrupted")
			return ErrInterrupted
		}
	}
}

// RunCycle logs in, relays the fetched messages and releases the
// session. It returns the number of messages sent.
func (r *Relay) RunCycle(ctx context.Context) (int, error) {
	start := time.Now()
	logger := r.logger.With("cycle_id", uuid.NewString())
	logger.Info("Starting relay cycle")

	sent, err := r.cycle(ctx, logger)

	r.metrics.recordCycle(start, sent, err)
	if err != nil {
		logger.Error("Relay cycle failed", "error", err, "relayed", sent, "duration", time.Since(start))
		return sent, err
	}

	logger.Info("Relay cycle completed", "relayed", sent, "duration", time.Since(start))
	return sent, nil
}

func (r *Relay) cycle(ctx context.Context, logger *slog.Logger) (int, error) {
	source, err := r.openPortal()
	if err != nil {
		return 0, fmt.Errorf("failed to open portal: %w", err)
	}

	sent := 0
	err = source.WithSession(ctx, func(f portal.Fetcher) error {
		messages, err := r.fetch(ctx, f)
		if err != nil {
			return err
		}
		logger.Info("Fetched messages", "count", len(messages))
		if len(messages) == 0 {
			return nil
		}

		sink, err := r.openSink(ctx)
		if err != nil {
			return fmt.Errorf("failed to open mailer: %w", err)
		}
		defer func() {
			if closeErr := sink.Close(); closeErr != nil {
				logger.Warn("Failed to close mailer", "error", closeErr)
			}
		}()

		var failed []error
		for _, msg := range messages {
			if err := r.deliver(ctx, sink, msg); err != nil {
				logger.Warn("Failed to relay message", "subject", msg.Subject, "sender", msg.Sender, "error", err)
				r.metrics.FailedMessages.Add(1)
				failed = append(failed, err)
				continue
			}
			sent++
		}

		if len(failed) > 0 {
			return fmt.Errorf("%d of %d messages not relayed: %w", len(failed), len(messages), errors.Join(failed...))
		}
		return nil
	})

	return sent, err
}

func (r *Relay) fetch(ctx context.Context, f portal.Fetcher) ([]portal.Message, error) {
	if r.config.OnlyUnread {
		return f.FetchUnread(ctx, r.config.MaxMessages)
	}
	return f.FetchAll(ctx, r.config.MaxMessages)
}

func (r *Relay) deliver(ctx context.Context, sink Sink, msg portal.Message) error {
	sink.Prepare()

	if err := sink.SetHeaders(msg.Subject, msg.Sender); err != nil {
		return err
	}
	if err := sink.SetBody(msg.Body); err != nil {
		return err
	}

	if r.config.Recipient != "" {
		return sink.Send(ctx, r.config.Recipient)
	}
	return sink.Send(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
