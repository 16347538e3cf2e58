package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/medscanlab/neuroscan/internal/core/ports"
	"github.com/medscanlab/neuroscan/internal/infrastructure/resilience"
)

// ErrorPolicy decides what the subscriber loop does with a handler failure.
type ErrorPolicy string

const (
	// PolicyLogAndContinue logs the failure with the offending payload and
	// treats the event as processed. Best-effort consistency: a lost update
	// is observable only through logs and metrics.
	PolicyLogAndContinue ErrorPolicy = "log-and-continue"
	// PolicyUnsubscribe tears the topic subscription down on the first
	// handler failure so the gap is loud instead of silent.
	PolicyUnsubscribe ErrorPolicy = "unsubscribe"
)

// envelope is the wire frame around every lifecycle event payload. The
// event id feeds duplicate suppression on the consuming side.
type envelope struct {
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool

	ErrorPolicy        ErrorPolicy
	Deduplicator       *Deduplicator
	ResilienceExecutor *resilience.Executor
	OnHandlerResult    func(topic string, duration time.Duration, err error)
	OnDuplicate        func(topic string)
}

// Bus is the fire-and-forget lifecycle event channel over core NATS.
// Delivery is at-least-once from the caller's perspective (the transport may
// redeliver after reconnects); ordering across publishes is not guaranteed.
type Bus struct {
	conn     *nats.Conn
	name     string
	logger   *slog.Logger
	opts     Options
	executor *resilience.Executor

	mu   sync.Mutex
	subs []*nats.Subscription
}

func New(url, name string, logger *slog.Logger, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	if options.ErrorPolicy == "" {
		options.ErrorPolicy = PolicyLogAndContinue
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:     conn,
		name:     name,
		logger:   logger,
		opts:     options,
		executor: options.ResilienceExecutor,
	}, nil
}

// Publish wraps payload in an event envelope and hands it to the transport.
// It returns once the transport accepted the bytes; it never waits for any
// subscriber.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	frame, err := json.Marshal(envelope{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Payload:    body,
	})
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", topic, err)
	}

	call := func(_ context.Context) error {
		if err := b.conn.Publish(topic, frame); err != nil {
			return fmt.Errorf("nats publish %s: %w", topic, err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Do(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// Subscribe registers handler on topic within the given queue group and
// returns. Handler outcomes are settled by the configured error policy; a
// failed handler never crashes the subscriber process.
func (b *Bus) Subscribe(ctx context.Context, topic, queue string, handler ports.EventHandler) error {
	sub, err := b.conn.QueueSubscribe(topic, queue, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}

		var frame envelope
		payload := msg.Data
		eventID := ""
		if err := json.Unmarshal(msg.Data, &frame); err == nil && len(frame.Payload) > 0 {
			payload = frame.Payload
			eventID = frame.EventID
		}

		if b.opts.Deduplicator != nil && eventID != "" && b.opts.Deduplicator.Seen(topic, eventID) {
			b.logger.Debug("event_duplicate_dropped", "topic", topic, "event_id", eventID)
			if b.opts.OnDuplicate != nil {
				b.opts.OnDuplicate(topic)
			}
			return
		}

		start := time.Now()
		err := handler(ctx, payload)
		if b.opts.OnHandlerResult != nil {
			b.opts.OnHandlerResult(topic, time.Since(start), err)
		}
		if err == nil {
			return
		}

		b.logger.Error("event_handler_failed",
			"topic", topic,
			"queue", queue,
			"event_id", eventID,
			"payload", string(payload),
			"error", err,
		)
		if b.opts.ErrorPolicy == PolicyUnsubscribe {
			if err := msg.Sub.Unsubscribe(); err != nil {
				b.logger.Error("event_unsubscribe_failed", "topic", topic, "error", err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", topic, err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// Drain stops every subscription, waiting for in-flight handlers.
func (b *Bus) Drain() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			return fmt.Errorf("nats drain subscription: %w", err)
		}
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}
