package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
)

// replyStream receives one submission's inference replies. It exists for
// the lifetime of a single fan-in wait and is always torn down afterwards.
type replyStream struct {
	sub *nats.Subscription
	ch  chan domain.InferenceReply

	mu     sync.Mutex
	closed bool
}

func (s *replyStream) C() <-chan domain.InferenceReply {
	return s.ch
}

func (s *replyStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe replies: %w", err)
	}
	return nil
}

func (s *replyStream) deliver(reply domain.InferenceReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- reply:
	default:
		// The buffer holds far more replies than one submission can have;
		// a full buffer means the waiter is gone.
	}
}

// Listen opens the correlation subject for one submission. The returned
// stream carries each decoded reply exactly as published; reassembly by
// image index is the caller's job.
func (b *Bus) Listen(_ context.Context, subject string) (ports.ReplyStream, error) {
	stream := &replyStream{ch: make(chan domain.InferenceReply, 64)}

	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var reply domain.InferenceReply
		if err := json.Unmarshal(msg.Data, &reply); err != nil {
			b.logger.Warn("inference_reply_malformed", "subject", subject, "payload", string(msg.Data), "error", err)
			return
		}
		stream.deliver(reply)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe replies: %w", err)
	}
	stream.sub = sub

	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush replies subscription: %w", err)
	}
	return stream, nil
}
