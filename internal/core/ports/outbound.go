package ports

import (
	"context"

	"github.com/medscanlab/neuroscan/internal/core/domain"
)

// EventHandler consumes one raw event payload. A returned error is resolved
// by the subscriber's error policy, never by the publisher.
type EventHandler func(ctx context.Context, payload []byte) error

// EventBus is the fire-and-forget lifecycle event channel. Publish does not
// guarantee ordering across publishes nor exactly-once delivery; Subscribe
// registers a durable queue-group consumer and returns immediately.
type EventBus interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(ctx context.Context, topic, queue string, handler EventHandler) error
}

// ReplyStream yields the inference replies arriving on one correlation
// subject. Close tears the underlying subscription down; it must always be
// called once the expected replies arrived or the wait was abandoned.
type ReplyStream interface {
	C() <-chan domain.InferenceReply
	Close() error
}

// ReplyListener opens a correlation channel for one in-flight submission.
type ReplyListener interface {
	Listen(ctx context.Context, subject string) (ReplyStream, error)
}

// InferenceClient triggers classification of one uploaded image. The result
// does not come back on this call: the endpoint publishes it asynchronously
// to the given reply subject.
type InferenceClient interface {
	RequestPrediction(ctx context.Context, authToken, replySubject, imagePath string, imageIndex int) error
}

// ObjectStorage stores submission images and serves them publicly.
type ObjectStorage interface {
	Save(ctx context.Context, path, contentType string, data []byte, metadata map[string]string) (publicURL string, err error)
	Delete(ctx context.Context, path string) error
	DeletePrefix(ctx context.Context, prefix string) error
}
