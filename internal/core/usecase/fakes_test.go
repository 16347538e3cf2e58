package usecase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/medscanlab/neuroscan/internal/core/domain"
	"github.com/medscanlab/neuroscan/internal/core/ports"
	"github.com/medscanlab/neuroscan/internal/observability/logging"
)

func testLogger() *slog.Logger {
	return logging.NewJSONLoggerTo(io.Discard, "test", "error")
}

func decodeInto(src, out any) error {
	if out == nil {
		return nil
	}
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

type storeUpdate struct {
	collection string
	filter     ports.Filter
	update     ports.Update
}

type fakeStore struct {
	mu sync.Mutex

	inserted  []any
	insertErr error

	findOneDoc any
	findOneErr error

	updatedDoc any
	updateErr  error
	updates    []storeUpdate

	updateManyAffected int64
	updateManyErr      error

	deleteOneAffected int64
	deleteOneErr      error
	deletedFilters    []ports.Filter

	arrayLen    int
	arrayLenErr error

	findAllDocs any
	findAllErr  error
}

func (s *fakeStore) InsertOne(_ context.Context, _ string, doc any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, doc)
	return nil
}

func (s *fakeStore) FindOne(_ context.Context, _ string, _ ports.Filter, out any) error {
	if s.findOneErr != nil {
		return s.findOneErr
	}
	return decodeInto(s.findOneDoc, out)
}

func (s *fakeStore) FindOneAndUpdate(_ context.Context, collection string, filter ports.Filter, update ports.Update, out any) error {
	s.mu.Lock()
	s.updates = append(s.updates, storeUpdate{collection: collection, filter: filter, update: update})
	s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.updatedDoc != nil {
		return decodeInto(s.updatedDoc, out)
	}
	return nil
}

func (s *fakeStore) UpdateMany(_ context.Context, collection string, filter ports.Filter, update ports.Update) (int64, error) {
	s.mu.Lock()
	s.updates = append(s.updates, storeUpdate{collection: collection, filter: filter, update: update})
	s.mu.Unlock()
	return s.updateManyAffected, s.updateManyErr
}

func (s *fakeStore) DeleteOne(_ context.Context, _ string, filter ports.Filter) (int64, error) {
	s.mu.Lock()
	s.deletedFilters = append(s.deletedFilters, filter)
	s.mu.Unlock()
	return s.deleteOneAffected, s.deleteOneErr
}

func (s *fakeStore) DeleteMany(_ context.Context, _ string, filter ports.Filter) (int64, error) {
	s.mu.Lock()
	s.deletedFilters = append(s.deletedFilters, filter)
	s.mu.Unlock()
	return 0, nil
}

func (s *fakeStore) ArrayLength(_ context.Context, _ string, _ ports.Filter, _ string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arrayLen, s.arrayLenErr
}

func (s *fakeStore) setArrayLen(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arrayLen = n
}

func (s *fakeStore) FindAll(_ context.Context, _ string, _ ports.Filter, out any) error {
	if s.findAllErr != nil {
		return s.findAllErr
	}
	if s.findAllDocs == nil {
		return nil
	}
	return decodeInto(s.findAllDocs, out)
}

type fakeStorage struct {
	mu              sync.Mutex
	saved           []string
	deletedPrefixes []string
	failWhen        func(path string) bool
	saveErr         error
}

func (s *fakeStorage) Save(_ context.Context, path, _ string, _ []byte, _ map[string]string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWhen != nil && s.failWhen(path) {
		return "", s.saveErr
	}
	s.saved = append(s.saved, path)
	return "https://blobs.test/" + path, nil
}

func (s *fakeStorage) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedPrefixes = append(s.deletedPrefixes, path)
	return nil
}

func (s *fakeStorage) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletedPrefixes = append(s.deletedPrefixes, prefix)
	return nil
}

func (s *fakeStorage) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *fakeStorage) deletedPrefix(fragment string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, prefix := range s.deletedPrefixes {
		if strings.Contains(prefix, fragment) {
			return true
		}
	}
	return false
}

type publishedEvent struct {
	topic   string
	payload any
}

type fakeBus struct {
	mu         sync.Mutex
	published  []publishedEvent
	publishErr error
}

func (b *fakeBus) Publish(_ context.Context, topic string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, publishedEvent{topic: topic, payload: payload})
	return nil
}

func (b *fakeBus) Subscribe(_ context.Context, _, _ string, _ ports.EventHandler) error {
	return nil
}

func (b *fakeBus) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	topics := make([]string, 0, len(b.published))
	for _, event := range b.published {
		topics = append(topics, event.topic)
	}
	return topics
}

type inferenceRequest struct {
	subject string
	path    string
	index   int
}

type fakeInference struct {
	mu       sync.Mutex
	requests []inferenceRequest
	err      error
}

func (c *fakeInference) RequestPrediction(_ context.Context, _, replySubject, imagePath string, imageIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.requests = append(c.requests, inferenceRequest{subject: replySubject, path: imagePath, index: imageIndex})
	return nil
}

func (c *fakeInference) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type fakeReplyStream struct {
	ch     chan domain.InferenceReply
	mu     sync.Mutex
	closed bool
}

func newFakeReplyStream(replies ...domain.InferenceReply) *fakeReplyStream {
	ch := make(chan domain.InferenceReply, len(replies)+8)
	for _, reply := range replies {
		ch <- reply
	}
	return &fakeReplyStream{ch: ch}
}

func (s *fakeReplyStream) C() <-chan domain.InferenceReply {
	return s.ch
}

func (s *fakeReplyStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeReplyStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeListener struct {
	stream    *fakeReplyStream
	listenErr error
	subject   string
}

func (l *fakeListener) Listen(_ context.Context, subject string) (ports.ReplyStream, error) {
	l.subject = subject
	if l.listenErr != nil {
		return nil, l.listenErr
	}
	return l.stream, nil
}
