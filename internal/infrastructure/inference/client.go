package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/medscanlab/neuroscan/internal/infrastructure/resilience"
)

// Client triggers classification of one uploaded image. The endpoint does
// not answer inline: it publishes its result to the reply subject named in
// the request, so a successful call only means "accepted".
type Client struct {
	endpoint   string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(endpoint string, executor *resilience.Executor) *Client {
	return NewWithTimeout(endpoint, 30*time.Second, executor)
}

func NewWithTimeout(endpoint string, requestTimeout time.Duration, executor *resilience.Executor) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		executor:   executor,
	}
}

type predictionRequest struct {
	TopicID           string `json:"topicId"`
	StorageBucketPath string `json:"storageBucketPath"`
	ImageIndex        int    `json:"imageIndex"`
}

func (c *Client) RequestPrediction(ctx context.Context, authToken, replySubject, imagePath string, imageIndex int) error {
	body, err := json.Marshal(predictionRequest{
		TopicID:           replySubject,
		StorageBucketPath: imagePath,
		ImageIndex:        imageIndex,
	})
	if err != nil {
		return fmt.Errorf("marshal prediction request: %w", err)
	}

	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create prediction request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("auth-token", authToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("inference request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return newStatusError(resp)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if c.executor != nil {
		err = c.executor.Do(ctx, "inference.predict", call, classifyInferenceError)
	} else {
		err = call(ctx)
	}
	return wrapUpstreamIfNeeded("request prediction", err)
}

func newStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
