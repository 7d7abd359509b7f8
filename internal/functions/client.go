package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
	"github.com/vedran77/rentals/internal/domain"
)

// HeaderKey carries the function API key.
const HeaderKey = "X-Function-Key"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Client executes functions on the function runtime. Synchronous executions
// go over HTTP; asynchronous ones are queued on Kafka when a writer is
// configured.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	writer   messageWriter
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithKafka queues async executions on topic instead of calling the runtime
// over HTTP.
func WithKafka(brokers []string, topic string) ClientOption {
	return func(cl *Client) {
		if len(brokers) == 0 {
			return
		}
		cl.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		}
	}
}

func NewClient(endpoint, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

func (c *Client) Execute(ctx context.Context, name string, payload any, async bool) (*Execution, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("function %s: execution channel not configured", name)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.Wrap(domain.KindValidation, "encode "+name+" payload", err)
	}

	if async && c.writer != nil {
		return c.enqueue(ctx, name, raw)
	}

	body, err := json.Marshal(Request{Payload: raw, Async: async})
	if err != nil {
		return nil, err
	}

	u := c.endpoint + "/functions/" + url.PathEscape(name) + "/executions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderKey, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "execute "+name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.Wrap(domain.KindTransient, "execute "+name, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &domain.Error{Kind: domain.KindAuthorization, Op: "execute " + name, Msg: "function key rejected"}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &domain.Error{Kind: domain.KindNotFound, Op: "execute " + name, Msg: "function not found"}
	case resp.StatusCode >= 500:
		return nil, &domain.Error{Kind: domain.KindTransient, Op: "execute " + name, Msg: resp.Status}
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("execute %s: unexpected status %s", name, resp.Status)
	}

	var exec Execution
	if err := json.Unmarshal(data, &exec); err != nil {
		return nil, fmt.Errorf("decoding %s execution: %w", name, err)
	}
	return &exec, nil
}

func (c *Client) enqueue(ctx context.Context, name string, payload json.RawMessage) (*Execution, error) {
	id := uuid.NewString()
	value, err := json.Marshal(Request{ID: id, Function: name, Payload: payload, Async: true})
	if err != nil {
		return nil, err
	}
	if err := c.writer.WriteMessages(ctx, kafka.Message{Key: []byte(name), Value: value}); err != nil {
		return nil, domain.Wrap(domain.KindTransient, "enqueue "+name, err)
	}
	return &Execution{ID: id, Function: name, Status: StatusQueued}, nil
}

func (c *Client) Close() error {
	if c.writer == nil {
		return nil
	}
	return c.writer.Close()
}
