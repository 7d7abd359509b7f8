package host

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	kafka "github.com/segmentio/kafka-go"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/functions"
	"github.com/vedran77/rentals/internal/repository"
	"github.com/vedran77/rentals/pkg/secret"
)

type echoResult struct {
	OK         bool   `json:"ok"`
	Value      string `json:"value"`
	Privileged bool   `json:"privileged"`
}

func newTestHost(t *testing.T) *Host {
	t.Helper()
	h := New(slogt.New(t))
	h.Register("echo", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var in struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, domain.Validationf("bad payload")
		}
		return echoResult{OK: true, Value: in.Value, Privileged: repository.PrincipalFrom(ctx).Privileged}, nil
	})
	h.Register("gone", func(context.Context, json.RawMessage) (any, error) {
		return nil, &StatusError{Code: http.StatusGone, Message: "disabled"}
	})
	h.Register("broken", func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("database exploded")
	})
	h.Register("flaky", func(context.Context, json.RawMessage) (any, error) {
		return nil, domain.Wrap(domain.KindTransient, "list", errors.New("timeout"))
	})
	t.Cleanup(h.Wait)
	return h
}

func failureOf(t *testing.T, exec *functions.Execution) Failure {
	t.Helper()
	var f Failure
	if err := exec.Decode(&f); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestHost_Run(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()

	exec := h.Run(ctx, "e1", "echo", json.RawMessage(`{"value":"hi"}`))
	if !exec.Executed() || exec.StatusCode != http.StatusOK || exec.ID != "e1" {
		t.Fatalf("unexpected execution %+v", exec)
	}
	var res echoResult
	if err := exec.Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Value != "hi" || !res.Privileged {
		t.Errorf("got %+v, want privileged echo of hi", res)
	}

	tests := []struct {
		name     string
		function string
		payload  string
		wantCode int
		wantMsg  string
	}{
		{name: "Validation", function: "echo", payload: `[]`, wantCode: http.StatusBadRequest, wantMsg: "bad payload"},
		{name: "StatusError", function: "gone", wantCode: http.StatusGone, wantMsg: "disabled"},
		{name: "Internal", function: "broken", wantCode: http.StatusInternalServerError, wantMsg: "Function execution failed."},
		{name: "Transient", function: "flaky", wantCode: http.StatusServiceUnavailable, wantMsg: "Function temporarily unavailable."},
		{name: "Unknown", function: "missing", wantCode: http.StatusNotFound, wantMsg: "Function not found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := h.Run(ctx, "e2", tt.function, json.RawMessage(tt.payload))
			if exec.Executed() || exec.Status != functions.StatusFailed {
				t.Fatalf("got status %s, want failed", exec.Status)
			}
			if exec.StatusCode != tt.wantCode {
				t.Errorf("got code %d, want %d", exec.StatusCode, tt.wantCode)
			}
			if f := failureOf(t, exec); f.OK || f.Message != tt.wantMsg {
				t.Errorf("got failure %+v, want %q", f, tt.wantMsg)
			}
		})
	}
}

func TestHost_Execute(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()

	if _, err := h.Execute(ctx, "missing", nil, false); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("got %v, want not found", err)
	}

	exec, err := h.Execute(ctx, "echo", map[string]string{"value": "x"}, false)
	if err != nil || !exec.Executed() {
		t.Fatalf("got %+v, %v", exec, err)
	}

	exec, err = h.Execute(ctx, "echo", map[string]string{"value": "x"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != functions.StatusQueued || exec.ID == "" {
		t.Errorf("got %+v, want queued execution with id", exec)
	}
}

func TestHost_Handler(t *testing.T) {
	h := newTestHost(t)
	hash, err := secret.Hash("secret")
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(h.Handler(hash))
	defer srv.Close()

	client := functions.NewClient(srv.URL, "secret")
	ctx := context.Background()

	exec, err := client.Execute(ctx, "echo", map[string]string{"value": "over http"}, false)
	if err != nil {
		t.Fatal(err)
	}
	var res echoResult
	if err := exec.Decode(&res); err != nil || res.Value != "over http" {
		t.Errorf("got %+v, %v", res, err)
	}

	exec, err = client.Execute(ctx, "gone", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Executed() || exec.StatusCode != http.StatusGone {
		t.Errorf("got %+v, want failed 410", exec)
	}

	exec, err = client.Execute(ctx, "echo", map[string]string{"value": "later"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != functions.StatusQueued {
		t.Errorf("got status %s, want queued", exec.Status)
	}

	if _, err := client.Execute(ctx, "missing", nil, false); !domain.IsKind(err, domain.KindNotFound) {
		t.Errorf("got %v, want not found", err)
	}

	bad := functions.NewClient(srv.URL, "wrong")
	if _, err := bad.Execute(ctx, "echo", nil, false); !domain.IsKind(err, domain.KindAuthorization) {
		t.Errorf("got %v, want authorization", err)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/functions/echo/executions", nil)
	req.Header.Set(functions.HeaderKey, "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty body: got %d, want 400", resp.StatusCode)
	}
}

type testreader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *testreader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *testreader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *testreader) Close() error {
	r.closed = true
	return nil
}

func TestHost_Consume(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	h := New(slogt.New(t))
	h.Register("record", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var in struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, err
		}
		mu.Lock()
		seen = append(seen, in.Value)
		mu.Unlock()
		return nil, nil
	})

	message := func(offset int64, req functions.Request) kafka.Message {
		value, _ := json.Marshal(req)
		return kafka.Message{Offset: offset, Value: value}
	}
	r := &testreader{messages: []kafka.Message{
		message(1, functions.Request{ID: "e1", Function: "record", Payload: json.RawMessage(`{"value":"a"}`), Async: true}),
		{Offset: 2, Value: []byte("not json")},
		message(3, functions.Request{ID: "e3", Function: "missing", Payload: json.RawMessage(`{}`)}),
		message(4, functions.Request{ID: "e4", Function: "record", Payload: json.RawMessage(`{"value":"b"}`), Async: true}),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Consume(ctx, r) }()

	deadline := time.After(5 * time.Second)
	for {
		r.mu.Lock()
		n := len(r.committed)
		r.mu.Unlock()
		if n == 4 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("committed %d of 4 messages", n)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Consume() = %v", err)
	}
	if !r.closed {
		t.Error("reader not closed")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Errorf("got %v, want [a b]", seen)
	}
}

func TestHost_Schedule(t *testing.T) {
	h := New(slogt.New(t))
	runs := make(chan struct{}, 8)
	h.Register("tick", func(context.Context, json.RawMessage) (any, error) {
		select {
		case runs <- struct{}{}:
		default:
		}
		return nil, nil
	})

	if err := h.Schedule(context.Background(), Job{Function: "missing", Every: time.Second}); err == nil {
		t.Fatal("scheduling an unknown function should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.Schedule(ctx, Job{Function: "tick", Every: 5 * time.Millisecond}, Job{Function: "tick"})
	}()

	for range 2 {
		select {
		case <-runs:
		case <-time.After(5 * time.Second):
			t.Fatal("job did not run")
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Schedule() = %v", err)
	}
}
