// Package host runs registered functions with elevated access to the
// document store. Executions arrive over HTTP, from a Kafka topic, from
// interval jobs, or in-process through the functions.Executor interface.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/rentals/internal/domain"
	"github.com/vedran77/rentals/internal/functions"
	"github.com/vedran77/rentals/internal/repository"
)

// asyncTimeout bounds executions that outlive their caller.
const asyncTimeout = 2 * time.Minute

// HandlerFunc runs one function. The context carries a privileged principal.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// StatusError ends an execution with a specific status code.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Failure is the response body of a failed execution.
type Failure struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type Host struct {
	logger   *slog.Logger
	handlers map[string]HandlerFunc

	background sync.WaitGroup
}

func New(logger *slog.Logger) *Host {
	return &Host{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a function. It must be called before the host serves
// executions.
func (h *Host) Register(name string, fn HandlerFunc) {
	h.handlers[name] = fn
}

func (h *Host) Has(name string) bool {
	_, ok := h.handlers[name]
	return ok
}

func (h *Host) Enabled() bool {
	return h != nil && len(h.handlers) > 0
}

// Execute runs name in-process. Async executions return once started.
func (h *Host) Execute(ctx context.Context, name string, payload any, async bool) (*functions.Execution, error) {
	if !h.Has(name) {
		return nil, domain.NotFoundf("function %s not found", name)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.Wrap(domain.KindValidation, "encode "+name+" payload", err)
	}

	id := uuid.NewString()
	if async {
		h.Start(ctx, id, name, raw)
		return &functions.Execution{ID: id, Function: name, Status: functions.StatusQueued}, nil
	}
	return h.Run(ctx, id, name, raw), nil
}

// Start runs an execution in the background on a detached context.
func (h *Host) Start(ctx context.Context, id, name string, payload json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), asyncTimeout)
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		defer cancel()
		h.Run(ctx, id, name, payload)
	}()
}

// Wait blocks until background executions finish.
func (h *Host) Wait() {
	h.background.Wait()
}

// Run executes name and records the outcome. Handler errors become a failed
// execution, never a Go error.
func (h *Host) Run(ctx context.Context, id, name string, payload json.RawMessage) *functions.Execution {
	exec := &functions.Execution{ID: id, Function: name}
	logger := h.logger.With("function", name, "execution_id", id)

	fn, ok := h.handlers[name]
	if !ok {
		exec.Status = functions.StatusFailed
		exec.StatusCode = http.StatusNotFound
		exec.ResponseBody = mustFailure("Function not found.")
		return exec
	}

	start := time.Now()
	result, err := fn(repository.Privileged(ctx), payload)
	if err != nil {
		code, msg := statusOf(err)
		if code >= 500 {
			logger.Error("Execution failed", "status_code", code, "error", err.Error())
		} else {
			logger.Info("Execution rejected", "status_code", code, "error", err.Error())
		}
		exec.Status = functions.StatusFailed
		exec.StatusCode = code
		exec.ResponseBody = mustFailure(msg)
		return exec
	}

	body, err := json.Marshal(result)
	if err != nil {
		logger.Error("Could not encode result", "error", err.Error())
		exec.Status = functions.StatusFailed
		exec.StatusCode = http.StatusInternalServerError
		exec.ResponseBody = mustFailure("Function returned an invalid result.")
		return exec
	}

	logger.Debug("Execution completed", "duration", time.Since(start))
	exec.Status = functions.StatusCompleted
	exec.StatusCode = http.StatusOK
	exec.ResponseBody = body
	return exec
}

func statusOf(err error) (int, string) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, se.Message
	}

	msg := "Function execution failed."
	var de *domain.Error
	if errors.As(err, &de) && de.Msg != "" {
		msg = de.Msg
	}

	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest, msg
	case domain.KindAuthorization:
		return http.StatusForbidden, msg
	case domain.KindNotFound:
		return http.StatusNotFound, msg
	case domain.KindConflict:
		return http.StatusConflict, msg
	case domain.KindTransient:
		return http.StatusServiceUnavailable, "Function temporarily unavailable."
	default:
		return http.StatusInternalServerError, "Function execution failed."
	}
}

func mustFailure(msg string) json.RawMessage {
	data, _ := json.Marshal(Failure{OK: false, Message: msg})
	return data
}
