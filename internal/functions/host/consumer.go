package host

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"
	"github.com/vedran77/rentals/internal/functions"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewReader consumes queued executions from topic as part of group.
func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

// Consume runs queued executions until ctx is done. Messages are committed
// after their execution finishes, failed or not; malformed ones are skipped.
func (h *Host) Consume(ctx context.Context, r messageReader) error {
	defer r.Close()

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetching execution: %w", err)
		}

		var req functions.Request
		if err := json.Unmarshal(msg.Value, &req); err != nil || req.Function == "" {
			h.logger.Warn("Skipping malformed execution", "offset", msg.Offset, "partition", msg.Partition)
		} else {
			exec := h.Run(ctx, req.ID, req.Function, req.Payload)
			if !exec.Executed() {
				h.logger.Warn("Queued execution failed", "function", req.Function, "execution_id", req.ID, "status_code", exec.StatusCode)
			}
		}

		if err := r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("committing execution: %w", err)
		}
	}
}
