// Package worker drains the notification delivery queue. Rows are already
// committed by the mutation that produced them; the worker only pushes each
// message out through the configured sender.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/firmboard/backend/pkg/queue"
)

// Sender pushes one notification out of process. Implementations may send
// email, a websocket frame or anything else; failures are retried by the
// queue.
type Sender interface {
	Send(ctx context.Context, payload queue.NotificationDeliveryPayload) error
}

// LogSender writes deliveries to the log. It stands in until a real
// outbound channel is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, payload queue.NotificationDeliveryPayload) error {
	s.logger.Info("notification delivered",
		zap.String("notification_id", payload.NotificationID.String()),
		zap.String("user_id", payload.UserID.String()),
		zap.String("message", payload.Message))
	return nil
}

// NotificationProcessor consumes delivery jobs from the queue.
type NotificationProcessor struct {
	sender Sender
	queue  *queue.Queue
	logger *zap.Logger
}

func NewNotificationProcessor(sender Sender, q *queue.Queue, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{sender: sender, queue: q, logger: logger}
}

// Process executes one delivery job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeNotificationDelivery {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.NotificationDeliveryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := p.sender.Send(ctx, payload); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
		}
	}
}
