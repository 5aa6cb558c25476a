package notifications

import (
	"context"

	"go.uber.org/zap"

	"github.com/firmboard/backend/internal/models"
	"github.com/firmboard/backend/pkg/queue"
)

// QueueSink pushes committed notifications onto the Redis delivery queue.
// Delivery is best-effort: the row is already committed, so a failed enqueue
// is logged and dropped rather than failing the mutation.
type QueueSink struct {
	queue  *queue.Queue
	logger *zap.Logger
}

func NewQueueSink(q *queue.Queue, logger *zap.Logger) *QueueSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueSink{queue: q, logger: logger}
}

func (s *QueueSink) Deliver(ctx context.Context, n models.Notification) {
	err := s.queue.EnqueueNotificationDelivery(ctx, queue.NotificationDeliveryPayload{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Message:        n.Message,
	})
	if err != nil {
		s.logger.Warn("notification delivery enqueue failed",
			zap.String("notification_id", n.ID.String()),
			zap.Error(err))
	}
}
