package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/heritagehub/backend/internal/models"
	"github.com/heritagehub/backend/internal/notifications"
	"github.com/heritagehub/backend/pkg/queue"
)

// SessionEventProcessor fans session lifecycle events out to participant
// inboxes: one notification row per recipient.
type SessionEventProcessor struct {
	notifRepo *notifications.Repository
	queue     *queue.Queue
	logger    *zap.Logger
}

// NewSessionEventProcessor creates a session event fan-out processor.
func NewSessionEventProcessor(notifRepo *notifications.Repository, q *queue.Queue, logger *zap.Logger) *SessionEventProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionEventProcessor{notifRepo: notifRepo, queue: q, logger: logger}
}

// Process executes one fan-out job. Inserting per recipient keeps a partial
// failure retryable; duplicated rows on retry are acceptable for an inbox.
func (p *SessionEventProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionEvent {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.SessionEventPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	for _, userID := range payload.Recipients {
		n := &models.Notification{
			UserID:    userID,
			SessionID: payload.SessionID,
			Event:     payload.Event,
			Title:     payload.Title,
		}
		if err := p.notifRepo.Insert(ctx, n); err != nil {
			return fmt.Errorf("insert notification for %s: %w", userID, err)
		}
	}

	p.logger.Info("session event delivered",
		zap.String("session_id", payload.SessionID.String()),
		zap.String("event", payload.Event),
		zap.Int("recipients", len(payload.Recipients)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *SessionEventProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("session event worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
