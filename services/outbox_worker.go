package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shubhambandhovar/medszop-backend/repository"
	"github.com/shubhambandhovar/medszop-backend/sender"
)

const (
	outboxBatchSize   = 25
	outboxMaxAttempts = 5
)

// OutboxWorker drains pending email records on a fixed interval. A record
// that keeps failing is marked failed after outboxMaxAttempts and left for
// manual inspection.
type OutboxWorker struct {
	outbox   repository.OutboxRepository
	sender   sender.EmailSender
	interval time.Duration
	logger   *zap.Logger
}

func NewOutboxWorker(outbox repository.OutboxRepository, emailSender sender.EmailSender, interval time.Duration, logger *zap.Logger) *OutboxWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &OutboxWorker{
		outbox:   outbox,
		sender:   emailSender,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("outbox worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *OutboxWorker) drain(ctx context.Context) {
	recs, err := w.outbox.FetchPending(ctx, outboxBatchSize)
	if err != nil {
		w.logger.Error("outbox fetch failed", zap.Error(err))
		return
	}
	for i := range recs {
		rec := &recs[i]
		result, err := w.sender.SendEmail(ctx, rec.Recipient, rec.Subject, rec.Body)
		if err != nil {
			attempts := rec.Attempts + 1
			final := attempts >= outboxMaxAttempts
			if markErr := w.outbox.MarkAttemptFailed(ctx, rec.ID, attempts, err.Error(), final); markErr != nil {
				w.logger.Error("outbox mark-failed failed", zap.String("id", rec.ID.String()), zap.Error(markErr))
			}
			w.logger.Warn("email send failed",
				zap.String("id", rec.ID.String()),
				zap.String("kind", rec.Kind),
				zap.Int("attempts", attempts),
				zap.Bool("final", final),
				zap.Error(err))
			continue
		}
		if err := w.outbox.MarkSent(ctx, rec.ID, result.SentAt); err != nil {
			w.logger.Error("outbox mark-sent failed", zap.String("id", rec.ID.String()), zap.Error(err))
			continue
		}
		w.logger.Info("email sent",
			zap.String("id", rec.ID.String()),
			zap.String("kind", rec.Kind),
			zap.String("recipient", rec.Recipient))
	}
}
