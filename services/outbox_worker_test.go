package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/shubhambandhovar/medszop-backend/models"
	"github.com/shubhambandhovar/medszop-backend/sender"
	"github.com/shubhambandhovar/medszop-backend/services"
)

type fakeSender struct {
	sent    []string
	sendErr error
}

func (s *fakeSender) SendEmail(_ context.Context, to, subject, body string) (sender.SendResult, error) {
	if s.sendErr != nil {
		return sender.SendResult{}, s.sendErr
	}
	s.sent = append(s.sent, to)
	return sender.SendResult{SentAt: time.Now()}, nil
}

func TestOutboxWorker_DrainMarksSent(t *testing.T) {
	outbox := &fakeOutbox{}
	_ = outbox.Enqueue(context.Background(), &models.EmailOutbox{
		ID: uuid.New(), OrderID: uuid.New(), Kind: "order_placed",
		Recipient: "asha@example.com", Subject: "s", Body: "b",
		Status: models.OutboxPending,
	})

	mail := &fakeSender{}
	worker := services.NewOutboxWorker(outbox, mail, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	worker.Run(ctx)

	assert.Equal(t, []string{"asha@example.com"}, mail.sent)
	assert.Equal(t, models.OutboxSent, outbox.records[0].Status)
	assert.NotNil(t, outbox.records[0].SentAt)
}

func TestOutboxWorker_FailureIncrementsAttempts(t *testing.T) {
	outbox := &fakeOutbox{}
	_ = outbox.Enqueue(context.Background(), &models.EmailOutbox{
		ID: uuid.New(), OrderID: uuid.New(), Kind: "order_placed",
		Recipient: "asha@example.com", Subject: "s", Body: "b",
		Status: models.OutboxPending,
	})

	mail := &fakeSender{sendErr: errors.New("smtp refused")}
	worker := services.NewOutboxWorker(outbox, mail, time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	worker.Run(ctx)

	rec := outbox.records[0]
	assert.GreaterOrEqual(t, rec.Attempts, 1)
	assert.Equal(t, "smtp refused", rec.LastError)
}
