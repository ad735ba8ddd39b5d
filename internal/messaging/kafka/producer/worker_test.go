package producer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/cmlabs-hris/hrms-payroll-core/internal/messaging/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutboxRepo struct {
	pending []kafka.OutboxEvent
	sent    []string
	failed  map[string]string
	listErr error
}

func (f *fakeOutboxRepo) Create(ctx context.Context, event kafka.OutboxEvent) error {
	f.pending = append(f.pending, event)
	return nil
}

func (f *fakeOutboxRepo) ListPending(ctx context.Context, limit int) ([]kafka.OutboxEvent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutboxRepo) MarkSent(ctx context.Context, id string) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeOutboxRepo) MarkFailed(ctx context.Context, id string, reason string) error {
	if f.failed == nil {
		f.failed = make(map[string]string)
	}
	f.failed[id] = reason
	return nil
}

type fakeWriter struct {
	messages []kafkago.Message
	failOn   map[string]error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	for _, m := range msgs {
		if err, ok := w.failOn[string(m.Key)]; ok {
			return err
		}
		w.messages = append(w.messages, m)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessPendingEvents(t *testing.T) {
	ctx := context.Background()

	ok, err := kafka.NewEvent("hrms.payroll.inter_org_advance.v1", "inter_org_advance.requested", "payroll_line", "line-1", map[string]string{"net_amount": "100.00"})
	require.NoError(t, err)
	bad, err := kafka.NewEvent("hrms.probation.transition.v1", "probation.transitioned", "employment", "emp-broken", map[string]string{"transition": "passed"})
	require.NoError(t, err)

	repo := &fakeOutboxRepo{pending: []kafka.OutboxEvent{ok, bad}}
	writer := &fakeWriter{failOn: map[string]error{"emp-broken": errors.New("broker unavailable")}}

	sent, err := ProcessPendingEvents(ctx, repo, writer, discardLogger(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "hrms.payroll.inter_org_advance.v1", msg.Topic)
	assert.Equal(t, []byte("line-1"), msg.Key)
	assert.JSONEq(t, `{"net_amount":"100.00"}`, string(msg.Value))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("inter_org_advance.requested"), msg.Headers[0].Value)

	assert.Equal(t, []string{ok.ID}, repo.sent)
	assert.Equal(t, "broker unavailable", repo.failed[bad.ID])
}

func TestProcessPendingEvents_ListError(t *testing.T) {
	repo := &fakeOutboxRepo{listErr: errors.New("db down")}
	_, err := ProcessPendingEvents(context.Background(), repo, &fakeWriter{}, discardLogger(), 10)
	assert.Error(t, err)
}
