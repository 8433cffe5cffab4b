package mq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/mocapd/internal/domain"
)

// fakeAcknowledger записывает решение по доставке.
type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error { f.acked = true; return nil }

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked, f.requeue = true, requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.nacked, f.requeue = true, requeue
	return nil
}

func deliver(t *testing.T, handler Handler, body []byte) *fakeAcknowledger {
	t.Helper()
	ack := &fakeAcknowledger{}
	c := NewConsumer(nil, slog.Default(), ConsumerConfig{Queue: string(QueueSubmissions), Handler: handler})
	c.handleDelivery(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body})
	return ack
}

func submitBody(t *testing.T) []byte {
	t.Helper()
	opts := domain.DefaultOptions()
	body, err := json.Marshal(NewMessage(MessageTypeSubmit, SubmitPayload{VideoPath: "/videos/a.mp4", Options: &opts}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

// --- Consumer Tests ---

func TestHandleDelivery_Ack(t *testing.T) {
	var got SubmitPayload
	ack := deliver(t, func(_ context.Context, d *Delivery) error {
		var err error
		got, err = ParsePayload[SubmitPayload](&d.Message)
		return err
	}, submitBody(t))

	if !ack.acked || ack.nacked {
		t.Errorf("expected ack, got %+v", ack)
	}
	if got.VideoPath != "/videos/a.mp4" {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.Options == nil || got.Options.FrameRate != domain.DefaultFrameRate {
		t.Errorf("options not decoded: %+v", got.Options)
	}
}

func TestHandleDelivery_PermanentGoesToDLQ(t *testing.T) {
	ack := deliver(t, func(context.Context, *Delivery) error {
		return Permanent(errors.New("invalid options"))
	}, submitBody(t))

	if !ack.nacked || ack.requeue {
		t.Errorf("expected nack without requeue, got %+v", ack)
	}
}

func TestHandleDelivery_TransientRequeues(t *testing.T) {
	ack := deliver(t, func(context.Context, *Delivery) error {
		return errors.New("temporary")
	}, submitBody(t))

	if !ack.nacked || !ack.requeue {
		t.Errorf("expected nack with requeue, got %+v", ack)
	}
}

func TestHandleDelivery_MalformedBody(t *testing.T) {
	called := false
	ack := deliver(t, func(context.Context, *Delivery) error {
		called = true
		return nil
	}, []byte("{not json"))

	if called {
		t.Error("handler must not be called for malformed body")
	}
	if !ack.nacked || ack.requeue {
		t.Errorf("expected nack without requeue, got %+v", ack)
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad")
	err := Permanent(base)
	if !errors.Is(err, ErrPermanent) || !errors.Is(err, base) {
		t.Errorf("expected both ErrPermanent and base in chain: %v", err)
	}
}
