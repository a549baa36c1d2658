package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/repository/docstore"
)

func TestInboxDeliverListAndMarkRead(t *testing.T) {
	ctx := context.Background()
	inbox := NewInbox(docstore.NewMemoryStore())

	event := models.Event{Type: models.EventPurchaseHOApproved, ReferenceID: "pr-1", Message: "approved, forward to MD"}
	if err := inbox.Deliver(ctx, event, []models.User{{ID: "u1"}, {ID: "u2"}}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	list, err := inbox.List(ctx, "u1", true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].ReferenceID != "pr-1" || list[0].Read {
		t.Fatalf("unexpected inbox %+v", list)
	}

	if err := inbox.MarkRead(ctx, "u2", list[0].ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("marking another user's notification: expected ErrNotFound, got %v", err)
	}
	if err := inbox.MarkRead(ctx, "u1", list[0].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	unread, err := inbox.List(ctx, "u1", true)
	if err != nil {
		t.Fatalf("List unread: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected empty unread list, got %+v", unread)
	}
	all, _ := inbox.List(ctx, "u1", false)
	if len(all) != 1 || !all[0].Read {
		t.Fatalf("expected one read notification, got %+v", all)
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaSinkPublishesEnvelope(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w)

	event := models.Event{Type: models.EventPurchaseForwarded, ReferenceID: "pr-7", Message: "awaiting MD"}
	if err := sink.Deliver(context.Background(), event, []models.User{{ID: "md-1"}}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "pr-7" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}

	var decoded struct {
		Type       string   `json:"type"`
		Recipients []string `json:"recipients"`
	}
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Type != string(models.EventPurchaseForwarded) || len(decoded.Recipients) != 1 || decoded.Recipients[0] != "md-1" {
		t.Fatalf("unexpected payload %s", w.msgs[0].Value)
	}

	w.err = errors.New("broker unavailable")
	if err := sink.Deliver(context.Background(), event, nil); err == nil {
		t.Fatal("expected publish error")
	}
}

type fakeWhatsApp struct {
	sent map[string]string
}

func (f *fakeWhatsApp) SendText(_ context.Context, to, body string) (string, error) {
	if to == "bad" {
		return "", errors.New("invalid recipient")
	}
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	f.sent[to] = body
	return "wamid." + to, nil
}

func TestWhatsAppSinkSkipsUsersWithoutPhone(t *testing.T) {
	client := &fakeWhatsApp{}
	sink := NewWhatsAppSink(client, zaptest.NewLogger(t))

	event := models.Event{Type: models.EventLowStock, Message: "Carton 40x30 is low"}
	err := sink.Deliver(context.Background(), event, []models.User{
		{ID: "a", Phone: "224600000001"},
		{ID: "b"},
		{ID: "c", Phone: "bad"},
	})
	if err == nil {
		t.Fatal("expected joined error for failing recipient")
	}
	if len(client.sent) != 1 || client.sent["224600000001"] != "Carton 40x30 is low" {
		t.Fatalf("unexpected sends %+v", client.sent)
	}
}
