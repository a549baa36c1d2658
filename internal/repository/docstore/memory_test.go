package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type widget struct {
	ID        string    `bson:"_id,omitempty"`
	Name      string    `bson:"name"`
	Status    string    `bson:"status"`
	Count     int64     `bson:"count"`
	Tags      []string  `bson:"tags"`
	CreatedAt time.Time `bson:"createdAt"`
}

func TestMemoryStoreSetGetUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Set(ctx, "widgets", "w1", widget{Name: "box", Status: "new"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Update(ctx, "widgets", "w1", Fields{"status": "used"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	var got widget
	if err := s.Get(ctx, "widgets", "w1", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "w1" || got.Name != "box" || got.Status != "used" {
		t.Fatalf("unexpected document %+v", got)
	}

	if err := s.Get(ctx, "widgets", "missing", &got); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Update(ctx, "widgets", "missing", Fields{"status": "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
}

func TestMemoryStoreUpdateIf(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "widgets", "w1", widget{Name: "box", Status: "pending"})

	if err := s.UpdateIf(ctx, "widgets", "w1", Fields{"status": "done"}, Fields{"name": "x"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := s.UpdateIf(ctx, "widgets", "w1", Fields{"status": "pending"}, Fields{"status": "done"}); err != nil {
		t.Fatalf("UpdateIf: %v", err)
	}

	var got widget
	_ = s.Get(ctx, "widgets", "w1", &got)
	if got.Status != "done" || got.Name != "box" {
		t.Fatalf("unexpected document %+v", got)
	}
}

func TestMemoryStoreAppendAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ids := make([]string, 0, 3)
	for _, name := range []string{"a", "b", "c"} {
		status := "open"
		if name == "b" {
			status = "closed"
		}
		id, err := s.Append(ctx, "widgets", widget{Name: name, Status: status, Tags: []string{"t-" + name}})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		ids = append(ids, id)
	}
	if ids[0] == "" || ids[0] == ids[1] {
		t.Fatalf("expected distinct generated ids, got %v", ids)
	}

	var open []widget
	if err := s.Find(ctx, "widgets", Fields{"status": "open"}, &open); err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(open) != 2 || open[0].Name != "a" || open[1].Name != "c" || open[0].ID != ids[0] {
		t.Fatalf("unexpected find result %+v", open)
	}

	var tagged []widget
	if err := s.Find(ctx, "widgets", Fields{"tags": "t-b"}, &tagged); err != nil {
		t.Fatalf("Find by array element: %v", err)
	}
	if len(tagged) != 1 || tagged[0].Name != "b" {
		t.Fatalf("unexpected array match %+v", tagged)
	}

	var none []widget
	if err := s.Find(ctx, "empty", nil, &none); err != nil || len(none) != 0 {
		t.Fatalf("expected empty result, got %v %v", none, err)
	}
}

func TestMemoryStoreIncrement(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Increment(ctx, "widgets", "w1", "count", -1, IncrementOptions{Floor: Floor(0)}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for guarded increment on missing doc, got %v", err)
	}

	n, err := s.Increment(ctx, "widgets", "w1", "count", 5, IncrementOptions{
		Upsert:      true,
		Set:         Fields{"status": "stocked"},
		SetOnInsert: Fields{"name": "fresh"},
	})
	if err != nil || n != 5 {
		t.Fatalf("upsert increment: n=%d err=%v", n, err)
	}

	if _, err := s.Increment(ctx, "widgets", "w1", "count", -6, IncrementOptions{Floor: Floor(0)}); !errors.Is(err, ErrBelowFloor) {
		t.Fatalf("expected ErrBelowFloor, got %v", err)
	}
	n, err = s.Increment(ctx, "widgets", "w1", "count", -5, IncrementOptions{Floor: Floor(0)})
	if err != nil || n != 0 {
		t.Fatalf("guarded decrement: n=%d err=%v", n, err)
	}

	var got widget
	_ = s.Get(ctx, "widgets", "w1", &got)
	if got.Name != "fresh" || got.Status != "stocked" || got.Count != 0 {
		t.Fatalf("unexpected document %+v", got)
	}
}

func TestMemoryStoreConcurrentIncrementsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Increment(ctx, "widgets", "w1", "count", 2, IncrementOptions{Upsert: true})
		}()
	}
	wg.Wait()

	var got widget
	_ = s.Get(ctx, "widgets", "w1", &got)
	if got.Count != 100 {
		t.Fatalf("expected 100, got %d", got.Count)
	}
}
