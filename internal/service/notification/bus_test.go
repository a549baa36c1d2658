package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/repository/docstore"
)

type recordingSink struct {
	mu         sync.Mutex
	deliveries map[models.EventType][]string
	fail       bool
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Deliver(_ context.Context, event models.Event, recipients []models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deliveries == nil {
		r.deliveries = make(map[models.EventType][]string)
	}
	for _, u := range recipients {
		r.deliveries[event.Type] = append(r.deliveries[event.Type], u.ID)
	}
	if r.fail {
		return errors.New("sink down")
	}
	return nil
}

func seedUsers(t *testing.T, store docstore.Store, users ...models.User) {
	t.Helper()
	for _, u := range users {
		if err := store.Set(context.Background(), usersCollection, u.ID, u); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
}

func TestBusResolvesRolesAndUsers(t *testing.T) {
	store := docstore.NewMemoryStore()
	seedUsers(t, store,
		models.User{ID: "sm-1", Name: "Awa", Roles: []string{models.RoleStoreManager}},
		models.User{ID: "sm-2", Name: "Ibrahima", Roles: []string{models.RoleStoreManager, models.RoleWarehouse}},
		models.User{ID: "pm-1", Name: "Fatou", Roles: []string{models.RolePackingManager}},
	)

	failing := &recordingSink{fail: true}
	sink := &recordingSink{}
	bus := NewBus(NewStoreDirectory(store), []Sink{failing, sink}, 8, time.Second, zaptest.NewLogger(t))
	bus.Start()

	bus.Emit(context.Background(), models.Event{
		Type:        models.EventInternalRequestCreated,
		ReferenceID: "ir-1",
		Message:     "new internal request",
		UserIDs:     []string{"sm-2", "ghost"},
		Roles:       []string{models.RoleStoreManager},
	})
	bus.Stop()

	got := sink.deliveries[models.EventInternalRequestCreated]
	want := map[string]bool{"sm-1": true, "sm-2": true, "ghost": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d distinct recipients, got %v", len(want), got)
	}
	for _, id := range got {
		if !want[id] {
			t.Fatalf("unexpected recipient %s", id)
		}
	}
}

func TestBusDropsWhenStopped(t *testing.T) {
	sink := &recordingSink{}
	bus := NewBus(NewStoreDirectory(docstore.NewMemoryStore()), []Sink{sink}, 1, time.Second, zaptest.NewLogger(t))
	bus.Start()
	bus.Stop()
	bus.Stop()

	bus.Emit(context.Background(), models.Event{Type: models.EventLowStock, UserIDs: []string{"u1"}})
	if len(sink.deliveries) != 0 {
		t.Fatalf("expected no delivery after stop, got %v", sink.deliveries)
	}
}

func TestBusEmitDoesNotBlockWhenFull(t *testing.T) {
	bus := NewBus(NewStoreDirectory(docstore.NewMemoryStore()), nil, 1, time.Second, zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Emit(context.Background(), models.Event{Type: models.EventLowStock})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full queue")
	}
}
