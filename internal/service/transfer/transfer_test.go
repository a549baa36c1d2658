package transfer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/lock"
	"github.com/mamadbah2/packflow/internal/repository/catalog"
	"github.com/mamadbah2/packflow/internal/repository/docstore"
	"github.com/mamadbah2/packflow/internal/service/ledger"
)

const (
	storeLoc   = "materials_store"
	packingLoc = "packing_floor"
)

type captureEmitter struct {
	mu     sync.Mutex
	events []models.Event
}

func (c *captureEmitter) Emit(_ context.Context, e models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureEmitter) types() []models.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

// failingLedger fails the n-th outbound movement.
type failingLedger struct {
	*ledger.Service
	mu     sync.Mutex
	outs   int
	failOn int
}

func (f *failingLedger) RecordMovement(ctx context.Context, in ledger.MovementInput) (models.StockMovement, error) {
	if in.Direction == models.DirectionOut {
		f.mu.Lock()
		f.outs++
		fail := f.outs == f.failOn
		f.mu.Unlock()
		if fail {
			return models.StockMovement{}, errors.New("append movement: persistence failure")
		}
	}
	return f.Service.RecordMovement(ctx, in)
}

type fixture struct {
	store  *docstore.MemoryStore
	ledger *ledger.Service
	events *captureEmitter
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	cat := catalog.New(store)
	for _, m := range []models.Material{
		{ID: "carton", Name: "Carton 40x30", Unit: "pcs", ReorderLevel: 10, UnitPrice: models.RequireMoney("1.5"), Active: true},
		{ID: "tape", Name: "Packing tape", Unit: "roll", ReorderLevel: 5, UnitPrice: models.RequireMoney("2"), Active: true},
	} {
		if err := cat.Put(ctx, m); err != nil {
			t.Fatalf("seed material: %v", err)
		}
	}

	l := ledger.NewService(store, zaptest.NewLogger(t))
	events := &captureEmitter{}
	svc := NewService(store, l, cat, lock.NewLocalLocker(), events, zaptest.NewLogger(t))
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return &fixture{store: store, ledger: l, events: events, svc: svc}
}

func (f *fixture) stock(t *testing.T, material string, qty int64) {
	t.Helper()
	_, err := f.ledger.RecordMovement(context.Background(), ledger.MovementInput{
		MaterialID: material, LocationID: storeLoc, Direction: models.DirectionIn,
		Quantity: qty, Reason: "opening balance", ActorID: "u-store",
	})
	if err != nil {
		t.Fatalf("stock %s: %v", material, err)
	}
}

func (f *fixture) balance(t *testing.T, material string) int64 {
	t.Helper()
	q, err := f.ledger.Balance(context.Background(), material, storeLoc)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return q
}

func (f *fixture) request(t *testing.T, items ...models.RequestItem) models.InternalRequest {
	t.Helper()
	req, err := f.svc.Create(context.Background(), CreateRequestInput{
		RequesterLocation: packingLoc,
		Items:             items,
		RequesterID:       "u-packing",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return req
}

func dispatchOf(items ...models.DispatchItem) DispatchInput {
	return DispatchInput{SourceLocation: storeLoc, Items: items, DispatcherID: "u-store"}
}

func TestFulfillDispatchesAndClosesRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "carton", 120)

	req := f.request(t, models.RequestItem{MaterialID: "carton", Quantity: 50, Unit: "pcs"})
	if req.Status != models.RequestPending || req.Items[0].Urgency != models.UrgencyNormal {
		t.Fatalf("unexpected new request %+v", req)
	}

	d, err := f.svc.Fulfill(ctx, req.ID, dispatchOf(models.DispatchItem{MaterialID: "carton", Quantity: 50, Unit: "pcs"}))
	if err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	if d.Destination != packingLoc || d.InternalRequestID != req.ID || d.Items[0].MovementID == "" {
		t.Fatalf("unexpected dispatch %+v", d)
	}

	got, err := f.svc.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.RequestFulfilled || got.DispatchID != d.ID || got.FulfilledBy != "u-store" || got.FulfilledAt == nil {
		t.Fatalf("request not fulfilled: %+v", got)
	}

	if q := f.balance(t, "carton"); q != 70 {
		t.Fatalf("expected 70 on hand, got %d", q)
	}
	mvs, _ := f.ledger.Movements(ctx, "carton", storeLoc)
	last := mvs[len(mvs)-1]
	if last.Direction != models.DirectionOut || last.Quantity != 50 || last.Reason != "dispatched to "+packingLoc || last.Reference != d.ID {
		t.Fatalf("unexpected movement %+v", last)
	}

	want := []models.EventType{models.EventInternalRequestCreated, models.EventInternalRequestFulfilled}
	if got := f.events.types(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestTerminalRequestsAreImmutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "carton", 100)

	fulfilled := f.request(t, models.RequestItem{MaterialID: "carton", Quantity: 10})
	if _, err := f.svc.Fulfill(ctx, fulfilled.ID, dispatchOf(models.DispatchItem{MaterialID: "carton", Quantity: 10})); err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	if _, err := f.svc.Fulfill(ctx, fulfilled.ID, dispatchOf(models.DispatchItem{MaterialID: "carton", Quantity: 10})); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("second fulfill: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.svc.Cancel(ctx, fulfilled.ID, "changed plan", "u-packing"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("cancel fulfilled: expected ErrInvalidTransition, got %v", err)
	}

	cancelled := f.request(t, models.RequestItem{MaterialID: "carton", Quantity: 10})
	got, err := f.svc.Cancel(ctx, cancelled.ID, "line stopped", "u-packing")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != models.RequestCancelled || got.CancellationReason != "line stopped" {
		t.Fatalf("unexpected cancelled request %+v", got)
	}
	if _, err := f.svc.Fulfill(ctx, cancelled.ID, dispatchOf(models.DispatchItem{MaterialID: "carton", Quantity: 10})); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("fulfill cancelled: expected ErrInvalidTransition, got %v", err)
	}
	if q := f.balance(t, "carton"); q != 90 {
		t.Fatalf("expected only the first dispatch to move stock, got %d", q)
	}

	if _, err := f.svc.Cancel(ctx, "missing", "", "u"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDispatchRejectsInsufficientStockWithoutWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "carton", 100)
	f.stock(t, "tape", 5)

	req := f.request(t,
		models.RequestItem{MaterialID: "carton", Quantity: 40},
		models.RequestItem{MaterialID: "tape", Quantity: 6},
	)
	_, err := f.svc.Fulfill(ctx, req.ID, dispatchOf(
		models.DispatchItem{MaterialID: "carton", Quantity: 40},
		models.DispatchItem{MaterialID: "tape", Quantity: 6},
	))
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if q := f.balance(t, "carton"); q != 100 {
		t.Fatalf("carton must be untouched, got %d", q)
	}
	mvs, _ := f.ledger.Movements(ctx, "carton", storeLoc)
	if len(mvs) != 1 {
		t.Fatalf("expected only the opening movement, got %d", len(mvs))
	}
	got, _ := f.svc.Get(ctx, req.ID)
	if got.Status != models.RequestPending {
		t.Fatalf("request must stay pending, got %s", got.Status)
	}
}

func TestDispatchSumsRepeatedLines(t *testing.T) {
	f := newFixture(t)
	f.stock(t, "carton", 50)

	_, err := f.svc.Dispatch(context.Background(), DispatchInput{
		SourceLocation: storeLoc,
		Destination:    packingLoc,
		Items: []models.DispatchItem{
			{MaterialID: "carton", Quantity: 30},
			{MaterialID: "carton", Quantity: 30},
		},
		DispatcherID: "u-store",
	})
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for 60 against 50, got %v", err)
	}
	if q := f.balance(t, "carton"); q != 50 {
		t.Fatalf("expected 50 on hand, got %d", q)
	}
}

func TestDispatchRollsBackOnPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stock(t, "carton", 100)
	f.stock(t, "tape", 20)

	flaky := &failingLedger{Service: f.ledger, failOn: 2}
	f.svc.ledger = flaky

	req := f.request(t,
		models.RequestItem{MaterialID: "carton", Quantity: 40},
		models.RequestItem{MaterialID: "tape", Quantity: 4},
	)
	_, err := f.svc.Fulfill(ctx, req.ID, dispatchOf(
		models.DispatchItem{MaterialID: "carton", Quantity: 40},
		models.DispatchItem{MaterialID: "tape", Quantity: 4},
	))
	if err == nil {
		t.Fatal("expected dispatch failure")
	}

	if q := f.balance(t, "carton"); q != 100 {
		t.Fatalf("carton must be restored to 100, got %d", q)
	}
	mvs, _ := f.ledger.Movements(ctx, "carton", storeLoc)
	last := mvs[len(mvs)-1]
	if last.Direction != models.DirectionIn || last.Reason != models.ReasonDispatchRollback || last.Quantity != 40 {
		t.Fatalf("expected a rollback movement, got %+v", last)
	}
	rec, _ := f.ledger.Reconcile(ctx, "carton", storeLoc)
	if !rec.Consistent() {
		t.Fatalf("record drifted from ledger: %+v", rec)
	}

	got, _ := f.svc.Get(ctx, req.ID)
	if got.Status != models.RequestPending || got.DispatchID != "" {
		t.Fatalf("request must be reopened, got %+v", got)
	}
}

func TestConcurrentDispatchesNeverOversell(t *testing.T) {
	f := newFixture(t)
	f.stock(t, "carton", 40)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Dispatch(context.Background(), DispatchInput{
				SourceLocation: storeLoc,
				Destination:    packingLoc,
				Items:          []models.DispatchItem{{MaterialID: "carton", Quantity: 30}},
				DispatcherID:   "u-store",
			})
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, models.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || short != 1 {
		t.Fatalf("expected one success and one ErrInsufficientStock, got ok=%d short=%d", ok, short)
	}
	if q := f.balance(t, "carton"); q != 10 {
		t.Fatalf("expected 10 on hand, got %d", q)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []struct {
		name string
		in   CreateRequestInput
		want error
	}{
		{"no items", CreateRequestInput{RequesterLocation: packingLoc, RequesterID: "u"}, models.ErrInvalidInput},
		{"zero quantity", CreateRequestInput{RequesterLocation: packingLoc, RequesterID: "u", Items: []models.RequestItem{{MaterialID: "carton"}}}, models.ErrInvalidQuantity},
		{"unknown material", CreateRequestInput{RequesterLocation: packingLoc, RequesterID: "u", Items: []models.RequestItem{{MaterialID: "glue", Quantity: 1}}}, models.ErrNotFound},
		{"bad urgency", CreateRequestInput{RequesterLocation: packingLoc, RequesterID: "u", Items: []models.RequestItem{{MaterialID: "carton", Quantity: 1, Urgency: "asap"}}}, models.ErrInvalidInput},
	}
	for _, tc := range cases {
		if _, err := f.svc.Create(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if _, err := f.svc.Dispatch(ctx, DispatchInput{SourceLocation: storeLoc, Destination: storeLoc, Items: []models.DispatchItem{{MaterialID: "carton", Quantity: 1}}, DispatcherID: "u"}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("dispatch to its own source: expected ErrInvalidInput, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a := f.request(t, models.RequestItem{MaterialID: "carton", Quantity: 1})
	f.request(t, models.RequestItem{MaterialID: "tape", Quantity: 1})
	if _, err := f.svc.Cancel(ctx, a.ID, "duplicate", "u-packing"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	pending, err := f.svc.List(ctx, ListFilter{Status: models.RequestPending, Location: packingLoc})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(pending) != 1 || pending[0].Items[0].MaterialID != "tape" {
		t.Fatalf("unexpected pending list %+v", pending)
	}
	all, _ := f.svc.List(ctx, ListFilter{})
	if len(all) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(all))
	}
}
