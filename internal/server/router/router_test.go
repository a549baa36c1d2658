package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/lock"
	"github.com/mamadbah2/packflow/internal/repository/catalog"
	"github.com/mamadbah2/packflow/internal/repository/docstore"
	"github.com/mamadbah2/packflow/internal/server/handlers"
	"github.com/mamadbah2/packflow/internal/service/ledger"
	"github.com/mamadbah2/packflow/internal/service/notification"
	"github.com/mamadbah2/packflow/internal/service/projection"
	"github.com/mamadbah2/packflow/internal/service/purchasing"
	"github.com/mamadbah2/packflow/internal/service/quality"
	"github.com/mamadbah2/packflow/internal/service/transfer"
)

const storeLoc = "materials_store"

type inboxEmitter struct {
	inbox *notification.Inbox
}

// Emit writes straight to the inbox so tests need no running bus.
func (e inboxEmitter) Emit(ctx context.Context, ev models.Event) {
	for _, id := range ev.UserIDs {
		_, _ = e.inbox.Notify(ctx, id, ev.Type, ev.ReferenceID, ev.Message)
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := docstore.NewMemoryStore()
	cat := catalog.New(store)
	l := ledger.NewService(store, logger)
	inbox := notification.NewInbox(store)
	events := inboxEmitter{inbox: inbox}

	purchases := purchasing.NewService(store, cat, events, logger)
	h := Handlers{
		Materials:     handlers.NewMaterialHandler(cat, logger),
		Stock:         handlers.NewStockHandler(l, projection.NewService(l, cat, logger), cat, logger),
		Transfers:     handlers.NewTransferHandler(transfer.NewService(store, l, cat, lock.NewLocalLocker(), events, logger), storeLoc, logger),
		Purchases:     handlers.NewPurchaseHandler(purchases, logger),
		Quality:       handlers.NewQualityHandler(quality.NewService(store, l, cat, purchases, logger), storeLoc, logger),
		Notifications: handlers.NewNotificationHandler(inbox, logger),
	}
	srv := httptest.NewServer(New(h, logger))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, user string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(handlers.HeaderUserID, user)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestInternalRequestFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	material := map[string]any{"name": "Carton 40x30", "code": "CRT-40", "unit": "pcs", "reorder_level": 20, "unit_price": 1.5}
	if code := call(t, srv, http.MethodPut, "/api/v1/materials/carton", "u-admin", material, nil); code != http.StatusOK {
		t.Fatalf("put material: %d", code)
	}

	qc := map[string]any{"material_id": "carton", "batch_number": "B1", "delivered_quantity": 120, "grade": "A", "outcome": "accepted"}
	if code := call(t, srv, http.MethodPost, "/api/v1/qc-inspections", "u-qc", qc, nil); code != http.StatusCreated {
		t.Fatalf("inspect: %d", code)
	}

	var ir models.InternalRequest
	create := map[string]any{"requester_location": "packing_floor", "items": []map[string]any{{"material_id": "carton", "quantity": 50, "unit": "pcs"}}}
	if code := call(t, srv, http.MethodPost, "/api/v1/internal-requests", "u-packing", create, &ir); code != http.StatusCreated {
		t.Fatalf("create request: %d", code)
	}

	if code := call(t, srv, http.MethodPost, "/api/v1/internal-requests", "", create, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous create: expected 401, got %d", code)
	}

	tooMuch := map[string]any{"items": []map[string]any{{"material_id": "carton", "quantity": 500}}}
	if code := call(t, srv, http.MethodPost, "/api/v1/internal-requests/"+ir.ID+"/fulfill", "u-store", tooMuch, nil); code != http.StatusConflict {
		t.Fatalf("oversized fulfill: expected 409, got %d", code)
	}

	var d models.Dispatch
	fulfill := map[string]any{"items": []map[string]any{{"material_id": "carton", "quantity": 50}}}
	if code := call(t, srv, http.MethodPost, "/api/v1/internal-requests/"+ir.ID+"/fulfill", "u-store", fulfill, &d); code != http.StatusCreated {
		t.Fatalf("fulfill: %d", code)
	}
	if d.SourceLocation != storeLoc || d.Destination != "packing_floor" {
		t.Fatalf("unexpected dispatch %+v", d)
	}

	if code := call(t, srv, http.MethodPost, "/api/v1/internal-requests/"+ir.ID+"/cancel", "u-packing", map[string]any{"reason": "late"}, nil); code != http.StatusConflict {
		t.Fatalf("cancel fulfilled: expected 409, got %d", code)
	}

	var report struct {
		Lines      []models.StockLine `json:"lines"`
		TotalValue string             `json:"total_value"`
	}
	if code := call(t, srv, http.MethodGet, "/api/v1/stock/"+storeLoc, "", nil, &report); code != http.StatusOK {
		t.Fatalf("report: %d", code)
	}
	if len(report.Lines) != 1 || report.Lines[0].Quantity != 70 || report.Lines[0].QualityGrade != "A" || report.TotalValue != "105" {
		t.Fatalf("unexpected report %+v", report)
	}

	var inbox struct {
		Notifications []models.Notification `json:"notifications"`
	}
	call(t, srv, http.MethodGet, "/api/v1/notifications?unread=true", "u-packing", nil, &inbox)
	if len(inbox.Notifications) != 1 || inbox.Notifications[0].Type != models.EventInternalRequestFulfilled {
		t.Fatalf("unexpected inbox %+v", inbox.Notifications)
	}
	if code := call(t, srv, http.MethodPost, "/api/v1/notifications/"+inbox.Notifications[0].ID+"/read", "u-packing", nil, nil); code != http.StatusNoContent {
		t.Fatalf("mark read: %d", code)
	}
}

func TestPurchaseChainOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	call(t, srv, http.MethodPut, "/api/v1/materials/film", "u-admin", map[string]any{"name": "Stretch film", "unit": "roll"}, nil)

	var pr models.PurchaseRequest
	body := map[string]any{"items": []map[string]any{{"material_id": "film", "quantity": 10}}, "justification": "season"}
	if code := call(t, srv, http.MethodPost, "/api/v1/purchase-requests", "u-store", body, &pr); code != http.StatusCreated {
		t.Fatalf("create: %d", code)
	}
	base := "/api/v1/purchase-requests/" + pr.ID

	if code := call(t, srv, http.MethodPost, base+"/forward", "u-store", nil, nil); code != http.StatusConflict {
		t.Fatalf("early forward: expected 409, got %d", code)
	}
	if code := call(t, srv, http.MethodPost, base+"/ho-reject", "u-ho", map[string]any{}, nil); code != http.StatusBadRequest {
		t.Fatalf("reject without reason: expected 400, got %d", code)
	}
	for _, step := range []struct{ path, user string }{
		{"/ho-approve", "u-ho"},
		{"/forward", "u-store"},
		{"/md-approve", "u-md"},
	} {
		if code := call(t, srv, http.MethodPost, base+step.path, step.user, nil, &pr); code != http.StatusOK {
			t.Fatalf("%s: %d", step.path, code)
		}
	}
	if pr.Status != models.PurchaseMDApproved {
		t.Fatalf("expected md_approved, got %s", pr.Status)
	}

	splits := map[string]any{"splits": []map[string]any{{"supplier_id": "sup-a", "material_id": "film", "quantity": 10, "price": 11}}}
	if code := call(t, srv, http.MethodPost, base+"/allocate", "u-wh", splits, nil); code != http.StatusCreated {
		t.Fatalf("allocate: %d", code)
	}
	var alloc models.SupplierAllocation
	if code := call(t, srv, http.MethodGet, base+"/allocation", "", nil, &alloc); code != http.StatusOK || len(alloc.Splits) != 1 {
		t.Fatalf("allocation: %d %+v", code, alloc)
	}

	if code := call(t, srv, http.MethodGet, "/api/v1/purchase-requests/missing", "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing request: expected 404, got %d", code)
	}
}

func TestManualAdjustmentRequiresKnownMaterial(t *testing.T) {
	srv := newTestServer(t)

	material := map[string]any{"name": "Packing tape", "unit": "roll", "reorder_level": 5, "unit_price": "2.40"}
	if code := call(t, srv, http.MethodPut, "/api/v1/materials/tape", "u-admin", material, nil); code != http.StatusOK {
		t.Fatalf("put material: %d", code)
	}

	adjust := map[string]any{"material_id": "tape", "location_id": storeLoc, "direction": "in", "quantity": 12, "reason": "stock count"}
	if code := call(t, srv, http.MethodPost, "/api/v1/stock/movements", "u-store", adjust, nil); code != http.StatusCreated {
		t.Fatalf("adjust known material: %d", code)
	}

	adjust["material_id"] = "tpae"
	var body map[string]any
	if code := call(t, srv, http.MethodPost, "/api/v1/stock/movements", "u-store", adjust, &body); code != http.StatusNotFound {
		t.Fatalf("adjust unknown material: expected 404, got %d", code)
	}
	if body["error"] != "not_found" {
		t.Fatalf("unexpected error body %v", body)
	}

	var out struct {
		Reconciliation models.Reconciliation `json:"reconciliation"`
	}
	if code := call(t, srv, http.MethodGet, "/api/v1/stock/"+storeLoc+"/materials/tpae/reconcile", "u-store", nil, &out); code != http.StatusOK {
		t.Fatalf("reconcile: %d", code)
	}
	if out.Reconciliation.Cached != 0 || out.Reconciliation.Movements != 0 {
		t.Fatalf("unknown material left stock behind: %+v", out.Reconciliation)
	}

	negative := map[string]any{"name": "Glue", "unit": "kg", "unit_price": -1}
	if code := call(t, srv, http.MethodPut, "/api/v1/materials/glue", "u-admin", negative, nil); code != http.StatusBadRequest {
		t.Fatalf("negative price: expected 400, got %d", code)
	}
}
