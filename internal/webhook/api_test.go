package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"treasure-monitor/internal/domain"
)

func seedDeposits(t *testing.T, svc *Service, handler http.Handler) {
	t.Helper()
	batch := []*domain.WebhookEnvelope{
		depositEnvelope("SIG1", 100),
		depositEnvelope("SIG2", 200),
	}
	rec := postJSON(t, handler, "/webhook/treasure", "", batch)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed: status %d", rec.Code)
	}
}

func TestAPI_ListAndGetDeposits(t *testing.T) {
	svc, _ := newTestService("")
	handler := svc.Handler()
	seedDeposits(t, svc, handler)

	req := httptest.NewRequest(http.MethodGet, "/api/deposits?wallet=WALLET1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if count, _ := resp["count"].(float64); count != 2 {
		t.Errorf("count = %v, want 2", resp["count"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/deposits/SIG1", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/deposits/SIGmissing", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing: status %d, want 404", rec.Code)
	}
}

func TestAPI_ListSearchesByCoordinate(t *testing.T) {
	svc, stores := newTestService("")
	handler := svc.Handler()

	if err := stores.Searches.Upsert(context.Background(), &domain.MapSearch{Signature: "SIGs1", Wallet: "WALLET1", X: 3, Y: 7}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := stores.Searches.Upsert(context.Background(), &domain.MapSearch{Signature: "SIGs2", Wallet: "WALLET1", X: 4, Y: 7}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/searches?x=3&y=7", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if count, _ := resp["count"].(float64); count != 1 {
		t.Errorf("count = %v, want 1", resp["count"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/searches?x=abc", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad coordinate: status %d, want 400", rec.Code)
	}
}

func patchStatus(t *testing.T, handler http.Handler, path, status string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"status": status})
	req := httptest.NewRequest(http.MethodPatch, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAPI_StatusUpdate(t *testing.T) {
	svc, _ := newTestService("")
	handler := svc.Handler()
	seedDeposits(t, svc, handler)

	rec := patchStatus(t, handler, "/api/deposits/SIG1/status", "claimed")
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: status %d, body %s", rec.Code, rec.Body.String())
	}

	// Monotonic: claimed never goes back to active.
	rec = patchStatus(t, handler, "/api/deposits/SIG1/status", "active")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("claimed -> active: status %d, want 400", rec.Code)
	}

	// Unknown status values are rejected before hitting the store.
	rec = patchStatus(t, handler, "/api/deposits/SIG2/status", "vanished")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status: status %d, want 400", rec.Code)
	}

	// Statuses of other record kinds are invalid for deposits.
	rec = patchStatus(t, handler, "/api/deposits/SIG2/status", "found")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("cross-kind status: status %d, want 400", rec.Code)
	}

	rec = patchStatus(t, handler, "/api/deposits/SIGmissing/status", "claimed")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing record: status %d, want 404", rec.Code)
	}
}
