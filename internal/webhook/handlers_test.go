package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/storage"
	"treasure-monitor/internal/storage/memory"
)

func newTestService(secret string) (*Service, Stores) {
	stores := Stores{
		Deposits: memory.NewDepositStore(),
		Searches: memory.NewSearchStore(),
		Clues:    memory.NewClueStore(),
	}
	svc := NewService(Options{
		Stores:     stores,
		AuthSecret: secret,
		Logger:     log.New(io.Discard, "", 0),
	})
	svc.SetReady(true)
	return svc, stores
}

func depositEnvelope(sig string, amount uint64) *domain.WebhookEnvelope {
	return &domain.WebhookEnvelope{
		Signature: sig,
		Type:      domain.EventHideTreasure,
		Timestamp: 1700000000,
		Slot:      1000,
		Fee:       5000,
		FeePayer:  "WALLET1",
		Events: []domain.EnvelopeEvent{{
			Type:      domain.EventHideTreasure,
			ProgramID: "PROGRAM1",
			Hide: &domain.HideEventData{
				Wallet:    "WALLET1",
				Amount:    amount,
				TokenMint: "MINTxyz",
			},
		}},
	}
}

func postJSON(t *testing.T, handler http.Handler, path, auth string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	return resp
}

func TestWebhook_IdempotentIngestion(t *testing.T) {
	svc, stores := newTestService("")
	handler := svc.Handler()
	ctx := context.Background()

	env := depositEnvelope("SIG1", 100)
	rec := postJSON(t, handler, "/webhook/treasure", "", []*domain.WebhookEnvelope{env})
	if rec.Code != http.StatusOK {
		t.Fatalf("first post: status %d, body %s", rec.Code, rec.Body.String())
	}

	// Second delivery adds a field; it must merge, not duplicate.
	env2 := depositEnvelope("SIG1", 100)
	env2.Slot = 2000
	rec = postJSON(t, handler, "/webhook/treasure", "", []*domain.WebhookEnvelope{env2})
	if rec.Code != http.StatusOK {
		t.Fatalf("second post: status %d", rec.Code)
	}

	deposits, err := stores.Deposits.Query(ctx, storage.DepositFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(deposits) != 1 {
		t.Fatalf("expected exactly 1 record for SIG1, got %d", len(deposits))
	}
	if deposits[0].Amount != 100 {
		t.Errorf("amount = %d, want 100 (original field kept)", deposits[0].Amount)
	}
	if deposits[0].Slot != 2000 {
		t.Errorf("slot = %d, want 2000 (merged field)", deposits[0].Slot)
	}
}

func TestWebhook_BatchPartialFailure(t *testing.T) {
	svc, stores := newTestService("")
	handler := svc.Handler()

	bad := depositEnvelope("SIG2", 200)
	bad.Events[0].Hide.Wallet = ""

	batch := []*domain.WebhookEnvelope{
		depositEnvelope("SIG1", 100),
		bad,
		depositEnvelope("SIG3", 300),
	}

	rec := postJSON(t, handler, "/webhook/treasure", "", batch)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, a bad envelope must not fail the batch", rec.Code)
	}

	resp := decodeResponse(t, rec)
	if processed, _ := resp["processed"].(float64); processed != 2 {
		t.Errorf("processed = %v, want 2", resp["processed"])
	}

	deposits, err := stores.Deposits.Query(context.Background(), storage.DepositFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(deposits) != 2 {
		t.Errorf("expected 2 persisted records, got %d", len(deposits))
	}
	if _, err := stores.Deposits.Get(context.Background(), "SIG2"); err == nil {
		t.Error("invalid envelope SIG2 must not be persisted")
	}
}

func TestWebhook_AuthEnforcement(t *testing.T) {
	svc, stores := newTestService("shared-secret")
	handler := svc.Handler()

	env := depositEnvelope("SIG1", 100)

	rec := postJSON(t, handler, "/webhook/treasure", "", []*domain.WebhookEnvelope{env})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing auth: status %d, want 401", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp["error"] != "Unauthorized - invalid authorization header" {
		t.Errorf("error = %v", resp["error"])
	}

	rec = postJSON(t, handler, "/webhook/treasure", "wrong", []*domain.WebhookEnvelope{env})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong auth: status %d, want 401", rec.Code)
	}
	if _, err := stores.Deposits.Get(context.Background(), "SIG1"); err == nil {
		t.Error("rejected request must not write")
	}

	rec = postJSON(t, handler, "/webhook/treasure", "shared-secret", []*domain.WebhookEnvelope{env})
	if rec.Code != http.StatusOK {
		t.Errorf("correct auth: status %d, want 200", rec.Code)
	}
}

func TestWebhook_NoSecretAcceptsAll(t *testing.T) {
	svc, _ := newTestService("")
	handler := svc.Handler()

	rec := postJSON(t, handler, "/webhook/treasure", "", []*domain.WebhookEnvelope{depositEnvelope("SIG1", 100)})
	if rec.Code != http.StatusOK {
		t.Errorf("no secret configured: status %d, want 200", rec.Code)
	}
}

func TestWebhook_DatabaseNotReady(t *testing.T) {
	svc, _ := newTestService("")
	svc.SetReady(false)
	handler := svc.Handler()

	rec := postJSON(t, handler, "/webhook/treasure", "", []*domain.WebhookEnvelope{depositEnvelope("SIG1", 100)})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp["error"] != "Database not ready" {
		t.Errorf("error = %v", resp["error"])
	}
}

func TestWebhook_SingleObjectBody(t *testing.T) {
	svc, stores := newTestService("")
	handler := svc.Handler()

	// A bare envelope object, not wrapped in an array.
	rec := postJSON(t, handler, "/webhook/treasure", "", depositEnvelope("SIG1", 100))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	if _, err := stores.Deposits.Get(context.Background(), "SIG1"); err != nil {
		t.Errorf("single-object body not persisted: %v", err)
	}
}

func TestWebhook_SkipsEnvelopeWithoutMatchingEvent(t *testing.T) {
	svc, stores := newTestService("")
	handler := svc.Handler()

	// A search envelope posted to the treasure endpoint carries no
	// HIDE_TREASURE event and is skipped silently.
	env := &domain.WebhookEnvelope{
		Signature: "SIGs1",
		Type:      domain.EventSearchTreasure,
		Events: []domain.EnvelopeEvent{{
			Type:   domain.EventSearchTreasure,
			Search: &domain.SearchEventData{Wallet: "WALLET1", X: 3, Y: 7},
		}},
	}
	rec := postJSON(t, handler, "/webhook/treasure", "", []*domain.WebhookEnvelope{env})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if processed, _ := resp["processed"].(float64); processed != 0 {
		t.Errorf("processed = %v, want 0", resp["processed"])
	}

	deposits, _ := stores.Deposits.Query(context.Background(), storage.DepositFilter{})
	if len(deposits) != 0 {
		t.Errorf("expected no deposits, got %d", len(deposits))
	}
}

func TestWebhook_SearchGridBounds(t *testing.T) {
	svc, stores := newTestService("")
	handler := svc.Handler()

	inBounds := &domain.WebhookEnvelope{
		Signature: "SIGs1",
		Type:      domain.EventSearchTreasure,
		Events: []domain.EnvelopeEvent{{
			Type:   domain.EventSearchTreasure,
			Search: &domain.SearchEventData{Wallet: "WALLET1", X: 99, Y: 0},
		}},
	}
	outOfBounds := &domain.WebhookEnvelope{
		Signature: "SIGs2",
		Type:      domain.EventSearchTreasure,
		Events: []domain.EnvelopeEvent{{
			Type:   domain.EventSearchTreasure,
			Search: &domain.SearchEventData{Wallet: "WALLET1", X: 100, Y: 5},
		}},
	}

	rec := postJSON(t, handler, "/webhook/search", "", []*domain.WebhookEnvelope{inBounds, outOfBounds})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if processed, _ := resp["processed"].(float64); processed != 1 {
		t.Errorf("processed = %v, want 1 (out-of-grid skipped)", resp["processed"])
	}

	if _, err := stores.Searches.Get(context.Background(), "SIGs1"); err != nil {
		t.Errorf("in-bounds search not stored: %v", err)
	}
	if _, err := stores.Searches.Get(context.Background(), "SIGs2"); err == nil {
		t.Error("out-of-bounds search must not be stored")
	}
}

func TestWebhook_Health(t *testing.T) {
	svc, _ := newTestService("")
	handler := svc.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp["success"] != true || resp["status"] != "online" {
		t.Errorf("unexpected health body: %v", resp)
	}
	if resp["ready"] != true {
		t.Errorf("ready = %v, want true", resp["ready"])
	}
}
