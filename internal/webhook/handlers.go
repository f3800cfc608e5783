package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/observability"
	"treasure-monitor/internal/storage"
)

// defaultQueryLimit caps list endpoints when no limit is given.
const defaultQueryLimit = 100

// Handler builds the HTTP mux for the ingestion service.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())

	mux.HandleFunc("POST /webhook/treasure", s.webhookHandler(domain.EventHideTreasure))
	mux.HandleFunc("POST /webhook/search", s.webhookHandler(domain.EventSearchTreasure))
	mux.HandleFunc("POST /webhook/clue", s.webhookHandler(domain.EventClueRequest))

	mux.HandleFunc("GET /api/deposits", s.handleListDeposits)
	mux.HandleFunc("GET /api/deposits/{signature}", s.handleGetDeposit)
	mux.HandleFunc("PATCH /api/deposits/{signature}/status", s.handleDepositStatus)

	mux.HandleFunc("GET /api/searches", s.handleListSearches)
	mux.HandleFunc("GET /api/searches/{signature}", s.handleGetSearch)
	mux.HandleFunc("PATCH /api/searches/{signature}/status", s.handleSearchStatus)

	mux.HandleFunc("GET /api/clues", s.handleListClues)
	mux.HandleFunc("GET /api/clues/{signature}", s.handleGetClue)
	mux.HandleFunc("PATCH /api/clues/{signature}/status", s.handleClueStatus)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"service": "treasure-monitor-webhook",
		"status":  "online",
		"ready":   s.Ready(),
	})
}

// webhookHandler returns the ingestion handler for one event type. The
// body may be a single envelope or an array of them; the dispatcher sends
// one-element arrays.
func (s *Service) webhookHandler(t domain.EventType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r.Header.Get("Authorization")) {
			writeError(w, http.StatusUnauthorized, "Unauthorized - invalid authorization header")
			return
		}
		if !s.Ready() {
			// Reject before reading the batch: the sender should
			// retry once storage is up.
			writeError(w, http.StatusServiceUnavailable, "Database not ready")
			return
		}

		envs, err := decodeEnvelopes(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}

		results, err := s.processBatch(r.Context(), t, envs)
		if err != nil {
			s.logger.Printf("ERROR processing %s batch: %v", t, err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		// processed counts what was actually persisted, not what was
		// received; skipped envelopes show up in results with a reason.
		stored := 0
		for _, res := range results {
			if res.Stored {
				stored++
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"processed": stored,
			"results":   results,
		})
	}
}

// decodeEnvelopes accepts either a JSON array of envelopes or a single
// envelope object.
func decodeEnvelopes(r *http.Request) ([]*domain.WebhookEnvelope, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}

	var envs []*domain.WebhookEnvelope
	if err := json.Unmarshal(raw, &envs); err == nil {
		return envs, nil
	}

	var single domain.WebhookEnvelope
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return []*domain.WebhookEnvelope{&single}, nil
}

// queryLimit parses the limit query parameter with a default cap.
func queryLimit(r *http.Request) int {
	limit := defaultQueryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < defaultQueryLimit {
			limit = n
		}
	}
	return limit
}

func (s *Service) handleListDeposits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.DepositFilter{
		Wallet: q.Get("wallet"),
		Status: domain.Status(q.Get("status")),
		Limit:  queryLimit(r),
	}

	deposits, err := s.stores.Deposits.Query(r.Context(), f)
	if err != nil {
		s.logger.Printf("ERROR query deposits: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"count":    len(deposits),
		"deposits": deposits,
	})
}

func (s *Service) handleGetDeposit(w http.ResponseWriter, r *http.Request) {
	d, err := s.stores.Deposits.Get(r.Context(), r.PathValue("signature"))
	if err != nil {
		s.writeStoreError(w, err, "deposit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deposit": d,
	})
}

func (s *Service) handleDepositStatus(w http.ResponseWriter, r *http.Request) {
	s.updateStatus(w, r, domain.KindDeposit, s.stores.Deposits.UpdateStatus)
}

func (s *Service) handleListSearches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.SearchFilter{
		Wallet: q.Get("wallet"),
		Status: domain.Status(q.Get("status")),
		Limit:  queryLimit(r),
	}
	if v := q.Get("x"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid x coordinate")
			return
		}
		f.X = &n
	}
	if v := q.Get("y"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid y coordinate")
			return
		}
		f.Y = &n
	}

	searches, err := s.stores.Searches.Query(r.Context(), f)
	if err != nil {
		s.logger.Printf("ERROR query searches: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"count":    len(searches),
		"searches": searches,
	})
}

func (s *Service) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	m, err := s.stores.Searches.Get(r.Context(), r.PathValue("signature"))
	if err != nil {
		s.writeStoreError(w, err, "search")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"search":  m,
	})
}

func (s *Service) handleSearchStatus(w http.ResponseWriter, r *http.Request) {
	s.updateStatus(w, r, domain.KindSearch, s.stores.Searches.UpdateStatus)
}

func (s *Service) handleListClues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := storage.ClueFilter{
		Wallet: q.Get("wallet"),
		Status: domain.Status(q.Get("status")),
		Limit:  queryLimit(r),
	}

	clues, err := s.stores.Clues.Query(r.Context(), f)
	if err != nil {
		s.logger.Printf("ERROR query clues: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(clues),
		"clues":   clues,
	})
}

func (s *Service) handleGetClue(w http.ResponseWriter, r *http.Request) {
	c, err := s.stores.Clues.Get(r.Context(), r.PathValue("signature"))
	if err != nil {
		s.writeStoreError(w, err, "clue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"clue":    c,
	})
}

func (s *Service) handleClueStatus(w http.ResponseWriter, r *http.Request) {
	s.updateStatus(w, r, domain.KindClue, s.stores.Clues.UpdateStatus)
}

// updateStatus handles PATCH .../{signature}/status for any record kind.
func (s *Service) updateStatus(w http.ResponseWriter, r *http.Request, kind domain.RecordKind, update func(ctx context.Context, signature string, status domain.Status) error) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	status := domain.Status(body.Status)
	if !domain.ValidStatus(kind, status) {
		writeError(w, http.StatusBadRequest, "Invalid status value: "+body.Status)
		return
	}

	signature := r.PathValue("signature")
	err := update(r.Context(), signature, status)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"signature": signature,
			"status":    status,
		})
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, storage.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "Invalid status transition to "+body.Status)
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid status value: "+body.Status)
	default:
		s.logger.Printf("ERROR update status %s: %v", signature, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Service) writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}
	s.logger.Printf("ERROR get %s: %v", what, err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}
