package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"wagerboard/internal/app/betting"
	"wagerboard/internal/app/challenge"
	"wagerboard/internal/apperr"
	"wagerboard/internal/ledger"
	"wagerboard/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type AdminHandlers struct {
	store    store.Gateway
	ledger   *ledger.Ledger
	registry *challenge.Registry
	engine   *betting.Engine
}

func NewAdminHandlers(st store.Gateway, l *ledger.Ledger, reg *challenge.Registry, eng *betting.Engine) *AdminHandlers {
	return &AdminHandlers{store: st, ledger: l, registry: reg, engine: eng}
}

func (h *AdminHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "db": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "db": "up"})
	}
}

func (h *AdminHandlers) Ledger() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		q := r.URL.Query()
		f := store.LedgerFilter{UserID: q.Get("user_id"), RefType: q.Get("ref_type"), RefID: q.Get("ref_id")}
		if v := q.Get("from"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				f.From = &t
			}
		}
		if v := q.Get("to"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				f.To = &t
			}
		}
		items, err := h.ledger.ListEntries(r.Context(), f, limit, offset)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit, "offset": offset})
	}
}

func (h *AdminHandlers) Adjust() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Delta int64 `json:"delta"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		userID := chi.URLParam(r, "user_id")
		bal, err := h.ledger.AdjustBalance(r.Context(), userID, body.Delta)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": bal})
	}
}

func (h *AdminHandlers) CreateChallenge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name       string `json:"name"`
			Reward     int64  `json:"reward"`
			Repeatable bool   `json:"repeatable"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		id, err := h.registry.CreateChallenge(r.Context(), body.Name, body.Reward, body.Repeatable)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"challenge_id": id})
	}
}

func (h *AdminHandlers) CompleteChallenge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			WriteAppError(w, r, apperr.ErrChallengeNotFound)
			return
		}
		var body struct {
			UserID string `json:"user_id"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		res, err := h.registry.CompleteChallenge(r.Context(), body.UserID, id)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *AdminHandlers) CreateEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			OutcomeA  string          `json:"outcome_a"`
			OutcomeB  string          `json:"outcome_b"`
			OddsA     decimal.Decimal `json:"odds_a"`
			OddsB     decimal.Decimal `json:"odds_b"`
			CloseTime time.Time       `json:"close_time"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		id, err := h.engine.CreateEvent(r.Context(), chi.URLParam(r, "scope"), body.OutcomeA, body.OutcomeB, body.OddsA, body.OddsB, body.CloseTime)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"event_id": id})
	}
}

func (h *AdminHandlers) SettleEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Winner string `json:"winner"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		res, err := h.engine.SettleEvent(r.Context(), chi.URLParam(r, "scope"), chi.URLParam(r, "event_id"), body.Winner)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
