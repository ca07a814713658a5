package httptransport

import (
	"net/http"
	"strconv"

	"wagerboard/internal/app/betting"
	"wagerboard/internal/app/challenge"
	"wagerboard/internal/app/gamble"
	"wagerboard/internal/apperr"
	"wagerboard/internal/ledger"

	"github.com/go-chi/chi/v5"
)

type PublicHandlers struct {
	ledger   *ledger.Ledger
	registry *challenge.Registry
	engine   *betting.Engine
	gamble   *gamble.Service
}

func NewPublicHandlers(l *ledger.Ledger, reg *challenge.Registry, eng *betting.Engine, g *gamble.Service) *PublicHandlers {
	return &PublicHandlers{ledger: l, registry: reg, engine: eng, gamble: g}
}

func (h *PublicHandlers) Balance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")
		bal, err := h.ledger.GetBalance(r.Context(), userID)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "balance": bal})
	}
}

func (h *PublicHandlers) Leaderboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 10
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				WriteAppError(w, r, apperr.ErrInvalidLimit)
				return
			}
			limit = n
		}
		items, err := h.ledger.ListTopUsers(r.Context(), limit)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func (h *PublicHandlers) Challenges() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.registry.ListChallenges(r.Context())
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func (h *PublicHandlers) Completions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.registry.ListCompletions(r.Context())
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func (h *PublicHandlers) OpenEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.engine.ListOpenEvents(r.Context(), chi.URLParam(r, "scope"))
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func (h *PublicHandlers) EventDetail() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := h.engine.GetEventDetail(r.Context(), chi.URLParam(r, "scope"), chi.URLParam(r, "event_id"))
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func (h *PublicHandlers) PlaceBet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID  string `json:"user_id"`
			Outcome string `json:"outcome"`
			Amount  int64  `json:"amount"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		conf, err := h.engine.PlaceBet(r.Context(), chi.URLParam(r, "scope"), chi.URLParam(r, "event_id"), body.UserID, body.Outcome, body.Amount)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, conf)
	}
}

func (h *PublicHandlers) FiftyFifty() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID string `json:"user_id"`
			Amount int64  `json:"amount"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		res, err := h.gamble.FiftyFifty(r.Context(), body.UserID, body.Amount)
		if err != nil {
			WriteAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
