package handlers

import (
	"net/http"
	"strconv"
	"time"

	"reelgen/internal/domain"
)

type ledgerEntryResponse struct {
	ID            string    `json:"id"`
	Delta         int64     `json:"delta"`
	Reason        string    `json:"reason"`
	RelatedTaskID string    `json:"related_task_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (a *App) MeCredits(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("handlers: balance lookup failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"balance": balance})
}

func (a *App) MeLedger(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	entries, err := a.Ledger.History(r.Context(), userID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("handlers: ledger history failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load ledger")
		return
	}
	items := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, toLedgerEntryResponse(e))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func toLedgerEntryResponse(e domain.CreditLedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:            e.ID,
		Delta:         e.Delta,
		Reason:        string(e.Reason),
		RelatedTaskID: e.RelatedTaskID,
		CreatedAt:     e.CreatedAt,
	}
}
