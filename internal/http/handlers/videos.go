package handlers

import (
	"net/http"
	"strconv"
)

func (a *App) VideosFeed(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	videos, err := a.Publisher.ListPublished(r.Context(), limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("handlers: list videos failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list videos")
		return
	}
	items := make([]videoResponse, 0, len(videos))
	for i := range videos {
		items = append(items, toVideoResponse(&videos[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
