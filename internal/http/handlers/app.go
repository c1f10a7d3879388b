package handlers

import (
	"encoding/json"
	"net/http"

	"reelgen/internal/credit"
	"reelgen/internal/infra"
	"reelgen/internal/middleware"
	"reelgen/internal/publish"
	"reelgen/internal/task"
)

// App wires handlers to their collaborators.
type App struct {
	SQL       infra.SQLExecutor
	Logger    infra.Logger
	Tasks     *task.Manager
	Publisher *publish.Controller
	Ledger    *credit.Ledger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// decodeStrict decodes a JSON body rejecting unknown fields, so untrusted
// extras (like a client-supplied destination) fail loudly instead of being
// silently dropped.
func decodeStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
