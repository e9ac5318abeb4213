package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/review-background/internal/billing"
	"github.com/shehryarbajwa/review-background/internal/session"
)

// HostStatus reports whether the extension shim is attached
type HostStatus interface {
	Connected() bool
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sessionMgr *session.Manager
	billing    *billing.Facade
	host       HostStatus
}

// NewHandler creates a new HTTP handler
func NewHandler(sessionMgr *session.Manager, facade *billing.Facade, host HostStatus) *Handler {
	return &Handler{
		sessionMgr: sessionMgr,
		billing:    facade,
		host:       host,
	}
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionMgr.List())
}

// GetSession handles GET /v1/sessions/{tabId}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	tabID, err := strconv.Atoi(mux.Vars(r)["tabId"])
	if err != nil {
		http.Error(w, "Invalid tab id", http.StatusBadRequest)
		return
	}

	session, err := h.sessionMgr.Get(tabID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GetDonation handles GET /v1/donation
func (h *Handler) GetDonation(w http.ResponseWriter, r *http.Request) {
	state := h.billing.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"sku":     h.billing.SKU(),
		"state":   state,
		"donated": state.Bool(),
	})
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"hostConnected":  h.host.Connected(),
		"activeSessions": h.sessionMgr.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
