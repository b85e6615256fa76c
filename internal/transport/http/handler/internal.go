package handler

import (
	"encoding/json"
	"net/http"

	"github.com/account-validity/internal/application/renewal"
)

// InternalHandler serves the host-to-service hook endpoints. The router gates
// these behind the shared internal secret.
type InternalHandler struct {
	renewal renewal.Service
}

func NewInternalHandler(renewalSvc renewal.Service) *InternalHandler {
	return &InternalHandler{renewal: renewalSvc}
}

type onRegistrationRequest struct {
	AccountID string `json:"account_id"`
}

// OnRegistration is called by the host platform after it creates an account,
// so the account starts its first validity period immediately.
func (h *InternalHandler) OnRegistration(w http.ResponseWriter, r *http.Request) {
	var req onRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.renewal.OnRegistration(r.Context(), req.AccountID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to initialize account validity")
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ok"})
}
