package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/account-validity/internal/application/renewal"
	"github.com/account-validity/internal/domain"
	"github.com/account-validity/internal/pkg/validate"
)

// NoticeLister reads the renewal notice audit trail.
type NoticeLister interface {
	ListByAccount(ctx context.Context, accountID string) ([]domain.RenewalNotice, error)
}

// AdminHandler serves the admin validity endpoints.
type AdminHandler struct {
	renewal renewal.Service
	notices NoticeLister
}

func NewAdminHandler(renewalSvc renewal.Service, notices NoticeLister) *AdminHandler {
	return &AdminHandler{renewal: renewalSvc, notices: notices}
}

// SetValidity overrides an account's expiration. Omitting expiration_ts
// extends by one full period from now. enable_renewal_emails=false marks the
// account notified so the sweep never emails it this period.
func (h *AdminHandler) SetValidity(w http.ResponseWriter, r *http.Request) {
	var req domain.SetValidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	emailsEnabled := true
	if req.EnableRenewalEmails != nil {
		emailsEnabled = *req.EnableRenewalEmails
	}

	expiration, err := h.renewal.ExtendValidity(r.Context(), req.AccountID, req.ExpirationTS, !emailsEnabled, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set account validity")
		return
	}
	writeJSON(w, http.StatusOK, ValidityEnvelope{ExpirationTS: expiration})
}

// IsExpired reports whether an account is past its expiration.
func (h *AdminHandler) IsExpired(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	expired, err := h.renewal.IsExpired(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check account expiration")
		return
	}
	if expired == nil {
		writeError(w, http.StatusNotFound, "account has no validity record")
		return
	}
	writeJSON(w, http.StatusOK, ExpiredEnvelope{Expired: *expired})
}

// ListNotices returns the account's dispatched renewal notices, newest first.
func (h *AdminHandler) ListNotices(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "account_id")
	notices, err := h.notices.ListByAccount(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list renewal notices")
		return
	}
	if notices == nil {
		notices = []domain.RenewalNotice{}
	}
	writeJSON(w, http.StatusOK, notices)
}
