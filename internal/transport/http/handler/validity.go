package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/account-validity/internal/application/notifier"
	"github.com/account-validity/internal/application/renewal"
	"github.com/account-validity/internal/domain"
	s3infra "github.com/account-validity/internal/infrastructure/s3"
	pkgtoken "github.com/account-validity/internal/pkg/token"
	"github.com/account-validity/internal/transport/http/middleware"
)

// ValidityHandler serves the renewal endpoints: the public email-link landing
// page, the JSON renewal API and the send-mail trigger.
type ValidityHandler struct {
	renewal   renewal.Service
	notifier  notifier.Service
	templates *s3infra.Templates
	appName   string
}

func NewValidityHandler(renewalSvc renewal.Service, notifierSvc notifier.Service, tmpl *s3infra.Templates, appName string) *ValidityHandler {
	return &ValidityHandler{renewal: renewalSvc, notifier: notifierSvc, templates: tmpl, appName: appName}
}

// Renew is the browser landing page behind the link in renewal emails. It
// accepts link-format tokens only; manual codes must go through the JSON API
// because they cannot identify an account on their own.
func (h *ValidityHandler) Renew(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if !pkgtoken.IsLinkFormat(tok) {
		h.renderInvalid(w)
		return
	}

	outcome, err := h.renewal.AttemptRenewal(r.Context(), tok, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "renewal failed")
		return
	}

	switch {
	case outcome.Valid:
		h.renderPage(w, http.StatusOK, outcome.ExpirationTS, h.templates.RenderRenewedPage)
	case outcome.Stale:
		h.renderPage(w, http.StatusOK, outcome.ExpirationTS, h.templates.RenderPreviouslyRenewedPage)
	default:
		h.renderInvalid(w)
	}
}

type renewRequest struct {
	Token string `json:"token"`
}

// RenewJSON renews via the API. When the request carries a Bearer token the
// renewal is scoped to that account, which is what allows manual-format codes.
func (h *ValidityHandler) RenewJSON(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}

	authedAccountID := ""
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		authedAccountID = claims.AccountID
	}

	outcome, err := h.renewal.AttemptRenewal(r.Context(), req.Token, authedAccountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "renewal failed")
		return
	}
	writeJSON(w, http.StatusOK, RenewalEnvelope{
		Valid:        outcome.Valid,
		Stale:        outcome.Stale,
		ExpirationTS: outcome.ExpirationTS,
	})
}

type sendMailRequest struct {
	AccountID string `json:"account_id"`
}

// SendMail re-sends the renewal notice. Regular accounts can only trigger
// their own; admins may name any account in the body.
func (h *ValidityHandler) SendMail(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	target := claims.AccountID
	var req sendMailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID != "" && req.AccountID != claims.AccountID {
		if claims.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, "cannot send renewal email for another account")
			return
		}
		target = req.AccountID
	}

	if err := h.notifier.SendRenewalNoticeToAccount(r.Context(), target); err != nil {
		if errors.Is(err, domain.ErrMissingExpiration) {
			writeError(w, http.StatusNotFound, "account has no expiration time")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to send renewal email")
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "email sent"})
}

func (h *ValidityHandler) renderPage(w http.ResponseWriter, status int, expirationTS int64, render func(s3infra.PageVars) (string, error)) {
	body, err := render(s3infra.PageVars{
		AppName:        h.appName,
		ExpirationDate: formatExpirationDate(expirationTS),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	writeHTML(w, status, body)
}

func (h *ValidityHandler) renderInvalid(w http.ResponseWriter) {
	body, err := h.templates.RenderInvalidTokenPage(s3infra.PageVars{AppName: h.appName})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	writeHTML(w, http.StatusNotFound, body)
}

func formatExpirationDate(ts int64) string {
	return time.UnixMilli(ts).UTC().Format("02 Jan 2006")
}
