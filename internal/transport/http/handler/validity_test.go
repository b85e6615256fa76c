package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/account-validity/internal/domain"
	jwtinfra "github.com/account-validity/internal/infrastructure/jwt"
	s3infra "github.com/account-validity/internal/infrastructure/s3"
	"github.com/account-validity/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const linkTok = "abcdefghijklmnopqrstuvwxyzABCDEF"

// --- mocks ---

type mockRenewalService struct{ mock.Mock }

func (m *mockRenewalService) IssueToken(ctx context.Context, accountID string, format domain.TokenFormat) (string, error) {
	args := m.Called(ctx, accountID, format)
	return args.String(0), args.Error(1)
}
func (m *mockRenewalService) AttemptRenewal(ctx context.Context, tok, authedAccountID string) (domain.RenewalOutcome, error) {
	args := m.Called(ctx, tok, authedAccountID)
	return args.Get(0).(domain.RenewalOutcome), args.Error(1)
}
func (m *mockRenewalService) ExtendValidity(ctx context.Context, accountID string, expirationTS *int64, notified bool, keepToken string) (int64, error) {
	args := m.Called(ctx, accountID, expirationTS, notified, keepToken)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockRenewalService) IsExpired(ctx context.Context, accountID string) (*bool, error) {
	args := m.Called(ctx, accountID)
	if b, _ := args.Get(0).(*bool); b != nil {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockRenewalService) OnRegistration(ctx context.Context, accountID string) error {
	return m.Called(ctx, accountID).Error(0)
}

type mockNotifierService struct{ mock.Mock }

func (m *mockNotifierService) SendRenewalNotice(ctx context.Context, accountID string, expirationTS int64) error {
	return m.Called(ctx, accountID, expirationTS).Error(0)
}
func (m *mockNotifierService) SendRenewalNoticeToAccount(ctx context.Context, accountID string) error {
	return m.Called(ctx, accountID).Error(0)
}

type mockNoticeLister struct{ mock.Mock }

func (m *mockNoticeLister) ListByAccount(ctx context.Context, accountID string) ([]domain.RenewalNotice, error) {
	args := m.Called(ctx, accountID)
	if n, _ := args.Get(0).([]domain.RenewalNotice); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

func testTemplates(t *testing.T) *s3infra.Templates {
	t.Helper()
	tmpl, err := s3infra.LoadTemplates(context.Background(), nil, "")
	require.NoError(t, err)
	return tmpl
}

func newValidityHandler(t *testing.T, rs *mockRenewalService, ns *mockNotifierService) *ValidityHandler {
	t.Helper()
	return NewValidityHandler(rs, ns, testTemplates(t), "Example App")
}

func authedRequest(req *http.Request, accountID, role string) *http.Request {
	claims := &jwtinfra.Claims{AccountID: accountID, Role: role}
	ctx := context.WithValue(req.Context(), middleware.ClaimsKey, claims)
	return req.WithContext(ctx)
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func ptr[T any](v T) *T { return &v }

// --- Renew (HTML) tests ---

func TestRenew_ValidToken(t *testing.T) {
	rs := &mockRenewalService{}
	rs.On("AttemptRenewal", mock.Anything, linkTok, "").
		Return(domain.RenewalOutcome{Valid: true, ExpirationTS: 1_700_000_000_000}, nil)

	h := newValidityHandler(t, rs, &mockNotifierService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/validity/renew?token="+linkTok, nil)
	rr := httptest.NewRecorder()
	h.Renew(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "renewed")
}

func TestRenew_StaleToken(t *testing.T) {
	rs := &mockRenewalService{}
	rs.On("AttemptRenewal", mock.Anything, linkTok, "").
		Return(domain.RenewalOutcome{Stale: true, ExpirationTS: 1_700_000_000_000}, nil)

	h := newValidityHandler(t, rs, &mockNotifierService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/validity/renew?token="+linkTok, nil)
	rr := httptest.NewRecorder()
	h.Renew(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "already renewed")
}

func TestRenew_UnknownToken(t *testing.T) {
	rs := &mockRenewalService{}
	rs.On("AttemptRenewal", mock.Anything, linkTok, "").
		Return(domain.RenewalOutcome{}, nil)

	h := newValidityHandler(t, rs, &mockNotifierService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/validity/renew?token="+linkTok, nil)
	rr := httptest.NewRecorder()
	h.Renew(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRenew_MalformedTokenNeverHitsService(t *testing.T) {
	rs := &mockRenewalService{}

	h := newValidityHandler(t, rs, &mockNotifierService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/validity/renew?token=12345678", nil)
	rr := httptest.NewRecorder()
	h.Renew(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	rs.AssertNotCalled(t, "AttemptRenewal")
}

func TestRenew_MissingToken(t *testing.T) {
	h := newValidityHandler(t, &mockRenewalService{}, &mockNotifierService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/validity/renew", nil)
	rr := httptest.NewRecorder()
	h.Renew(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// --- RenewJSON tests ---

func TestRenewJSON_Valid(t *testing.T) {
	rs := &mockRenewalService{}
	rs.On("AttemptRenewal", mock.Anything, "12345678", "a1").
		Return(domain.RenewalOutcome{Valid: true, ExpirationTS: 42}, nil)

	h := newValidityHandler(t, rs, &mockNotifierService{})
	req := httptest.NewRequest(http.MethodPost, "/v1/validity/renew", jsonBody(t, map[string]string{"token": "12345678"}))
	req = authedRequest(req, "a1", "user")
	rr := httptest.NewRecorder()
	h.RenewJSON(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var env RenewalEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.True(t, env.Valid)
	assert.Equal(t, int64(42), env.ExpirationTS)
}

func TestRenewJSON_AnonymousPassesEmptyAccount(t *testing.T) {
	rs := &mockRenewalService{}
	rs.On("AttemptRenewal", mock.Anything, linkTok, "").
		Return(domain.RenewalOutcome{Valid: true, ExpirationTS: 42}, nil)

	h := newValidityHandler(t, rs, &mockNotifierService{})
	req := httptest.NewRequest(http.MethodPost, "/v1/validity/renew", jsonBody(t, map[string]string{"token": linkTok}))
	rr := httptest.NewRecorder()
	h.RenewJSON(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	rs.AssertExpectations(t)
}

func TestRenewJSON_MissingToken(t *testing.T) {
	h := newValidityHandler(t, &mockRenewalService{}, &mockNotifierService{})
	req := httptest.NewRequest(http.MethodPost, "/v1/validity/renew", jsonBody(t, map[string]string{}))
	rr := httptest.NewRecorder()
	h.RenewJSON(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- SendMail tests ---

func TestSendMail_OwnAccount(t *testing.T) {
	ns := &mockNotifierService{}
	ns.On("SendRenewalNoticeToAccount", mock.Anything, "a1").Return(nil)

	h := newValidityHandler(t, &mockRenewalService{}, ns)
	req := httptest.NewRequest(http.MethodPost, "/v1/validity/send_mail", bytes.NewBufferString(""))
	req = authedRequest(req, "a1", "user")
	rr := httptest.NewRecorder()
	h.SendMail(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	ns.AssertExpectations(t)
}

func TestSendMail_OtherAccountRequiresAdmin(t *testing.T) {
	ns := &mockNotifierService{}

	h := newValidityHandler(t, &mockRenewalService{}, ns)
	req := httptest.NewRequest(http.MethodPost, "/v1/validity/send_mail", jsonBody(t, map[string]string{"account_id": "a2"}))
	req = authedRequest(req, "a1", "user")
	rr := httptest.NewRecorder()
	h.SendMail(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	ns.AssertNotCalled(t, "SendRenewalNoticeToAccount")
}

func TestSendMail_AdminTargetsOtherAccount(t *testing.T) {
	ns := &mockNotifierService{}
	ns.On("SendRenewalNoticeToAccount", mock.Anything, "a2").Return(nil)

	h := newValidityHandler(t, &mockRenewalService{}, ns)
	req := httptest.NewRequest(http.MethodPost, "/v1/validity/send_mail", jsonBody(t, map[string]string{"account_id": "a2"}))
	req = authedRequest(req, "a1", domain.RoleAdmin)
	rr := httptest.NewRecorder()
	h.SendMail(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	ns.AssertExpectations(t)
}

func TestSendMail_NoExpirationIs404(t *testing.T) {
	ns := &mockNotifierService{}
	ns.On("SendRenewalNoticeToAccount", mock.Anything, "a1").Return(domain.ErrMissingExpiration)

	h := newValidityHandler(t, &mockRenewalService{}, ns)
	req := httptest.NewRequest(http.MethodPost, "/v1/validity/send_mail", bytes.NewBufferString(""))
	req = authedRequest(req, "a1", "user")
	rr := httptest.NewRecorder()
	h.SendMail(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSendMail_Unauthenticated(t *testing.T) {
	h := newValidityHandler(t, &mockRenewalService{}, &mockNotifierService{})
	req := httptest.NewRequest(http.MethodPost, "/v1/validity/send_mail", bytes.NewBufferString(""))
	rr := httptest.NewRecorder()
	h.SendMail(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

// --- Admin tests ---

func adminRequest(t *testing.T, body interface{}) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/validity", jsonBody(t, body))
	return authedRequest(req, "admin1", domain.RoleAdmin)
}

func TestSetValidity_DefaultExtension(t *testing.T) {
	rs := &mockRenewalService{}
	rs.On("ExtendValidity", mock.Anything, "a1", (*int64)(nil), false, "").
		Return(int64(12345), nil)

	h := NewAdminHandler(rs, &mockNoticeLister{})
	rr := httptest.NewRecorder()
	h.SetValidity(rr, adminRequest(t, map[string]interface{}{"account_id": "a1"}))

	require.Equal(t, http.StatusOK, rr.Code)
	var env ValidityEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, int64(12345), env.ExpirationTS)
	rs.AssertExpectations(t)
}

func TestSetValidity_DisablingEmailsMarksNotified(t *testing.T) {
	rs := &mockRenewalService{}
	rs.On("ExtendValidity", mock.Anything, "a1", ptr(int64(999)), true, "").
		Return(int64(999), nil)

	h := NewAdminHandler(rs, &mockNoticeLister{})
	rr := httptest.NewRecorder()
	h.SetValidity(rr, adminRequest(t, map[string]interface{}{
		"account_id":            "a1",
		"expiration_ts":         999,
		"enable_renewal_emails": false,
	}))

	assert.Equal(t, http.StatusOK, rr.Code)
	rs.AssertExpectations(t)
}

func TestSetValidity_MissingAccountID(t *testing.T) {
	h := NewAdminHandler(&mockRenewalService{}, &mockNoticeLister{})
	rr := httptest.NewRecorder()
	h.SetValidity(rr, adminRequest(t, map[string]interface{}{"expiration_ts": 999}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestIsExpired_NoRecord(t *testing.T) {
	rs := &mockRenewalService{}
	rs.On("IsExpired", mock.Anything, "ghost").Return(nil, nil)

	h := NewAdminHandler(rs, &mockNoticeLister{})
	r := chi.NewRouter()
	r.Get("/v1/admin/validity/{account_id}/expired", h.IsExpired)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/validity/ghost/expired", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestIsExpired_Expired(t *testing.T) {
	rs := &mockRenewalService{}
	rs.On("IsExpired", mock.Anything, "a1").Return(ptr(true), nil)

	h := NewAdminHandler(rs, &mockNoticeLister{})
	r := chi.NewRouter()
	r.Get("/v1/admin/validity/{account_id}/expired", h.IsExpired)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/validity/a1/expired", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var env ExpiredEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.True(t, env.Expired)
}

func TestListNotices_EmptyIsJSONArray(t *testing.T) {
	nl := &mockNoticeLister{}
	nl.On("ListByAccount", mock.Anything, "a1").Return(nil, nil)

	h := NewAdminHandler(&mockRenewalService{}, nl)
	r := chi.NewRouter()
	r.Get("/v1/admin/validity/{account_id}/notices", h.ListNotices)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/validity/a1/notices", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestListNotices_ReturnsAuditTrail(t *testing.T) {
	nl := &mockNoticeLister{}
	nl.On("ListByAccount", mock.Anything, "a1").Return([]domain.RenewalNotice{
		{NoticeID: "n1", AccountID: "a1", TokenFormat: "link"},
	}, nil)

	h := NewAdminHandler(&mockRenewalService{}, nl)
	r := chi.NewRouter()
	r.Get("/v1/admin/validity/{account_id}/notices", h.ListNotices)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/validity/a1/notices", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var notices []domain.RenewalNotice
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &notices))
	require.Len(t, notices, 1)
	assert.Equal(t, "n1", notices[0].NoticeID)
}

// --- Internal hook tests ---

func TestOnRegistration_HappyPath(t *testing.T) {
	rs := &mockRenewalService{}
	rs.On("OnRegistration", mock.Anything, "a1").Return(nil)

	h := NewInternalHandler(rs)
	req := httptest.NewRequest(http.MethodPost, "/v1/internal/on_registration", jsonBody(t, map[string]string{"account_id": "a1"}))
	rr := httptest.NewRecorder()
	h.OnRegistration(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	rs.AssertExpectations(t)
}

func TestOnRegistration_MissingAccountID(t *testing.T) {
	h := NewInternalHandler(&mockRenewalService{})
	req := httptest.NewRequest(http.MethodPost, "/v1/internal/on_registration", jsonBody(t, map[string]string{}))
	rr := httptest.NewRecorder()
	h.OnRegistration(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOnRegistration_StoreError(t *testing.T) {
	rs := &mockRenewalService{}
	rs.On("OnRegistration", mock.Anything, "a1").Return(errors.New("dynamo error"))

	h := NewInternalHandler(rs)
	req := httptest.NewRequest(http.MethodPost, "/v1/internal/on_registration", jsonBody(t, map[string]string{"account_id": "a1"}))
	rr := httptest.NewRecorder()
	h.OnRegistration(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
