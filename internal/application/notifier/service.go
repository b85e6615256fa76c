package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/account-validity/internal/application/directory"
	"github.com/account-validity/internal/application/renewal"
	"github.com/account-validity/internal/domain"
	s3infra "github.com/account-validity/internal/infrastructure/s3"
	pkgclock "github.com/account-validity/internal/pkg/clock"
	"github.com/account-validity/internal/pkg/id"
)

// Mailer matches the SMTP infrastructure's sending contract.
type Mailer interface {
	SendEmail(to, subject, htmlBody, textBody string) error
}

// SMSSender delivers manual-entry renewal codes. Nil in deployments without
// SNS configured.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// NotifiedStore covers the validity-store operations the notifier touches.
type NotifiedStore interface {
	GetExpiration(ctx context.Context, accountID string) (*int64, error)
	SetNotified(ctx context.Context, accountID string, notified bool) error
}

// NoticeStore persists the per-dispatch audit trail.
type NoticeStore interface {
	Put(ctx context.Context, n *domain.RenewalNotice) error
}

// Service composes and dispatches renewal notifications.
type Service interface {
	// SendRenewalNotice issues a fresh token for the account and emails the
	// notice to every address on file. Accounts with no addresses are
	// skipped silently. A partial delivery failure is not an error; the
	// account is marked notified as long as at least one message went out.
	SendRenewalNotice(ctx context.Context, accountID string, expirationTS int64) error

	// SendRenewalNoticeToAccount looks the expiration up first, for callers
	// that only know the account. ErrMissingExpiration when the account has
	// no validity record.
	SendRenewalNoticeToAccount(ctx context.Context, accountID string) error
}

// Deps carries the service's collaborators. SMS may be nil.
type Deps struct {
	Renewal   renewal.Service
	Directory directory.Service
	Store     NotifiedStore
	Notices   NoticeStore
	Mailer    Mailer
	SMS       SMSSender
	Templates *s3infra.Templates
	Clock     pkgclock.Clock

	AppName       string
	Subject       string
	PublicBaseURL string
	TokenFormat   domain.TokenFormat
}

type service struct {
	deps Deps
}

func NewService(deps Deps) Service {
	return &service{deps: deps}
}

func (s *service) SendRenewalNoticeToAccount(ctx context.Context, accountID string) error {
	expiration, err := s.deps.Store.GetExpiration(ctx, accountID)
	if err != nil {
		return err
	}
	if expiration == nil {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrMissingExpiration)
	}
	return s.SendRenewalNotice(ctx, accountID, *expiration)
}

func (s *service) SendRenewalNotice(ctx context.Context, accountID string, expirationTS int64) error {
	addresses, err := s.deps.Directory.GetEmailAddresses(ctx, accountID)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		slog.Debug("account has no email addresses, skipping renewal notice", "account_id", accountID)
		return nil
	}

	displayName, err := s.deps.Directory.GetDisplayName(ctx, accountID)
	if err != nil {
		return err
	}

	tok, err := s.deps.Renewal.IssueToken(ctx, accountID, s.deps.TokenFormat)
	if err != nil {
		return err
	}

	vars := s3infra.NoticeVars{
		AppName:        s.deps.AppName,
		DisplayName:    displayName,
		ExpirationDate: formatExpiration(expirationTS),
	}
	if s.deps.TokenFormat == domain.TokenFormatLink {
		vars.RenewalURL = fmt.Sprintf("%s/v1/validity/renew?token=%s",
			strings.TrimRight(s.deps.PublicBaseURL, "/"), url.QueryEscape(tok))
	} else {
		vars.RenewalToken = tok
	}

	htmlBody, err := s.deps.Templates.RenderNoticeHTML(vars)
	if err != nil {
		return err
	}
	textBody, err := s.deps.Templates.RenderNoticeText(vars)
	if err != nil {
		return err
	}

	subject := strings.ReplaceAll(s.deps.Subject, "%(app)s", s.deps.AppName)

	sent := 0
	for _, addr := range addresses {
		if err := s.deps.Mailer.SendEmail(addr, subject, htmlBody, textBody); err != nil {
			slog.Error("failed to send renewal notice",
				"account_id", accountID, "address", addr, "error", err)
			continue
		}
		sent++
	}

	// Manual-entry codes additionally go out over SMS when the account has a
	// phone on file, so the user can type the code without opening email.
	if s.deps.TokenFormat == domain.TokenFormatManual && s.deps.SMS != nil {
		s.sendSMSCode(ctx, accountID, tok)
	}

	notice := &domain.RenewalNotice{
		NoticeID:     id.New(),
		AccountID:    accountID,
		ExpirationTS: expirationTS,
		TokenFormat:  string(s.deps.TokenFormat),
		Addresses:    addresses,
		CreatedAt:    time.UnixMilli(s.deps.Clock.NowMS()).UTC(),
	}
	if err := s.deps.Notices.Put(ctx, notice); err != nil {
		slog.Error("failed to persist renewal notice record",
			"account_id", accountID, "error", err)
	}

	if sent == 0 {
		return fmt.Errorf("account %s: all %d renewal notice deliveries failed", accountID, len(addresses))
	}
	return s.deps.Store.SetNotified(ctx, accountID, true)
}

func (s *service) sendSMSCode(ctx context.Context, accountID, tok string) {
	phone, err := s.deps.Directory.GetPhoneNumber(ctx, accountID)
	if err != nil || phone == "" {
		return
	}
	msg := fmt.Sprintf("%s: your account renewal code is %s", s.deps.AppName, tok)
	if err := s.deps.SMS.SendSMS(ctx, phone, msg); err != nil {
		slog.Error("failed to send renewal code over SMS",
			"account_id", accountID, "error", err)
	}
}

func formatExpiration(ts int64) string {
	return time.UnixMilli(ts).UTC().Format("02 Jan 2006")
}
