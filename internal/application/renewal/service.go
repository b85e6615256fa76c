package renewal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/account-validity/internal/domain"
	pkgclock "github.com/account-validity/internal/pkg/clock"
	pkgtoken "github.com/account-validity/internal/pkg/token"
)

// linkTokenAttempts is the retry budget for link-token issuance. A collision
// on 52^32 possible values means the store rejected two identical random
// draws; retrying with fresh randomness resolves it.
const linkTokenAttempts = 5

// ValidityStore is the minimal store contract the renewal engine requires.
type ValidityStore interface {
	SetValidity(ctx context.Context, rec *domain.ValidityRecord) error
	GetExpiration(ctx context.Context, accountID string) (*int64, error)
	SetToken(ctx context.Context, accountID, tok string) error
	ResolveToken(ctx context.Context, tok, accountID string) (string, int64, *int64, error)
	ConsumeToken(ctx context.Context, accountID, tok string, newExpiration, usedTS int64) error
	SetDefaultExpiration(ctx context.Context, accountID string) (int64, error)
}

// Service is the renewal state machine. A token moves Unissued -> Active ->
// Consumed; nothing ever leaves Consumed, and re-presenting a consumed token
// yields the Stale outcome rather than an error.
type Service interface {
	// IssueToken generates and stores a renewal token for the account.
	IssueToken(ctx context.Context, accountID string, format domain.TokenFormat) (string, error)

	// AttemptRenewal classifies tok and, when it is fresh, extends the
	// account's validity. "No such token" and "already consumed" are in-band
	// outcome values, never errors, so callers cannot mistake them for
	// system failures.
	AttemptRenewal(ctx context.Context, tok, authedAccountID string) (domain.RenewalOutcome, error)

	// ExtendValidity pushes back the account's expiration, resetting the
	// notified flag and marking any stored token consumed. keepToken is
	// written as the current token; empty clears it.
	ExtendValidity(ctx context.Context, accountID string, expirationTS *int64, notified bool, keepToken string) (int64, error)

	// IsExpired reports whether the account is past its expiration. Nil when
	// the account has no validity record.
	IsExpired(ctx context.Context, accountID string) (*bool, error)

	// OnRegistration gives a newly-registered account its default expiration.
	OnRegistration(ctx context.Context, accountID string) error
}

type service struct {
	store  ValidityStore
	clock  pkgclock.Clock
	period int64
}

func NewService(store ValidityStore, clk pkgclock.Clock, periodMS int64) Service {
	return &service{store: store, clock: clk, period: periodMS}
}

func (s *service) IssueToken(ctx context.Context, accountID string, format domain.TokenFormat) (string, error) {
	if format == domain.TokenFormatManual {
		// Manual tokens overwrite the account's previous code, so uniqueness
		// within the account holds by construction and there is nothing to
		// retry — a conflict here would be a bug, not contention.
		tok, err := pkgtoken.NewManualToken()
		if err != nil {
			return "", err
		}
		if err := s.store.SetToken(ctx, accountID, tok); err != nil {
			return "", err
		}
		return tok, nil
	}

	for attempt := 0; attempt < linkTokenAttempts; attempt++ {
		tok, err := pkgtoken.NewLinkToken()
		if err != nil {
			return "", err
		}
		err = s.store.SetToken(ctx, accountID, tok)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, domain.ErrTokenConflict) {
			return "", err
		}
	}
	return "", fmt.Errorf("account %s: %w", accountID, domain.ErrTokenExhausted)
}

func (s *service) AttemptRenewal(ctx context.Context, tok, authedAccountID string) (domain.RenewalOutcome, error) {
	// A manual token alone cannot identify an account — the same digit code
	// may be outstanding for several accounts at once.
	if pkgtoken.IsManualFormat(tok) && authedAccountID == "" {
		slog.Info("manual renewal token presented without an authenticated account")
		return domain.RenewalOutcome{}, nil
	}

	accountID, expiration, usedTS, err := s.store.ResolveToken(ctx, tok, authedAccountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.RenewalOutcome{}, nil
		}
		return domain.RenewalOutcome{}, err
	}

	if usedTS != nil {
		slog.Info("account attempted to reuse a consumed renewal token", "account_id", accountID)
		return domain.RenewalOutcome{Stale: true, ExpirationTS: expiration}, nil
	}

	slog.Debug("renewing account", "account_id", accountID)

	// The token is deliberately kept on the record so a second presentation
	// (e.g. clicking the email link twice) classifies as Stale instead of
	// Invalid, with the expiration unchanged.
	now := s.clock.NowMS()
	newExpiration := now + s.period
	err = s.store.ConsumeToken(ctx, accountID, tok, newExpiration, now)
	if err != nil {
		if errors.Is(err, domain.ErrTokenUsed) {
			// Lost the race against a concurrent renewal of the same token.
			// Re-read so the Stale outcome carries the winner's expiration.
			_, current, _, rerr := s.store.ResolveToken(ctx, tok, authedAccountID)
			if rerr != nil {
				current = expiration
			}
			return domain.RenewalOutcome{Stale: true, ExpirationTS: current}, nil
		}
		return domain.RenewalOutcome{}, err
	}

	return domain.RenewalOutcome{Valid: true, ExpirationTS: newExpiration}, nil
}

func (s *service) ExtendValidity(ctx context.Context, accountID string, expirationTS *int64, notified bool, keepToken string) (int64, error) {
	now := s.clock.NowMS()
	expiration := now + s.period
	if expirationTS != nil {
		expiration = *expirationTS
	}

	n := 0
	if notified {
		n = 1
	}

	// token_used_ts is set on every extension, token-driven or not, which is
	// what marks any currently-stored token as consumed.
	rec := &domain.ValidityRecord{
		AccountID:    accountID,
		ExpirationTS: expiration,
		Notified:     n,
		RenewalToken: keepToken,
		TokenUsedTS:  &now,
	}
	if err := s.store.SetValidity(ctx, rec); err != nil {
		return 0, err
	}
	return expiration, nil
}

func (s *service) IsExpired(ctx context.Context, accountID string) (*bool, error) {
	expiration, err := s.store.GetExpiration(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if expiration == nil {
		return nil, nil
	}
	expired := s.clock.NowMS() >= *expiration
	return &expired, nil
}

func (s *service) OnRegistration(ctx context.Context, accountID string) error {
	_, err := s.store.SetDefaultExpiration(ctx, accountID)
	return err
}
