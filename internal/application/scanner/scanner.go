package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/account-validity/internal/domain"
)

// ExpiringLister finds accounts whose expiration falls inside a window and
// that have not been notified yet.
type ExpiringLister interface {
	ListExpiringWithin(ctx context.Context, windowMS int64) ([]domain.ExpiringAccount, error)
}

// Notifier dispatches a renewal notice for one account.
type Notifier interface {
	SendRenewalNotice(ctx context.Context, accountID string, expirationTS int64) error
}

// Scanner periodically sweeps for accounts entering their renewal window and
// triggers a notice for each. One notice per account per validity period; the
// store's notified flag keeps subsequent sweeps from re-selecting an account.
type Scanner struct {
	store    ExpiringLister
	notifier Notifier
	renewAt  int64
	interval time.Duration
}

func New(store ExpiringLister, notifier Notifier, renewAtMS int64, interval time.Duration) *Scanner {
	return &Scanner{
		store:    store,
		notifier: notifier,
		renewAt:  renewAtMS,
		interval: interval,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled. The first sweep
// happens one full interval after startup, not immediately, so a crash-looping
// process does not hammer the mail path.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("expiry scanner started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("expiry scanner stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				slog.Error("expiry sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single sweep. A failure to notify one account is logged
// and does not block the rest; the account stays unnotified and is retried on
// the next sweep.
func (s *Scanner) RunOnce(ctx context.Context) error {
	expiring, err := s.store.ListExpiringWithin(ctx, s.renewAt)
	if err != nil {
		return err
	}

	notified := 0
	for _, acc := range expiring {
		if acc.ExpirationTS == 0 {
			slog.Warn("skipping account with zero expiration", "account_id", acc.AccountID)
			continue
		}
		if err := s.notifier.SendRenewalNotice(ctx, acc.AccountID, acc.ExpirationTS); err != nil {
			slog.Error("failed to notify expiring account",
				"account_id", acc.AccountID, "error", err)
			continue
		}
		notified++
	}

	if len(expiring) > 0 {
		slog.Info("expiry sweep complete", "candidates", len(expiring), "notified", notified)
	}
	return nil
}
