package directory

import (
	"context"

	"github.com/account-validity/internal/domain"
)

// AccountStore is the read-only view of the host's account directory.
type AccountStore interface {
	Get(ctx context.Context, accountID string) (*domain.Account, error)
}

// Service answers identity questions about accounts this module does not own.
type Service interface {
	// GetEmailAddresses returns the account's notification addresses. Empty
	// slice when the account has no email on file.
	GetEmailAddresses(ctx context.Context, accountID string) ([]string, error)

	// GetPhoneNumber returns the account's phone number, or "" when absent.
	GetPhoneNumber(ctx context.Context, accountID string) (string, error)

	// GetDisplayName returns the account's display name, falling back to the
	// account ID so callers always have something to address the user by.
	GetDisplayName(ctx context.Context, accountID string) (string, error)
}

type service struct {
	accounts AccountStore
}

func NewService(accounts AccountStore) Service {
	return &service{accounts: accounts}
}

func (s *service) GetEmailAddresses(ctx context.Context, accountID string) ([]string, error) {
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.Email == "" {
		return []string{}, nil
	}
	return []string{acc.Email}, nil
}

func (s *service) GetPhoneNumber(ctx context.Context, accountID string) (string, error) {
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if acc.Phone == nil {
		return "", nil
	}
	return *acc.Phone, nil
}

func (s *service) GetDisplayName(ctx context.Context, accountID string) (string, error) {
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if acc.DisplayName == "" {
		return accountID, nil
	}
	return acc.DisplayName, nil
}
