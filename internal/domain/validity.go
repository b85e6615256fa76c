package domain

// TokenFormat selects which renewal token variant the service issues.
type TokenFormat string

const (
	// TokenFormatLink is a 32-letter high-entropy token delivered as a
	// clickable URL parameter. Globally unique across all accounts.
	TokenFormatLink TokenFormat = "link"

	// TokenFormatManual is an 8-digit low-entropy code meant for manual entry
	// in a client. Unique only per account, so it can never identify an
	// account on its own.
	TokenFormatManual TokenFormat = "manual"
)

// ValidityRecord tracks when an account expires and the state of its current
// renewal token. One record per account; the token is overwritten, never
// appended, on regeneration.
// PK: account_id. `notified` is numeric (0/1) so it can key the expiry GSI.
type ValidityRecord struct {
	AccountID    string `json:"account_id" dynamodbav:"account_id"`
	ExpirationTS int64  `json:"expiration_ts_ms" dynamodbav:"expiration_ts_ms"` // ms since epoch
	Notified     int    `json:"notified" dynamodbav:"notified"`                 // 1 once a notice went out this period
	RenewalToken string `json:"renewal_token,omitempty" dynamodbav:"renewal_token,omitempty"`
	TokenUsedTS  *int64 `json:"token_used_ts_ms,omitempty" dynamodbav:"token_used_ts_ms,omitempty"`
}

// ExpiringAccount is one row of an expiry scan: an account whose expiration
// falls inside the notice window and which has not been notified yet.
type ExpiringAccount struct {
	AccountID    string `dynamodbav:"account_id"`
	ExpirationTS int64  `dynamodbav:"expiration_ts_ms"`
}

// SetValidityRequest is the admin request body for overriding an account's
// validity state.
type SetValidityRequest struct {
	AccountID           string `json:"account_id" validate:"required"`
	ExpirationTS        *int64 `json:"expiration_ts"`
	EnableRenewalEmails *bool  `json:"enable_renewal_emails"` // defaults to true
}

// RenewalOutcome classifies a renewal attempt. Valid and Stale are mutually
// exclusive; both false means the token matched nothing (ExpirationTS is 0
// only in that case).
type RenewalOutcome struct {
	Valid        bool  `json:"valid"`
	Stale        bool  `json:"stale"`
	ExpirationTS int64 `json:"expiration_ts"`
}
