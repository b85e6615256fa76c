package domain

import "time"

// RenewalNotice is the audit record written after a renewal notification has
// been dispatched for an account. One record per dispatch, ULID-keyed.
type RenewalNotice struct {
	NoticeID     string    `json:"id" dynamodbav:"notice_id"`
	AccountID    string    `json:"account_id" dynamodbav:"account_id"`
	ExpirationTS int64     `json:"expiration_ts_ms" dynamodbav:"expiration_ts_ms"`
	TokenFormat  string    `json:"token_format" dynamodbav:"token_format"`
	Addresses    []string  `json:"addresses" dynamodbav:"addresses"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
}
