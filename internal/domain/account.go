package domain

import "time"

// Roles carried in host-issued access tokens. Only admin matters to this
// service; everything else is treated as a regular account.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Account is the host directory's view of a user account. This service never
// writes accounts; it only reads addresses, display names and the account
// listing used by the validity bootstrap.
type Account struct {
	AccountID   string     `json:"id" dynamodbav:"account_id"`
	Email       string     `json:"email" dynamodbav:"email"`
	Phone       *string    `json:"phone" dynamodbav:"phone"`
	DisplayName string     `json:"display_name" dynamodbav:"display_name"`
	Enable      int        `json:"enable" dynamodbav:"enable"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at"`
	CreatedAt   time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time  `json:"updated" dynamodbav:"updated_at"`
}
