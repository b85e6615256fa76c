package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/account-validity/internal/domain"
	"github.com/account-validity/internal/pkg/duration"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	// Validity tracking. Period and RenewAt are required; both accept the
	// short duration syntax ("6w", "7d", bare milliseconds).
	Period           int64 // ms an account stays valid after a renewal
	RenewAt          int64 // notice window: notify when expiration - now <= RenewAt
	ScanInterval     int64 // ms between expiry scans
	TokenFormat      domain.TokenFormat
	BootstrapOnStart bool

	// PublicBaseURL is the externally reachable base used to build renewal
	// links. Required when the token format is "link".
	PublicBaseURL    string
	AppName          string
	RenewMailSubject string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	S3TemplateBucket string // empty = use embedded templates

	JWTPublicKeyPath string

	// InternalHookSecretHash is the bcrypt hash of the shared secret the host
	// presents on the internal registration hook.
	InternalHookSecretHash string

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	SNSRegion string

	RedisURL string // empty = in-process expiration cache

	AllowedOrigins []string // CORS allowed origins
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Validity       string
	RenewalTokens  string
	Accounts       string
	RenewalNotices string
}

// Load reads all configuration from environment variables. It fails when a
// required validity setting is missing or does not parse, so a misconfigured
// service never starts scanning.
func Load() (*Config, error) {
	cfg := &Config{
		AppPort:          getEnv("APP_PORT", "3000"),
		AppEnv:           getEnv("APP_ENV", "development"),
		BootstrapOnStart: getEnv("VALIDITY_BOOTSTRAP_ON_START", "true") == "true",
		PublicBaseURL:    strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		AppName:          getEnv("APP_NAME", "Account Validity"),
		RenewMailSubject: getEnv("RENEW_MAIL_SUBJECT", "Renew your %(app)s account"),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL:   getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID:   getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Validity:       getEnv("DYNAMO_TABLE_VALIDITY", "account_validity"),
			RenewalTokens:  getEnv("DYNAMO_TABLE_RENEWAL_TOKENS", "renewal_tokens"),
			Accounts:       getEnv("DYNAMO_TABLE_ACCOUNTS", "accounts"),
			RenewalNotices: getEnv("DYNAMO_TABLE_RENEWAL_NOTICES", "renewal_notices"),
		},
		S3TemplateBucket:       getEnv("S3_TEMPLATE_BUCKET", ""),
		JWTPublicKeyPath:       getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		InternalHookSecretHash: getEnv("INTERNAL_HOOK_SECRET_HASH", ""),
		SMTPHost:               getEnv("SMTP_HOST", "localhost"),
		SMTPPort:               getEnv("SMTP_PORT", "1025"),
		SMTPFrom:               getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:           getEnv("SMTP_USERNAME", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		SNSRegion:              getEnv("SNS_REGION", "us-east-1"),
		RedisURL:               getEnv("REDIS_URL", ""),
		AllowedOrigins:         strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
	}

	var err error
	if cfg.Period, err = requiredDuration("VALIDITY_PERIOD"); err != nil {
		return nil, err
	}
	if cfg.RenewAt, err = requiredDuration("VALIDITY_RENEW_AT"); err != nil {
		return nil, err
	}
	if cfg.ScanInterval, err = duration.Parse(getEnv("VALIDITY_SCAN_INTERVAL", "30m")); err != nil {
		return nil, fmt.Errorf("VALIDITY_SCAN_INTERVAL: %w", err)
	}

	switch f := domain.TokenFormat(getEnv("VALIDITY_TOKEN_FORMAT", "link")); f {
	case domain.TokenFormatLink, domain.TokenFormatManual:
		cfg.TokenFormat = f
	default:
		return nil, fmt.Errorf("VALIDITY_TOKEN_FORMAT %q: %w", f, domain.ErrInvalidFormat)
	}

	if cfg.TokenFormat == domain.TokenFormatLink && cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("PUBLIC_BASE_URL is required to send renewal links: %w", domain.ErrMissingConfig)
	}

	return cfg, nil
}

func requiredDuration(key string) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s: %w", key, domain.ErrMissingConfig)
	}
	ms, err := duration.Parse(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return ms, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
