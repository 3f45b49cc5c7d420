package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/remindly/reminder-engine/internal/domain"
	"github.com/remindly/reminder-engine/internal/ratelimit"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFile     string `env:"LOG_FILE"`

	DispatchIntervalSec  int `env:"DISPATCH_INTERVAL_SEC,default=60"`
	DispatchBatchLimit   int `env:"DISPATCH_BATCH_LIMIT,default=100"`
	DispatchConcurrency  int `env:"DISPATCH_CONCURRENCY,default=4"`
	SendTimeoutSec       int `env:"SEND_TIMEOUT_SEC,default=30"`
	ClaimTTLSec          int `env:"CLAIM_TTL_SEC,default=120"`
	RetryBaseDelaySec    int `env:"RETRY_BASE_DELAY_SEC,default=60"`
	RetryFactor          int `env:"RETRY_FACTOR,default=2"`
	RetryMaxDelaySec     int `env:"RETRY_MAX_DELAY_SEC,default=0"`
	DefaultMaxRetries    int `env:"DEFAULT_MAX_RETRIES,default=3"`
	RateLimitPerSec      int `env:"RATE_LIMIT_PER_SEC,default=10"`
	RateLimitPushPerSec  int `env:"RATE_LIMIT_PUSH_PER_SEC"`
	RateLimitSMSPerSec   int `env:"RATE_LIMIT_SMS_PER_SEC"`
	RateLimitEmailPerSec int `env:"RATE_LIMIT_EMAIL_PER_SEC"`
	RateLimitCallPerSec  int `env:"RATE_LIMIT_CALL_PER_SEC"`
	ContactCacheSize     int `env:"CONTACT_CACHE_SIZE,default=1024"`
	ContactCacheTTLSec   int `env:"CONTACT_CACHE_TTL_SEC,default=60"`

	TwilioAccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber string `env:"TWILIO_PHONE_NUMBER"`
	TwilioBaseURL     string `env:"TWILIO_BASE_URL"`
	TwilioCallVoice   string `env:"TWILIO_CALL_VOICE"`

	SendGridAPIKey    string `env:"SENDGRID_API_KEY"`
	SendGridFromEmail string `env:"SENDGRID_FROM_EMAIL"`
	SendGridBaseURL   string `env:"SENDGRID_BASE_URL"`

	FCMProjectID   string `env:"FCM_PROJECT_ID"`
	FCMAccessToken string `env:"FCM_ACCESS_TOKEN"`
	FCMBaseURL     string `env:"FCM_BASE_URL"`

	SandboxWebhookURL string `env:"SANDBOX_WEBHOOK_URL"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DispatchIntervalSec <= 0 {
		return fmt.Errorf("DISPATCH_INTERVAL_SEC must be > 0")
	}
	if c.SendTimeoutSec <= 0 {
		return fmt.Errorf("SEND_TIMEOUT_SEC must be > 0")
	}
	if c.RetryFactor < 1 {
		return fmt.Errorf("RETRY_FACTOR must be >= 1")
	}
	if c.DefaultMaxRetries < 0 {
		return fmt.Errorf("DEFAULT_MAX_RETRIES must be >= 0")
	}
	return nil
}

func (c *Config) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalSec) * time.Second
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSec) * time.Second
}

// ClaimTTL is never shorter than the send timeout so a live dispatch keeps its lease.
func (c *Config) ClaimTTL() time.Duration {
	ttl := time.Duration(c.ClaimTTLSec) * time.Second
	if minTTL := 2 * c.SendTimeout(); ttl < minTTL {
		return minTTL
	}
	return ttl
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelaySec) * time.Second
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelaySec) * time.Second
}

// RateLimits returns the provider send budgets. Unset channel limits fall
// back to RATE_LIMIT_PER_SEC.
func (c *Config) RateLimits() ratelimit.Limits {
	return ratelimit.Limits{
		Default: int64(c.RateLimitPerSec),
		PerChannel: map[domain.Channel]int64{
			domain.ChannelPush:  int64(c.RateLimitPushPerSec),
			domain.ChannelSMS:   int64(c.RateLimitSMSPerSec),
			domain.ChannelEmail: int64(c.RateLimitEmailPerSec),
			domain.ChannelCall:  int64(c.RateLimitCallPerSec),
		},
	}
}

func (c *Config) ContactCacheTTL() time.Duration {
	return time.Duration(c.ContactCacheTTLSec) * time.Second
}

// BrokerEnabled reports whether RabbitMQ wiring should be started.
func (c *Config) BrokerEnabled() bool {
	return c.RabbitMQURL != ""
}
