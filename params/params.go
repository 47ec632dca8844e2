package params

import "time"

const (
	APIVersion                 = "1.0"
	ServerBodyLimit            = 1048576 // 1 MiB
	ServerIdleTimeout          = 30 * time.Second
	ServerReadTimeout          = 10 * time.Second
	ServerWriteTimeout         = 10 * time.Second
	ServerShutdownTimeout      = 10 * time.Second
	HealthCheckServerAddr      = ":3001"
	SessionCookieName          = "kadmin_session"
	SessionLifetime            = 7 * 24 * time.Hour  // sliding lifetime renewed on activity
	SessionMaxLifetime         = 30 * 24 * time.Hour // absolute cap from creation
	SessionTouchInterval       = 5 * time.Minute     // minimum gap between two renewals of the same session
	InternalSecretHeader       = "X-Internal-Secret"
	LoginRateLimit             = 10 // requests per minute per ip
	InternalValidateRateLimit  = 600
	RateLimitWindow            = time.Minute
	MFAKeyPrefix               = "mfa:"
	RateLimitKeyPrefix         = "rl:"
	MFAIssuer                  = "kadmin"
	MFAPendingEnrollmentTTL    = 10 * time.Minute
	MFAMaxFailedAttempts       = 5 // step-up failures before the identity is locked out
	MFAFailWindow              = 15 * time.Minute
	MFABackupCodeCount         = 10
	MFABackupCodeLength        = 8 // hex characters, rendered as xxxx-xxxx
	MFATOTPPeriod              = 30
	MFATOTPSkew                = 1 // adjacent time steps accepted on each side
	AuditMaxStringLength       = 256
	AuditMaxArrayLength        = 10
	AuditDefaultMinRetention   = 90 * 24 * time.Hour
	AlertDefaultWorkers        = 2
	AlertDefaultQueueSize      = 1024
	AlertLoginFailureThreshold = 5
	AlertMFAFailureThreshold   = 3
	AlertRuleWindow            = 15 * time.Minute
	MinPasswordLength          = 8
	GeneratedPasswordLength    = 20
)
