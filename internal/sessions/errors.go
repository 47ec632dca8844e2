package sessions

import "github.com/khanghh/kadmin/internal/apperror"

const (
	ReasonSessionNotFound  = "SESSION_NOT_FOUND"
	ReasonSessionRevoked   = "SESSION_REVOKED"
	ReasonSessionExpired   = "SESSION_EXPIRED"
	ReasonIdentityInactive = "IDENTITY_INACTIVE"
)

var (
	ErrSessionNotFound  = apperror.New(apperror.Unauthenticated, ReasonSessionNotFound, "session not found")
	ErrSessionRevoked   = apperror.New(apperror.Unauthenticated, ReasonSessionRevoked, "session revoked")
	ErrSessionExpired   = apperror.New(apperror.Unauthenticated, ReasonSessionExpired, "session expired")
	ErrIdentityInactive = apperror.New(apperror.Unauthenticated, ReasonIdentityInactive, "identity inactive")
	ErrTokenInvalid     = apperror.New(apperror.Unauthenticated, "TOKEN_INVALID", "invalid session reference")
	ErrCrossTenant      = apperror.New(apperror.Forbidden, "CROSS_TENANT", "session belongs to another tenant")
)

var reasonErrors = map[string]error{
	ReasonSessionNotFound:  ErrSessionNotFound,
	ReasonSessionRevoked:   ErrSessionRevoked,
	ReasonSessionExpired:   ErrSessionExpired,
	ReasonIdentityInactive: ErrIdentityInactive,
}
