package twofactor

import (
	"fmt"

	"github.com/khanghh/kadmin/internal/apperror"
)

var (
	ErrMFANotEnabled         = apperror.New(apperror.Validation, "MFA_NOT_ENABLED", "two-factor authentication is not enabled")
	ErrMFAAlreadyEnabled     = apperror.New(apperror.Conflict, "MFA_ALREADY_ENABLED", "two-factor authentication is already enabled")
	ErrEnrollmentNotFound    = apperror.New(apperror.Validation, "MFA_ENROLLMENT_NOT_FOUND", "no pending enrollment")
	ErrCodeInvalid           = apperror.New(apperror.Unauthenticated, "MFA_CODE_INVALID", "verification code is invalid")
	ErrPasswordInvalid       = apperror.New(apperror.Unauthenticated, "INVALID_CREDENTIALS", "invalid credentials")
	ErrTooManyFailedAttempts = apperror.New(apperror.Forbidden, "MFA_LOCKED", "too many failed attempts")
	ErrSessionNotOwned       = apperror.New(apperror.Forbidden, "FORBIDDEN", "session belongs to another identity")
)

// AttemptFailError reports a failed verification and how many attempts remain
// before the identity is locked out.
type AttemptFailError struct {
	AttemptsLeft int
}

func (e *AttemptFailError) Error() string {
	return fmt.Sprintf("verification failed, %d attempts left", e.AttemptsLeft)
}

func (e *AttemptFailError) Unwrap() error {
	return ErrCodeInvalid
}

func NewAttemptFailError(attemptsLeft int) *AttemptFailError {
	return &AttemptFailError{
		AttemptsLeft: attemptsLeft,
	}
}
