package users

import "github.com/khanghh/kadmin/internal/apperror"

var (
	ErrInvalidCredentials   = apperror.New(apperror.Unauthenticated, "INVALID_CREDENTIALS", "invalid credentials")
	ErrEmailTaken           = apperror.New(apperror.Conflict, "EMAIL_TAKEN", "email already registered in tenant")
	ErrTenantSlugTaken      = apperror.New(apperror.Conflict, "TENANT_SLUG_TAKEN", "tenant slug already in use")
	ErrInvalidEmail         = apperror.New(apperror.Validation, "INVALID_EMAIL", "invalid email address")
	ErrInvalidSlug          = apperror.New(apperror.Validation, "INVALID_SLUG", "slug must be 2-64 lowercase letters, digits or dashes")
	ErrPasswordTooShort     = apperror.New(apperror.Validation, "PASSWORD_TOO_SHORT", "password is too short")
	ErrCannotDeactivateSelf = apperror.New(apperror.Validation, "CANNOT_DEACTIVATE_SELF", "an identity cannot deactivate itself")
)
