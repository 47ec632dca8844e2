package audit

import "github.com/khanghh/kadmin/internal/apperror"

var (
	ErrRetentionTooShort = apperror.New(apperror.Validation, "RETENTION_TOO_SHORT", "retention threshold is below the configured minimum")
	ErrAuditWriteFailed  = apperror.New(apperror.Internal, "AUDIT_WRITE_FAILED", "could not record audit event")
)
