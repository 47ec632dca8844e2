package workflow

import "github.com/khanghh/kadmin/internal/apperror"

var (
	ErrDocumentNotFound  = apperror.New(apperror.NotFound, "NOT_FOUND", "document not found")
	ErrInvalidTransition = apperror.New(apperror.InvalidTransition, "INVALID_TRANSITION", "action not allowed in current status")
	ErrDocumentModified  = apperror.New(apperror.Conflict, "DOCUMENT_MODIFIED", "document was modified concurrently")
	ErrTitleInvalid      = apperror.New(apperror.Validation, "TITLE_INVALID", "title must be 1 to 256 characters")
	ErrExpiryInPast      = apperror.New(apperror.Validation, "EXPIRY_IN_PAST", "expiry must be in the future")
	ErrCommentTooLong    = apperror.New(apperror.Validation, "COMMENT_TOO_LONG", "comment is too long")
	ErrUnknownAction     = apperror.New(apperror.Validation, "UNKNOWN_ACTION", "unknown action")
)
