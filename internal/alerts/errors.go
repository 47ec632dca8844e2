package alerts

import "github.com/khanghh/kadmin/internal/apperror"

var ErrAlertNotFound = apperror.New(apperror.NotFound, "NOT_FOUND", "alert not found")
