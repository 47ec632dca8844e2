package rbac

import "github.com/khanghh/kadmin/internal/apperror"

var (
	ErrRoleNameTaken     = apperror.New(apperror.Conflict, "ROLE_NAME_TAKEN", "a role with this name already exists")
	ErrRoleNameInvalid   = apperror.New(apperror.Validation, "ROLE_NAME_INVALID", "role name must be 1 to 64 characters")
	ErrSystemRole        = apperror.New(apperror.Forbidden, "SYSTEM_ROLE", "built-in roles cannot be deleted")
	ErrUnknownPermission = apperror.New(apperror.Validation, "UNKNOWN_PERMISSION", "unknown permission")
)
