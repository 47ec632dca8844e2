package audit

const (
	ActionLoginSuccess          = "LOGIN_SUCCESS"
	ActionLoginFailed           = "LOGIN_FAILED"
	ActionSessionRevoked        = "SESSION_REVOKED"
	ActionSessionsRevokedAll    = "SESSIONS_REVOKED_ALL"
	ActionMFAEnabled            = "MFA_ENABLED"
	ActionMFADisabled           = "MFA_DISABLED"
	ActionMFAStepUpVerified     = "MFA_STEP_UP_VERIFIED"
	ActionMFAStepUpFailed       = "MFA_STEP_UP_FAILED"
	ActionMFABackupCodesRenewed = "MFA_BACKUP_CODES_REGENERATED"
	ActionDocumentCreated       = "DOCUMENT_CREATED"
	ActionDocumentSubmit        = "DOCUMENT_SUBMIT"
	ActionDocumentApprove       = "DOCUMENT_APPROVE"
	ActionDocumentReject        = "DOCUMENT_REJECT"
	ActionDocumentRevise        = "DOCUMENT_REVISE"
	ActionDocumentObsolete      = "DOCUMENT_OBSOLETE"
	ActionRoleCreated           = "ROLE_CREATED"
	ActionRoleDeleted           = "ROLE_DELETED"
	ActionRoleAssigned          = "ROLE_ASSIGNED"
	ActionRoleUnassigned        = "ROLE_UNASSIGNED"
	ActionPermissionGranted     = "PERMISSION_GRANTED"
	ActionPermissionRevoked     = "PERMISSION_REVOKED"
	ActionTenantCreated         = "TENANT_CREATED"
	ActionIdentityCreated       = "IDENTITY_CREATED"
	ActionIdentityDeactivated   = "IDENTITY_DEACTIVATED"
	ActionPasswordChanged       = "PASSWORD_CHANGED"
	ActionRetentionCleanup      = "AUDIT_RETENTION_CLEANUP"
)

const (
	EntityIdentity = "identity"
	EntitySession  = "session"
	EntityDocument = "document"
	EntityRole     = "role"
	EntityTenant   = "tenant"
	EntityAuditLog = "audit_log"
)

var documentTransitionFields = []string{"fromStatus", "toStatus", "comment"}

// allowedFields lists the metadata keys kept per action. Actions without an entry
// store no metadata at all.
var allowedFields = map[string][]string{
	ActionLoginSuccess:          {"deviceInfo", "mfaRequired"},
	ActionLoginFailed:           {"email", "reason"},
	ActionSessionRevoked:        {"sessionId", "deviceInfo"},
	ActionSessionsRevokedAll:    {"count", "reason"},
	ActionMFAEnabled:            {"backupCodes"},
	ActionMFADisabled:           {"method", "sessionsRevoked"},
	ActionMFAStepUpVerified:     {"method", "sessionId"},
	ActionMFAStepUpFailed:       {"reason", "failures"},
	ActionMFABackupCodesRenewed: {"backupCodes"},
	ActionDocumentCreated:       {"title", "expiresAt"},
	ActionDocumentSubmit:        documentTransitionFields,
	ActionDocumentApprove:       documentTransitionFields,
	ActionDocumentReject:        documentTransitionFields,
	ActionDocumentRevise:        documentTransitionFields,
	ActionDocumentObsolete:      documentTransitionFields,
	ActionRoleCreated:           {"name", "system"},
	ActionRoleDeleted:           {"name"},
	ActionRoleAssigned:          {"roleId", "roleName"},
	ActionRoleUnassigned:        {"roleId", "roleName"},
	ActionPermissionGranted:     {"roleName", "permission"},
	ActionPermissionRevoked:     {"roleName", "permission"},
	ActionTenantCreated:         {"slug", "roles"},
	ActionIdentityCreated:       {"email", "roles"},
	ActionIdentityDeactivated:   {"sessionsRevoked"},
	ActionPasswordChanged:       {"sessionsRevoked"},
	ActionRetentionCleanup:      {"olderThan", "deleted"},
}

// RegisterAllowedFields adds or replaces the metadata allow-list of an action.
func RegisterAllowedFields(action string, fields ...string) {
	allowedFields[action] = fields
}
