package api

import (
	"github.com/khanghh/kadmin/internal/common"
	"time"

	"github.com/khanghh/kadmin/internal/workflow"
	"github.com/khanghh/kadmin/model"
)

type loginRequest struct {
	Tenant     string `json:"tenant"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceInfo string `json:"deviceInfo"`
}

type identityInfo struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenantId"`
	Email      string     `json:"email"`
	FullName   string     `json:"fullName"`
	Active     bool       `json:"active"`
	MFAEnabled bool       `json:"mfaEnabled"`
	LastLogin  *time.Time `json:"lastLoginAt,omitempty"`
}

type loginResponse struct {
	Identity    identityInfo `json:"identity"`
	SessionID   string       `json:"sessionId"`
	Token       string       `json:"token"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	MFARequired bool         `json:"mfaRequired"`
}

type sessionInfo struct {
	ID           string     `json:"id"`
	IdentityID   string     `json:"identityId"`
	DeviceInfo   string     `json:"deviceInfo"`
	IP           string     `json:"ip"`
	MFAVerified  bool       `json:"mfaVerified"`
	Current      bool       `json:"current"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastActiveAt time.Time  `json:"lastActiveAt"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
}

type revokeAllRequest struct {
	IdentityID string `json:"identityId"`
}

type validateSessionRequest struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
}

type documentInfo struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Status           string            `json:"status"`
	ExpiresAt        *time.Time        `json:"expiresAt,omitempty"`
	CreatedBy        string            `json:"createdBy"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	AvailableActions []workflow.Action `json:"availableActions"`
}

type createDocumentRequest struct {
	Title     string     `json:"title"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type documentActionRequest struct {
	Comment string `json:"comment"`
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

type mfaDisableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backupCodes"`
}

type cleanupRequest struct {
	OlderThanDays int `json:"olderThanDays"`
}

type auditRecord struct {
	EventID    string         `json:"eventId"`
	ActorID    string         `json:"actorId,omitempty"`
	TargetID   string         `json:"targetId,omitempty"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Action     string         `json:"action"`
	Details    string         `json:"details,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IP         string         `json:"ip,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type roleMemberRequest struct {
	IdentityID string `json:"identityId"`
}

type rolePermissionRequest struct {
	Permission string `json:"permission"`
}

type roleInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	System      bool   `json:"system"`
}

type alertInfo struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identityId"`
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	AuditEvent string    `json:"auditEvent,omitempty"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}

type createIdentityRequest struct {
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func formatIDRef(id *uint) string {
	if id == nil {
		return ""
	}
	return common.FormatID(*id)
}

func newIdentityInfo(identity *model.Identity) identityInfo {
	return identityInfo{
		ID:         common.FormatID(identity.ID),
		TenantID:   common.FormatID(identity.TenantID),
		Email:      identity.Email,
		FullName:   identity.FullName,
		Active:     identity.Active,
		MFAEnabled: identity.MFAEnabled,
		LastLogin:  identity.LastLoginAt,
	}
}

func newSessionInfo(session *model.Session, currentID string) sessionInfo {
	return sessionInfo{
		ID:           session.ID,
		IdentityID:   common.FormatID(session.IdentityID),
		DeviceInfo:   session.DeviceInfo,
		IP:           session.IP,
		MFAVerified:  session.MFAVerified,
		Current:      session.ID == currentID,
		CreatedAt:    session.CreatedAt,
		LastActiveAt: session.LastActiveAt,
		ExpiresAt:    session.ExpiresAt,
		RevokedAt:    session.RevokedAt,
	}
}

func newDocumentInfo(doc *model.Document, actions []workflow.Action) documentInfo {
	if actions == nil {
		actions = []workflow.Action{}
	}
	return documentInfo{
		ID:               common.FormatID(doc.ID),
		Title:            doc.Title,
		Status:           doc.Status.String(),
		ExpiresAt:        doc.ExpiresAt,
		CreatedBy:        common.FormatID(doc.CreatedBy),
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		AvailableActions: actions,
	}
}

func newAuditRecord(record *model.AuditLog) auditRecord {
	return auditRecord{
		EventID:    record.EventID,
		ActorID:    formatIDRef(record.ActorID),
		TargetID:   formatIDRef(record.TargetID),
		EntityType: record.EntityType,
		EntityID:   record.EntityID,
		Action:     record.Action,
		Details:    record.Details,
		Metadata:   record.Metadata,
		IP:         record.IP,
		CreatedAt:  record.CreatedAt,
	}
}

func newRoleInfo(role *model.Role) roleInfo {
	return roleInfo{
		ID:          common.FormatID(role.ID),
		Name:        role.Name,
		Description: role.Description,
		System:      role.System,
	}
}

func newAlertInfo(alert *model.SecurityAlert) alertInfo {
	return alertInfo{
		ID:         common.FormatID(alert.ID),
		IdentityID: common.FormatID(alert.IdentityID),
		Type:       alert.Type,
		Severity:   alert.Severity.String(),
		Message:    alert.Message,
		AuditEvent: alert.AuditEvent,
		Read:       alert.Read,
		CreatedAt:  alert.CreatedAt,
	}
}
