package model

// PermissionID is the authorization contract. Ids are stable and never reused.
type PermissionID uint

const (
	PermDocumentView PermissionID = iota + 1
	PermDocumentEdit
	PermDocumentApprove
	PermDocumentManage
	PermAuditView
	PermAuditCleanup
	PermSessionManage
	PermRoleManage
	PermIdentityManage
	PermAlertView
)

// Permissions is the seeded permission catalog.
var Permissions = []Permission{
	{ID: uint(PermDocumentView), Code: "document.view", Description: "Read documents"},
	{ID: uint(PermDocumentEdit), Code: "document.edit", Description: "Edit, submit and revise documents"},
	{ID: uint(PermDocumentApprove), Code: "document.approve", Description: "Approve or reject submitted documents"},
	{ID: uint(PermDocumentManage), Code: "document.manage", Description: "Archive documents as obsolete"},
	{ID: uint(PermAuditView), Code: "audit.view", Description: "Read and verify audit logs"},
	{ID: uint(PermAuditCleanup), Code: "audit.cleanup", Description: "Delete audit logs past retention"},
	{ID: uint(PermSessionManage), Code: "session.manage", Description: "Manage sessions of other identities"},
	{ID: uint(PermRoleManage), Code: "role.manage", Description: "Manage roles and assignments"},
	{ID: uint(PermIdentityManage), Code: "identity.manage", Description: "Manage identities"},
	{ID: uint(PermAlertView), Code: "alert.view", Description: "Read security alerts of other identities"},
}

func (p PermissionID) Code() string {
	for _, perm := range Permissions {
		if perm.ID == uint(p) {
			return perm.Code
		}
	}
	return ""
}

// ParsePermission looks a permission up by its code.
func ParsePermission(code string) (PermissionID, bool) {
	for _, perm := range Permissions {
		if perm.Code == code {
			return PermissionID(perm.ID), true
		}
	}
	return 0, false
}

// Permission is a global capability. The numeric id is the authorization contract,
// codes are never repurposed.
type Permission struct {
	ID          uint   `gorm:"primaryKey;autoIncrement:false"`
	Code        string `gorm:"size:64;not null;uniqueIndex"`
	Description string `gorm:"size:256;not null;default:''"`
}

func (Permission) TableName() string {
	return "permission"
}
