package rbac

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/db"
	"github.com/khanghh/kadmin/model"
	"gorm.io/gorm"
)

const (
	RoleAdmin    = "admin"
	RoleEditor   = "editor"
	RoleApprover = "approver"
	RoleViewer   = "viewer"
)

// SystemRoles are created for every tenant and cannot be deleted.
var SystemRoles = map[string][]model.PermissionID{
	RoleAdmin: {
		model.PermDocumentView, model.PermDocumentEdit, model.PermDocumentApprove, model.PermDocumentManage,
		model.PermAuditView, model.PermAuditCleanup, model.PermSessionManage, model.PermRoleManage,
		model.PermIdentityManage, model.PermAlertView,
	},
	RoleEditor:   {model.PermDocumentView, model.PermDocumentEdit},
	RoleApprover: {model.PermDocumentView, model.PermDocumentApprove},
	RoleViewer:   {model.PermDocumentView},
}

type RoleService struct {
	db       *gorm.DB
	roleRepo RoleRepository
	resolver *Resolver
	audit    *audit.AuditService
}

func roleEntry(actor audit.Actor, role *model.Role, action string, metadata map[string]any) audit.Entry {
	return audit.Entry{
		TenantID:   role.TenantID,
		ActorID:    actor.Ref(),
		EntityType: audit.EntityRole,
		EntityID:   strconv.FormatUint(uint64(role.ID), 10),
		Action:     action,
		Metadata:   metadata,
		IP:         actor.IP,
	}
}

// mutate runs fn in a transaction after checking role.manage, then publishes the
// audit record fn produced.
func (s *RoleService) mutate(ctx context.Context, actor audit.Actor, fn func(tx *gorm.DB) (*model.AuditLog, error)) error {
	if err := s.resolver.Require(ctx, actor, model.PermRoleManage); err != nil {
		return err
	}
	var record *model.AuditLog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = fn(tx)
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Publish(record)
	return nil
}

func (s *RoleService) findRole(ctx context.Context, repo RoleRepository, tenantID, roleID uint) (*model.Role, error) {
	role, err := repo.First(ctx, tenantID, roleID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	return role, err
}

func (s *RoleService) ListRoles(ctx context.Context, actor audit.Actor) ([]*model.Role, error) {
	if err := s.resolver.Require(ctx, actor, model.PermRoleManage); err != nil {
		return nil, err
	}
	return s.roleRepo.Find(ctx, actor.TenantID)
}

func (s *RoleService) CreateRole(ctx context.Context, actor audit.Actor, name, description string) (*model.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 64 {
		return nil, ErrRoleNameInvalid
	}
	role := &model.Role{TenantID: actor.TenantID, Name: name, Description: description}
	err := s.mutate(ctx, actor, func(tx *gorm.DB) (*model.AuditLog, error) {
		if err := s.roleRepo.WithTx(tx).Create(ctx, role); err != nil {
			if db.IsDuplicateKey(err) {
				return nil, ErrRoleNameTaken
			}
			return nil, err
		}
		return s.audit.Create(ctx, tx, roleEntry(actor, role, audit.ActionRoleCreated, map[string]any{
			"name":   role.Name,
			"system": false,
		}))
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (s *RoleService) DeleteRole(ctx context.Context, actor audit.Actor, roleID uint) error {
	return s.mutate(ctx, actor, func(tx *gorm.DB) (*model.AuditLog, error) {
		repo := s.roleRepo.WithTx(tx)
		role, err := s.findRole(ctx, repo, actor.TenantID, roleID)
		if err != nil {
			return nil, err
		}
		if role.System {
			return nil, ErrSystemRole
		}
		if err := repo.Delete(ctx, role); err != nil {
			return nil, err
		}
		return s.audit.Create(ctx, tx, roleEntry(actor, role, audit.ActionRoleDeleted, map[string]any{"name": role.Name}))
	})
}

func (s *RoleService) AssignRole(ctx context.Context, actor audit.Actor, identityID, roleID uint) error {
	return s.mutate(ctx, actor, func(tx *gorm.DB) (*model.AuditLog, error) {
		repo := s.roleRepo.WithTx(tx)
		role, err := s.findRole(ctx, repo, actor.TenantID, roleID)
		if err != nil {
			return nil, err
		}
		if err := requireIdentityInTenant(ctx, tx, identityID, actor.TenantID); err != nil {
			return nil, err
		}
		assigned, err := repo.Assign(ctx, &model.IdentityRole{IdentityID: identityID, RoleID: role.ID, TenantID: role.TenantID})
		if err != nil || !assigned {
			return nil, err
		}
		entry := roleEntry(actor, role, audit.ActionRoleAssigned, map[string]any{"roleId": role.ID, "roleName": role.Name})
		entry.TargetID = &identityID
		return s.audit.Create(ctx, tx, entry)
	})
}

func (s *RoleService) UnassignRole(ctx context.Context, actor audit.Actor, identityID, roleID uint) error {
	return s.mutate(ctx, actor, func(tx *gorm.DB) (*model.AuditLog, error) {
		repo := s.roleRepo.WithTx(tx)
		role, err := s.findRole(ctx, repo, actor.TenantID, roleID)
		if err != nil {
			return nil, err
		}
		removed, err := repo.Unassign(ctx, identityID, role.ID)
		if err != nil || !removed {
			return nil, err
		}
		entry := roleEntry(actor, role, audit.ActionRoleUnassigned, map[string]any{"roleId": role.ID, "roleName": role.Name})
		entry.TargetID = &identityID
		return s.audit.Create(ctx, tx, entry)
	})
}

func (s *RoleService) GrantPermission(ctx context.Context, actor audit.Actor, roleID uint, perm model.PermissionID) error {
	if perm.Code() == "" {
		return ErrUnknownPermission
	}
	return s.mutate(ctx, actor, func(tx *gorm.DB) (*model.AuditLog, error) {
		repo := s.roleRepo.WithTx(tx)
		role, err := s.findRole(ctx, repo, actor.TenantID, roleID)
		if err != nil {
			return nil, err
		}
		granted, err := repo.Grant(ctx, role.ID, perm)
		if err != nil || !granted {
			return nil, err
		}
		return s.audit.Create(ctx, tx, roleEntry(actor, role, audit.ActionPermissionGranted, map[string]any{
			"roleName":   role.Name,
			"permission": perm.Code(),
		}))
	})
}

func (s *RoleService) RevokePermission(ctx context.Context, actor audit.Actor, roleID uint, perm model.PermissionID) error {
	if perm.Code() == "" {
		return ErrUnknownPermission
	}
	return s.mutate(ctx, actor, func(tx *gorm.DB) (*model.AuditLog, error) {
		repo := s.roleRepo.WithTx(tx)
		role, err := s.findRole(ctx, repo, actor.TenantID, roleID)
		if err != nil {
			return nil, err
		}
		revoked, err := repo.Revoke(ctx, role.ID, perm)
		if err != nil || !revoked {
			return nil, err
		}
		return s.audit.Create(ctx, tx, roleEntry(actor, role, audit.ActionPermissionRevoked, map[string]any{
			"roleName":   role.Name,
			"permission": perm.Code(),
		}))
	})
}

// CreateSystemRoles creates the built-in roles of a new tenant inside tx.
func (s *RoleService) CreateSystemRoles(ctx context.Context, tx *gorm.DB, tenantID uint) (map[string]*model.Role, error) {
	repo := s.roleRepo.WithTx(tx)
	roles := make(map[string]*model.Role, len(SystemRoles))
	for name, perms := range SystemRoles {
		role := &model.Role{TenantID: tenantID, Name: name, System: true, Description: "built-in " + name + " role"}
		if err := repo.Create(ctx, role); err != nil {
			return nil, err
		}
		for _, perm := range perms {
			if _, err := repo.Grant(ctx, role.ID, perm); err != nil {
				return nil, err
			}
		}
		roles[name] = role
	}
	return roles, nil
}

// AssignTx assigns a role without permission checks or auditing. Callers audit the
// enclosing operation.
func (s *RoleService) AssignTx(ctx context.Context, tx *gorm.DB, identity *model.Identity, role *model.Role) error {
	if identity.TenantID != role.TenantID {
		return apperror.ErrNotFound
	}
	_, err := s.roleRepo.WithTx(tx).Assign(ctx, &model.IdentityRole{IdentityID: identity.ID, RoleID: role.ID, TenantID: role.TenantID})
	return err
}

func requireIdentityInTenant(ctx context.Context, tx *gorm.DB, identityID, tenantID uint) error {
	var count int64
	err := tx.WithContext(ctx).Model(&model.Identity{}).
		Where("id = ? AND tenant_id = ?", identityID, tenantID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

func NewRoleService(db *gorm.DB, resolver *Resolver, auditService *audit.AuditService) *RoleService {
	return &RoleService{
		db:       db,
		roleRepo: NewRoleRepository(db),
		resolver: resolver,
		audit:    auditService,
	}
}
