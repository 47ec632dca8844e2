package rbac

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/model"
	"gorm.io/gorm"
)

// PermissionSet is the effective permissions of an identity within its tenant.
type PermissionSet struct {
	ids   map[model.PermissionID]struct{}
	codes map[string]struct{}
}

func NewPermissionSet(perms ...model.PermissionID) *PermissionSet {
	set := &PermissionSet{
		ids:   make(map[model.PermissionID]struct{}, len(perms)),
		codes: make(map[string]struct{}, len(perms)),
	}
	for _, perm := range perms {
		set.add(perm, perm.Code())
	}
	return set
}

func (s *PermissionSet) add(id model.PermissionID, code string) {
	s.ids[id] = struct{}{}
	if code != "" {
		s.codes[code] = struct{}{}
	}
}

func (s *PermissionSet) Has(perm model.PermissionID) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[perm]
	return ok
}

func (s *PermissionSet) HasCode(code string) bool {
	if s == nil {
		return false
	}
	_, ok := s.codes[code]
	return ok
}

func (s *PermissionSet) IDs() []model.PermissionID {
	ids := make([]model.PermissionID, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *PermissionSet) Codes() []string {
	codes := make([]string, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func (s *PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PermissionIDs   []model.PermissionID `json:"permissionIds"`
		PermissionCodes []string             `json:"permissionCodes"`
	}{s.IDs(), s.Codes()})
}

// Resolver computes permissions from role assignments on every call. Results are
// never cached so that role changes apply to the next request.
type Resolver struct {
	db *gorm.DB
}

type permissionRow struct {
	ID   uint
	Code string
}

// Resolve returns the union of permissions granted by the identity's roles. Only
// roles of tenantID count, and only while the identity is active in that tenant.
func (r *Resolver) Resolve(ctx context.Context, identityID, tenantID uint) (*PermissionSet, error) {
	var rows []permissionRow
	err := r.db.WithContext(ctx).
		Table("identity_role AS ir").
		Select("DISTINCT p.id AS id, p.code AS code").
		Joins("JOIN identity i ON i.id = ir.identity_id AND i.tenant_id = ? AND i.active = ?", tenantID, true).
		Joins("JOIN role r ON r.id = ir.role_id AND r.tenant_id = ?", tenantID).
		Joins("JOIN role_permission rp ON rp.role_id = r.id").
		Joins("JOIN permission p ON p.id = rp.permission_id").
		Where("ir.identity_id = ? AND ir.tenant_id = ?", identityID, tenantID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	set := NewPermissionSet()
	for _, row := range rows {
		set.add(model.PermissionID(row.ID), row.Code)
	}
	return set, nil
}

func (r *Resolver) HasPermission(ctx context.Context, identityID, tenantID uint, perm model.PermissionID) (bool, error) {
	set, err := r.Resolve(ctx, identityID, tenantID)
	if err != nil {
		return false, err
	}
	return set.Has(perm), nil
}

// Require fails with FORBIDDEN unless the actor holds perm in its tenant.
func (r *Resolver) Require(ctx context.Context, actor audit.Actor, perm model.PermissionID) error {
	ok, err := r.HasPermission(ctx, actor.IdentityID, actor.TenantID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.ErrForbidden
	}
	return nil
}

func (r *Resolver) WithTx(tx *gorm.DB) *Resolver {
	return NewResolver(tx)
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}
