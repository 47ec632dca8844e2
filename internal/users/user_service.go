package users

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/common"
	"github.com/khanghh/kadmin/internal/db"
	"github.com/khanghh/kadmin/internal/rbac"
	"github.com/khanghh/kadmin/internal/sessions"
	"github.com/khanghh/kadmin/model"
	"github.com/khanghh/kadmin/params"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	reasonUnknownIdentity  = "unknown_identity"
	reasonPasswordInvalid  = "password_invalid"
	reasonIdentityInactive = "identity_inactive"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

type LoginOptions struct {
	TenantSlug string
	Email      string
	Password   string
	DeviceInfo string
	IP         string
}

type LoginResult struct {
	Identity    *model.Identity
	Session     *model.Session
	Token       string
	MFARequired bool
}

type CreateIdentityOptions struct {
	Email    string
	FullName string
	Password string
	Roles    []string
}

type BootstrapOptions struct {
	Name          string
	Slug          string
	AdminEmail    string
	AdminName     string
	AdminPassword string
}

type Config struct {
	// PasswordCost is the bcrypt cost of stored passwords.
	PasswordCost int
}

// UserService owns identities: password login, creation, deactivation and
// password changes, plus tenant bootstrap.
type UserService struct {
	db           *gorm.DB
	identityRepo IdentityRepository
	tenantRepo   TenantRepository
	roleRepo     rbac.RoleRepository
	roles        *rbac.RoleService
	resolver     *rbac.Resolver
	sessions     *sessions.SessionService
	audit        *audit.AuditService
	passwordCost int
	dummyHash    []byte
	now          func() time.Time
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func identityEntry(actor audit.Actor, tenantID uint, target *model.Identity, action string, metadata map[string]any) audit.Entry {
	entry := audit.Entry{
		TenantID:   tenantID,
		ActorID:    actor.Ref(),
		EntityType: audit.EntityIdentity,
		Action:     action,
		Metadata:   metadata,
		IP:         actor.IP,
	}
	if target != nil {
		entry.TargetID = &target.ID
		entry.EntityID = common.FormatID(target.ID)
	}
	return entry
}

func (s *UserService) hashPassword(password string) (string, error) {
	if len(password) < params.MinPasswordLength {
		return "", ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(identity *model.Identity, password string) bool {
	if identity.Password == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*identity.Password), []byte(password)) == nil
}

// loginFailed audits a failed login and returns the error shown to the caller,
// which is the same for every failure reason.
func (s *UserService) loginFailed(ctx context.Context, tenantID uint, identity *model.Identity, opts LoginOptions, reason string) error {
	actor := audit.Actor{TenantID: tenantID, IP: opts.IP}
	entry := identityEntry(actor, tenantID, identity, audit.ActionLoginFailed, map[string]any{
		"email":  opts.Email,
		"reason": reason,
	})
	if _, err := s.audit.Create(ctx, nil, entry); err != nil {
		return err
	}
	return ErrInvalidCredentials
}

// Login checks a password and opens a session. Unknown tenants, unknown emails,
// inactive identities and wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, opts LoginOptions) (*LoginResult, error) {
	tenant, err := s.tenantRepo.FindBySlug(ctx, strings.ToLower(strings.TrimSpace(opts.TenantSlug)))
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !tenant.Active) {
		bcrypt.CompareHashAndPassword(s.dummyHash, []byte(opts.Password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(opts.Email))
	identity, err := s.identityRepo.FindByEmail(ctx, tenant.ID, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		bcrypt.CompareHashAndPassword(s.dummyHash, []byte(opts.Password))
		return nil, s.loginFailed(ctx, tenant.ID, nil, opts, reasonUnknownIdentity)
	}
	if err != nil {
		return nil, err
	}
	if !checkPassword(identity, opts.Password) {
		return nil, s.loginFailed(ctx, tenant.ID, identity, opts, reasonPasswordInvalid)
	}
	if !identity.Active {
		return nil, s.loginFailed(ctx, tenant.ID, identity, opts, reasonIdentityInactive)
	}

	result := &LoginResult{Identity: identity, MFARequired: identity.MFAEnabled}
	var record *model.AuditLog
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result.Session, result.Token, err = s.sessions.CreateSession(ctx, tx, identity, opts.DeviceInfo, opts.IP)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.identityRepo.WithTx(tx).Updates(ctx, identity.ID, map[string]interface{}{"last_login_at": now}); err != nil {
			return err
		}
		identity.LastLoginAt = &now
		actor := audit.Actor{IdentityID: identity.ID, TenantID: identity.TenantID, IP: opts.IP}
		record, err = s.audit.Create(ctx, tx, identityEntry(actor, identity.TenantID, identity, audit.ActionLoginSuccess, map[string]any{
			"deviceInfo":  opts.DeviceInfo,
			"mfaRequired": identity.MFAEnabled,
		}))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.Publish(record)
	return result, nil
}

// Logout revokes the caller's current session.
func (s *UserService) Logout(ctx context.Context, actor audit.Actor, sessionID string) error {
	return s.sessions.Revoke(ctx, actor, sessionID)
}

// GetIdentity returns an identity of the actor's tenant. Reading another identity
// requires identity.manage.
func (s *UserService) GetIdentity(ctx context.Context, actor audit.Actor, identityID uint) (*model.Identity, error) {
	if identityID != actor.IdentityID {
		if err := s.resolver.Require(ctx, actor, model.PermIdentityManage); err != nil {
			return nil, err
		}
	}
	identity, err := s.identityRepo.First(ctx, actor.TenantID, identityID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	return identity, err
}

// CreateIdentity creates an active identity in the actor's tenant with the named roles.
func (s *UserService) CreateIdentity(ctx context.Context, actor audit.Actor, opts CreateIdentityOptions) (*model.Identity, error) {
	email, err := normalizeEmail(opts.Email)
	if err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(opts.Password)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.Require(ctx, actor, model.PermIdentityManage); err != nil {
		return nil, err
	}

	identity := &model.Identity{
		TenantID: actor.TenantID,
		Email:    email,
		FullName: strings.TrimSpace(opts.FullName),
		Password: &hash,
		Active:   true,
	}
	var record *model.AuditLog
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.identityRepo.WithTx(tx).Create(ctx, identity); err != nil {
			if db.IsDuplicateKey(err) {
				return ErrEmailTaken
			}
			return err
		}
		roleNames, err := s.assignRoles(ctx, tx, identity, opts.Roles)
		if err != nil {
			return err
		}
		record, err = s.audit.Create(ctx, tx, identityEntry(actor, actor.TenantID, identity, audit.ActionIdentityCreated, map[string]any{
			"email": identity.Email,
			"roles": roleNames,
		}))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.Publish(record)
	return identity, nil
}

func (s *UserService) assignRoles(ctx context.Context, tx *gorm.DB, identity *model.Identity, names []string) ([]string, error) {
	if len(names) == 0 {
		return []string{}, nil
	}
	roles, err := s.roleRepo.WithTx(tx).Find(ctx, identity.TenantID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*model.Role, len(roles))
	for _, role := range roles {
		byName[role.Name] = role
	}
	assigned := make([]string, 0, len(names))
	for _, name := range names {
		role, ok := byName[name]
		if !ok {
			return nil, apperror.Newf(apperror.NotFound, "NOT_FOUND", "role %q not found", name)
		}
		if err := s.roles.AssignTx(ctx, tx, identity, role); err != nil {
			return nil, err
		}
		assigned = append(assigned, role.Name)
	}
	sort.Strings(assigned)
	return assigned, nil
}

// Deactivate disables an identity and revokes all of its sessions atomically.
func (s *UserService) Deactivate(ctx context.Context, actor audit.Actor, identityID uint) error {
	if identityID == actor.IdentityID {
		return ErrCannotDeactivateSelf
	}
	if err := s.resolver.Require(ctx, actor, model.PermIdentityManage); err != nil {
		return err
	}

	var record *model.AuditLog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.identityRepo.WithTx(tx)
		identity, err := repo.FirstForUpdate(ctx, actor.TenantID, identityID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !identity.Active {
			return nil
		}
		if err := repo.Updates(ctx, identity.ID, map[string]interface{}{"active": false}); err != nil {
			return err
		}
		revoked, err := s.sessions.RevokeAllTx(ctx, tx, identity.ID, actor.IP, "")
		if err != nil {
			return err
		}
		record, err = s.audit.Create(ctx, tx, identityEntry(actor, actor.TenantID, identity, audit.ActionIdentityDeactivated, map[string]any{
			"sessionsRevoked": revoked,
		}))
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Publish(record)
	return nil
}

// ChangePassword replaces the actor's password and revokes every other session.
func (s *UserService) ChangePassword(ctx context.Context, actor audit.Actor, currentSessionID, oldPassword, newPassword string) error {
	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	var record *model.AuditLog
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.identityRepo.WithTx(tx)
		identity, err := repo.FirstForUpdate(ctx, actor.TenantID, actor.IdentityID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !checkPassword(identity, oldPassword) {
			return ErrInvalidCredentials
		}
		if err := repo.Updates(ctx, identity.ID, map[string]interface{}{"password": hash}); err != nil {
			return err
		}
		revoked, err := s.sessions.RevokeAllTx(ctx, tx, identity.ID, actor.IP, currentSessionID)
		if err != nil {
			return err
		}
		record, err = s.audit.Create(ctx, tx, identityEntry(actor, actor.TenantID, identity, audit.ActionPasswordChanged, map[string]any{
			"sessionsRevoked": revoked,
		}))
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Publish(record)
	return nil
}

// BootstrapTenant creates a tenant, its system roles and a first admin identity.
func (s *UserService) BootstrapTenant(ctx context.Context, opts BootstrapOptions) (*model.Tenant, *model.Identity, error) {
	slug := strings.ToLower(strings.TrimSpace(opts.Slug))
	if !slugPattern.MatchString(slug) {
		return nil, nil, ErrInvalidSlug
	}
	email, err := normalizeEmail(opts.AdminEmail)
	if err != nil {
		return nil, nil, err
	}
	hash, err := s.hashPassword(opts.AdminPassword)
	if err != nil {
		return nil, nil, err
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = slug
	}

	tenant := &model.Tenant{Name: name, Slug: slug, Active: true}
	admin := &model.Identity{Email: email, FullName: strings.TrimSpace(opts.AdminName), Password: &hash, Active: true}
	var records []*model.AuditLog
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.tenantRepo.WithTx(tx).Create(ctx, tenant); err != nil {
			if db.IsDuplicateKey(err) {
				return ErrTenantSlugTaken
			}
			return err
		}
		roles, err := s.roles.CreateSystemRoles(ctx, tx, tenant.ID)
		if err != nil {
			return err
		}
		admin.TenantID = tenant.ID
		if err := s.identityRepo.WithTx(tx).Create(ctx, admin); err != nil {
			return err
		}
		if err := s.roles.AssignTx(ctx, tx, admin, roles[rbac.RoleAdmin]); err != nil {
			return err
		}

		roleNames := make([]string, 0, len(roles))
		for roleName := range roles {
			roleNames = append(roleNames, roleName)
		}
		sort.Strings(roleNames)
		actor := audit.Actor{TenantID: tenant.ID}
		tenantRecord, err := s.audit.Create(ctx, tx, audit.Entry{
			TenantID:   tenant.ID,
			EntityType: audit.EntityTenant,
			EntityID:   common.FormatID(tenant.ID),
			Action:     audit.ActionTenantCreated,
			Metadata:   map[string]any{"slug": tenant.Slug, "roles": roleNames},
		})
		if err != nil {
			return err
		}
		adminRecord, err := s.audit.Create(ctx, tx, identityEntry(actor, tenant.ID, admin, audit.ActionIdentityCreated, map[string]any{
			"email": admin.Email,
			"roles": []string{rbac.RoleAdmin},
		}))
		if err != nil {
			return err
		}
		records = append(records, tenantRecord, adminRecord)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.audit.Publish(records...)
	return tenant, admin, nil
}

func NewUserService(db *gorm.DB, resolver *rbac.Resolver, roleService *rbac.RoleService, sessionService *sessions.SessionService, auditService *audit.AuditService, cfg Config) *UserService {
	cost := cfg.PasswordCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummyHash, _ := bcrypt.GenerateFromPassword([]byte("kadmin-login-timing"), cost)
	return &UserService{
		db:           db,
		identityRepo: NewIdentityRepository(db),
		tenantRepo:   NewTenantRepository(db),
		roleRepo:     rbac.NewRoleRepository(db),
		roles:        roleService,
		resolver:     resolver,
		sessions:     sessionService,
		audit:        auditService,
		passwordCost: cost,
		dummyHash:    dummyHash,
		now:          time.Now,
	}
}
