package twofactor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/common"
	"github.com/khanghh/kadmin/internal/sessions"
	"github.com/khanghh/kadmin/internal/store"
	"github.com/khanghh/kadmin/model"
	"github.com/khanghh/kadmin/params"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MethodTOTP       = "totp"
	MethodBackupCode = "backup_code"
)

type Config struct {
	MasterKey string
	// BackupCodeCost is the bcrypt cost of backup code hashes.
	BackupCodeCost int
}

// TwoFactorService implements TOTP enrollment, step-up verification, backup codes
// and MFA disablement.
type TwoFactorService struct {
	db        *gorm.DB
	codeRepo  BackupCodeRepository
	userState *userStateStore
	sessions  *sessions.SessionService
	audit     *audit.AuditService
	box       *common.SecretBox
	codeCost  int
	now       func() time.Time
}

type factorMatch struct {
	method     string
	backupCode *model.BackupCode
}

func identityEntry(actor audit.Actor, identity *model.Identity, action string, metadata map[string]any) audit.Entry {
	return audit.Entry{
		TenantID:   identity.TenantID,
		ActorID:    actor.Ref(),
		TargetID:   &identity.ID,
		EntityType: audit.EntityIdentity,
		EntityID:   common.FormatID(identity.ID),
		Action:     action,
		Metadata:   metadata,
		IP:         actor.IP,
	}
}

func (s *TwoFactorService) getIdentity(ctx context.Context, db *gorm.DB, actor audit.Actor, lock bool) (*model.Identity, error) {
	query := db.WithContext(ctx)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var identity model.Identity
	err := query.Where("id = ? AND tenant_id = ?", actor.IdentityID, actor.TenantID).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !identity.Active {
		return nil, sessions.ErrIdentityInactive
	}
	return &identity, nil
}

func (s *TwoFactorService) checkLocked(ctx context.Context, identityID uint) error {
	failures, err := s.userState.FailCount(ctx, identityID)
	if err != nil {
		return err
	}
	if failures >= params.MFAMaxFailedAttempts {
		return ErrTooManyFailedAttempts
	}
	return nil
}

// recordFailure counts a failed verification, audits it and returns the error
// reported to the caller.
func (s *TwoFactorService) recordFailure(ctx context.Context, actor audit.Actor, identity *model.Identity, reason string) error {
	failures, err := s.userState.IncreaseFailCount(ctx, identity.ID)
	if err != nil {
		return err
	}
	entry := identityEntry(actor, identity, audit.ActionMFAStepUpFailed, map[string]any{
		"reason":   reason,
		"failures": failures,
	})
	if _, err := s.audit.Create(ctx, nil, entry); err != nil {
		return err
	}
	if failures >= params.MFAMaxFailedAttempts {
		return ErrTooManyFailedAttempts
	}
	return NewAttemptFailError(params.MFAMaxFailedAttempts - failures)
}

func (s *TwoFactorService) resetFailures(ctx context.Context, identityID uint) {
	if err := s.userState.ResetFailCount(ctx, identityID); err != nil {
		slog.Warn("Failed to reset MFA failure counter", "identityID", identityID, "error", err)
	}
}

func (s *TwoFactorService) clearEnrollment(ctx context.Context, identityID uint) {
	if err := s.userState.DeleteEnrollment(ctx, identityID); err != nil {
		slog.Warn("Failed to clear pending MFA enrollment", "identityID", identityID, "error", err)
	}
}

// checkSecondFactor matches code as a TOTP code or an unused backup code. It
// returns nil when nothing matches. Backup codes are never consumed here.
func (s *TwoFactorService) checkSecondFactor(ctx context.Context, identity *model.Identity, code string) (*factorMatch, error) {
	if looksLikeTOTP(code) {
		if identity.MFASecret == nil {
			return nil, nil
		}
		secret, err := s.box.Open(*identity.MFASecret)
		if err != nil {
			return nil, err
		}
		step, ok := VerifyTOTP(secret, code, s.now())
		if !ok {
			return nil, nil
		}
		fresh, err := s.userState.ConsumeTOTPStep(ctx, identity.ID, step)
		if err != nil || !fresh {
			return nil, err
		}
		return &factorMatch{method: MethodTOTP}, nil
	}
	backupCode, err := matchBackupCode(ctx, s.codeRepo, identity.ID, code)
	if err != nil || backupCode == nil {
		return nil, err
	}
	return &factorMatch{method: MethodBackupCode, backupCode: backupCode}, nil
}

// IsEnabled reports whether identityID has MFA enabled.
func (s *TwoFactorService) IsEnabled(ctx context.Context, identityID uint) (bool, error) {
	var identity model.Identity
	if err := s.db.WithContext(ctx).Select("mfa_enabled").First(&identity, identityID).Error; err != nil {
		return false, err
	}
	return identity.MFAEnabled, nil
}

// BeginEnrollment generates a TOTP secret and keeps it pending until confirmed.
func (s *TwoFactorService) BeginEnrollment(ctx context.Context, actor audit.Actor) (*TOTPKey, error) {
	identity, err := s.getIdentity(ctx, s.db, actor, false)
	if err != nil {
		return nil, err
	}
	if identity.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}
	key, err := generateTOTPKey(identity.Email)
	if err != nil {
		return nil, err
	}
	sealed, err := s.box.Seal(key.Secret)
	if err != nil {
		return nil, err
	}
	enrollment := pendingEnrollment{SealedSecret: sealed, CreatedAt: s.now().UTC()}
	if err := s.userState.SetEnrollment(ctx, identity.ID, enrollment); err != nil {
		return nil, err
	}
	return key, nil
}

// ConfirmEnrollment enables MFA once code matches the pending secret and returns
// the new backup codes. The plaintext codes are never retrievable again.
func (s *TwoFactorService) ConfirmEnrollment(ctx context.Context, actor audit.Actor, code string) ([]string, error) {
	enrollment, err := s.userState.GetEnrollment(ctx, actor.IdentityID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, err
	}
	secret, err := s.box.Open(enrollment.SealedSecret)
	if err != nil {
		return nil, err
	}
	step, ok := VerifyTOTP(secret, code, s.now())
	if !ok {
		return nil, ErrCodeInvalid
	}
	if _, err := s.userState.ConsumeTOTPStep(ctx, actor.IdentityID, step); err != nil {
		return nil, err
	}

	plain, rows, err := generateBackupCodes(actor.IdentityID, s.codeCost)
	if err != nil {
		return nil, err
	}
	var record *model.AuditLog
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		identity, err := s.getIdentity(ctx, tx, actor, true)
		if err != nil {
			return err
		}
		if identity.MFAEnabled {
			return ErrMFAAlreadyEnabled
		}
		err = tx.Model(identity).Updates(map[string]any{
			"mfa_enabled": true,
			"mfa_secret":  enrollment.SealedSecret,
		}).Error
		if err != nil {
			return err
		}
		codeRepo := s.codeRepo.WithTx(tx)
		if err := codeRepo.DeleteAll(ctx, identity.ID); err != nil {
			return err
		}
		if err := codeRepo.CreateBatch(ctx, rows); err != nil {
			return err
		}
		record, err = s.audit.Create(ctx, tx, identityEntry(actor, identity, audit.ActionMFAEnabled, map[string]any{
			"backupCodes": len(plain),
		}))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.Publish(record)
	s.clearEnrollment(ctx, actor.IdentityID)
	return plain, nil
}

// VerifyStepUp verifies a second factor for the actor's own session and marks the
// session as MFA verified. A backup code matched here is consumed.
func (s *TwoFactorService) VerifyStepUp(ctx context.Context, actor audit.Actor, sessionID string, code string) (string, error) {
	if err := s.checkLocked(ctx, actor.IdentityID); err != nil {
		return "", err
	}
	session, err := s.sessions.GetSession(ctx, actor, sessionID)
	if err != nil {
		return "", err
	}
	if session.IdentityID != actor.IdentityID {
		return "", ErrSessionNotOwned
	}
	identity, err := s.getIdentity(ctx, s.db, actor, false)
	if err != nil {
		return "", err
	}
	if !identity.MFAEnabled {
		return "", ErrMFANotEnabled
	}

	match, err := s.checkSecondFactor(ctx, identity, code)
	if err != nil {
		return "", err
	}
	if match == nil {
		return "", s.recordFailure(ctx, actor, identity, "code_invalid")
	}

	var record *model.AuditLog
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if match.backupCode != nil {
			consumed, err := s.codeRepo.WithTx(tx).MarkUsed(ctx, match.backupCode.ID, s.now().UTC())
			if err != nil {
				return err
			}
			if consumed == 0 {
				return ErrCodeInvalid
			}
		}
		if err := s.sessions.MarkMFAVerified(ctx, tx, session.ID); err != nil {
			return err
		}
		var err error
		record, err = s.audit.Create(ctx, tx, identityEntry(actor, identity, audit.ActionMFAStepUpVerified, map[string]any{
			"method":    match.method,
			"sessionId": session.ID,
		}))
		return err
	})
	if errors.Is(err, ErrCodeInvalid) {
		return "", s.recordFailure(ctx, actor, identity, "backup_code_used")
	}
	if err != nil {
		return "", err
	}
	s.audit.Publish(record)
	s.resetFailures(ctx, identity.ID)
	return match.method, nil
}

// VerifyBackupCode reports whether code matches one of the identity's unused backup
// codes without consuming it.
func (s *TwoFactorService) VerifyBackupCode(ctx context.Context, identityID uint, code string) (bool, error) {
	match, err := matchBackupCode(ctx, s.codeRepo, identityID, code)
	return match != nil, err
}

// RemainingBackupCodes returns how many unused backup codes identityID has.
func (s *TwoFactorService) RemainingBackupCodes(ctx context.Context, identityID uint) (int64, error) {
	return s.codeRepo.CountUnused(ctx, identityID)
}

// RegenerateBackupCodes replaces every backup code after a valid second factor.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, actor audit.Actor, code string) ([]string, error) {
	if err := s.checkLocked(ctx, actor.IdentityID); err != nil {
		return nil, err
	}
	identity, err := s.getIdentity(ctx, s.db, actor, false)
	if err != nil {
		return nil, err
	}
	if !identity.MFAEnabled {
		return nil, ErrMFANotEnabled
	}
	match, err := s.checkSecondFactor(ctx, identity, code)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, s.recordFailure(ctx, actor, identity, "code_invalid")
	}

	plain, rows, err := generateBackupCodes(identity.ID, s.codeCost)
	if err != nil {
		return nil, err
	}
	var record *model.AuditLog
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		codeRepo := s.codeRepo.WithTx(tx)
		if err := codeRepo.DeleteAll(ctx, identity.ID); err != nil {
			return err
		}
		if err := codeRepo.CreateBatch(ctx, rows); err != nil {
			return err
		}
		var err error
		record, err = s.audit.Create(ctx, tx, identityEntry(actor, identity, audit.ActionMFABackupCodesRenewed, map[string]any{
			"backupCodes": len(plain),
		}))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.Publish(record)
	s.resetFailures(ctx, identity.ID)
	return plain, nil
}

// Disable turns MFA off after checking the password and a second factor. Clearing
// the secret, deleting all backup codes, revoking every session and the audit
// record commit together. A matched backup code is not consumed individually since
// the whole set is deleted.
func (s *TwoFactorService) Disable(ctx context.Context, actor audit.Actor, password, code string) error {
	if err := s.checkLocked(ctx, actor.IdentityID); err != nil {
		return err
	}
	identity, err := s.getIdentity(ctx, s.db, actor, false)
	if err != nil {
		return err
	}
	if !identity.MFAEnabled {
		return ErrMFANotEnabled
	}
	if identity.Password == nil || bcrypt.CompareHashAndPassword([]byte(*identity.Password), []byte(password)) != nil {
		if err := s.recordFailure(ctx, actor, identity, "password_invalid"); errors.Is(err, ErrTooManyFailedAttempts) {
			return err
		}
		return ErrPasswordInvalid
	}
	match, err := s.checkSecondFactor(ctx, identity, code)
	if err != nil {
		return err
	}
	if match == nil {
		return s.recordFailure(ctx, actor, identity, "code_invalid")
	}

	var record *model.AuditLog
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.getIdentity(ctx, tx, actor, true)
		if err != nil {
			return err
		}
		if !locked.MFAEnabled {
			return ErrMFANotEnabled
		}
		err = tx.Model(locked).Updates(map[string]any{
			"mfa_enabled": false,
			"mfa_secret":  nil,
		}).Error
		if err != nil {
			return err
		}
		if err := s.codeRepo.WithTx(tx).DeleteAll(ctx, locked.ID); err != nil {
			return err
		}
		revoked, err := s.sessions.RevokeAllTx(ctx, tx, locked.ID, actor.IP, "")
		if err != nil {
			return err
		}
		record, err = s.audit.Create(ctx, tx, identityEntry(actor, locked, audit.ActionMFADisabled, map[string]any{
			"method":          match.method,
			"sessionsRevoked": revoked,
		}))
		return err
	})
	if err != nil {
		return err
	}
	s.audit.Publish(record)
	s.resetFailures(ctx, identity.ID)
	return nil
}

func NewTwoFactorService(db *gorm.DB, storage store.Storage, sessionService *sessions.SessionService, auditService *audit.AuditService, cfg Config) *TwoFactorService {
	cost := cfg.BackupCodeCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &TwoFactorService{
		db:        db,
		codeRepo:  NewBackupCodeRepository(db),
		userState: newUserStateStore(storage),
		sessions:  sessionService,
		audit:     auditService,
		box:       common.NewSecretBox(cfg.MasterKey),
		codeCost:  cost,
		now:       time.Now,
	}
}
