package twofactor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/khanghh/kadmin/model"
	"github.com/khanghh/kadmin/params"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type BackupCodeRepository interface {
	WithTx(tx *gorm.DB) BackupCodeRepository
	FindUnused(ctx context.Context, identityID uint) ([]*model.BackupCode, error)
	CountUnused(ctx context.Context, identityID uint) (int64, error)
	CreateBatch(ctx context.Context, codes []*model.BackupCode) error
	MarkUsed(ctx context.Context, id uint, at time.Time) (int64, error)
	DeleteAll(ctx context.Context, identityID uint) error
}

type backupCodeRepository struct {
	db *gorm.DB
}

func (r *backupCodeRepository) FindUnused(ctx context.Context, identityID uint) ([]*model.BackupCode, error) {
	var codes []*model.BackupCode
	err := r.db.WithContext(ctx).
		Where("identity_id = ? AND used_at IS NULL", identityID).
		Order("id").
		Find(&codes).Error
	return codes, err
}

func (r *backupCodeRepository) CountUnused(ctx context.Context, identityID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.BackupCode{}).
		Where("identity_id = ? AND used_at IS NULL", identityID).
		Count(&count).Error
	return count, err
}

func (r *backupCodeRepository) CreateBatch(ctx context.Context, codes []*model.BackupCode) error {
	return r.db.WithContext(ctx).Create(codes).Error
}

// MarkUsed consumes a code only if it is still unused, so one code cannot be
// consumed twice by concurrent verifications.
func (r *backupCodeRepository) MarkUsed(ctx context.Context, id uint, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.BackupCode{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	return result.RowsAffected, result.Error
}

func (r *backupCodeRepository) DeleteAll(ctx context.Context, identityID uint) error {
	return r.db.WithContext(ctx).Where("identity_id = ?", identityID).Delete(&model.BackupCode{}).Error
}

func (r *backupCodeRepository) WithTx(tx *gorm.DB) BackupCodeRepository {
	return &backupCodeRepository{db: tx}
}

func NewBackupCodeRepository(db *gorm.DB) BackupCodeRepository {
	return &backupCodeRepository{db: db}
}

// normalizeBackupCode strips separators and case so "ABCD-1234" matches "abcd1234".
func normalizeBackupCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}

// generateBackupCodes returns plaintext codes formatted as xxxx-xxxx and their
// bcrypt hashes for identityID.
func generateBackupCodes(identityID uint, cost int) ([]string, []*model.BackupCode, error) {
	plain := make([]string, 0, params.MFABackupCodeCount)
	rows := make([]*model.BackupCode, 0, params.MFABackupCodeCount)
	raw := make([]byte, params.MFABackupCodeLength/2)
	for i := 0; i < params.MFABackupCodeCount; i++ {
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, err
		}
		code := hex.EncodeToString(raw)
		hash, err := bcrypt.GenerateFromPassword([]byte(code), cost)
		if err != nil {
			return nil, nil, err
		}
		half := len(code) / 2
		plain = append(plain, code[:half]+"-"+code[half:])
		rows = append(rows, &model.BackupCode{IdentityID: identityID, CodeHash: string(hash)})
	}
	return plain, rows, nil
}

// matchBackupCode returns the unused code matching input, or nil.
func matchBackupCode(ctx context.Context, repo BackupCodeRepository, identityID uint, input string) (*model.BackupCode, error) {
	normalized := normalizeBackupCode(input)
	if len(normalized) != params.MFABackupCodeLength {
		return nil, nil
	}
	codes, err := repo.FindUnused(ctx, identityID)
	if err != nil {
		return nil, err
	}
	for _, code := range codes {
		if bcrypt.CompareHashAndPassword([]byte(code.CodeHash), []byte(normalized)) == nil {
			return code, nil
		}
	}
	return nil, nil
}
