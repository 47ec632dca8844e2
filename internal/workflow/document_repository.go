package workflow

import (
	"context"

	"github.com/khanghh/kadmin/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DocumentRepository interface {
	WithTx(tx *gorm.DB) DocumentRepository
	First(ctx context.Context, tenantID, documentID uint) (*model.Document, error)
	FirstForUpdate(ctx context.Context, tenantID, documentID uint) (*model.Document, error)
	Create(ctx context.Context, doc *model.Document) error
	UpdateStatus(ctx context.Context, documentID uint, from, to model.DocumentStatus, clearExpiry bool) (int64, error)
}

type documentRepository struct {
	db *gorm.DB
}

func (r *documentRepository) First(ctx context.Context, tenantID, documentID uint) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", documentID, tenantID).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FirstForUpdate(ctx context.Context, tenantID, documentID uint) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND tenant_id = ?", documentID, tenantID).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

// UpdateStatus is the only write of a document status. The update only applies while
// the persisted status is still from.
func (r *documentRepository) UpdateStatus(ctx context.Context, documentID uint, from, to model.DocumentStatus, clearExpiry bool) (int64, error) {
	columns := map[string]interface{}{"status": to}
	if clearExpiry {
		columns["expires_at"] = nil
	}
	result := r.db.WithContext(ctx).
		Model(&model.Document{}).
		Where("id = ? AND status = ?", documentID, from).
		Updates(columns)
	return result.RowsAffected, result.Error
}

func (r *documentRepository) WithTx(tx *gorm.DB) DocumentRepository {
	return NewDocumentRepository(tx)
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}
