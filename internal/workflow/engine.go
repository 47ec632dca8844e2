package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/metrics"
	"github.com/khanghh/kadmin/internal/rbac"
	"github.com/khanghh/kadmin/model"
	"gorm.io/gorm"
)

const maxCommentLength = 2000

// Engine drives documents through the transition table. Each transition and its
// audit record commit in one transaction.
type Engine struct {
	db       *gorm.DB
	docRepo  DocumentRepository
	resolver *rbac.Resolver
	audit    *audit.AuditService
	now      func() time.Time
}

func transitionResult(err error) string {
	if err == nil {
		return "ok"
	}
	switch apperror.KindOf(err) {
	case apperror.NotFound:
		return "not_found"
	case apperror.InvalidTransition:
		return "invalid_transition"
	case apperror.Forbidden:
		return "forbidden"
	case apperror.Conflict:
		return "conflict"
	default:
		return "error"
	}
}

func documentEntry(actor audit.Actor, doc *model.Document, action string) audit.Entry {
	return audit.Entry{
		TenantID:   doc.TenantID,
		ActorID:    actor.Ref(),
		EntityType: audit.EntityDocument,
		EntityID:   strconv.FormatUint(uint64(doc.ID), 10),
		Action:     action,
		IP:         actor.IP,
	}
}

// ExecuteAction applies action to a document of tenantID on behalf of actor. The
// document row is locked for the guard check so concurrent transitions serialize.
func (e *Engine) ExecuteAction(ctx context.Context, documentID, tenantID uint, action Action, actor audit.Actor, comment string) (doc *model.Document, err error) {
	defer func() {
		metrics.WorkflowTransitions.WithLabelValues(action.String(), transitionResult(err)).Inc()
	}()

	if action == ActionUnknown || int(action) >= len(actionNames) {
		return nil, ErrUnknownAction
	}
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return nil, ErrCommentTooLong
	}
	if actor.TenantID != tenantID {
		return nil, ErrDocumentNotFound
	}

	var record *model.AuditLog
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := e.docRepo.WithTx(tx)
		current, err := repo.FirstForUpdate(ctx, tenantID, documentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDocumentNotFound
		}
		if err != nil {
			return err
		}

		now := e.now()
		from := EffectiveStatus(current.Status, current.ExpiresAt, now)
		tr, ok := Lookup(from, action)
		if !ok {
			return ErrInvalidTransition
		}

		perms, err := e.resolver.WithTx(tx).Resolve(ctx, actor.IdentityID, tenantID)
		if err != nil {
			return err
		}
		if !perms.Has(tr.Permission) {
			return apperror.ErrForbidden
		}

		clearExpiry := current.Status == model.StatusApproved && tr.To != model.StatusApproved
		updated, err := repo.UpdateStatus(ctx, current.ID, current.Status, tr.To, clearExpiry)
		if err != nil {
			return err
		}
		if updated != 1 {
			return ErrDocumentModified
		}

		entry := documentEntry(actor, current, action.auditCode())
		entry.Details = fmt.Sprintf("%s: %s -> %s", action, from, tr.To)
		entry.Metadata = map[string]any{
			"fromStatus": from,
			"toStatus":   tr.To,
			"comment":    strings.TrimSpace(comment),
		}
		if record, err = e.audit.Create(ctx, tx, entry); err != nil {
			return err
		}

		current.Status = tr.To
		if clearExpiry {
			current.ExpiresAt = nil
		}
		doc = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.audit.Publish(record)
	doc.Status = EffectiveStatus(doc.Status, doc.ExpiresAt, e.now())
	return doc, nil
}

// GetDocument returns a document of the actor's tenant with its effective status.
func (e *Engine) GetDocument(ctx context.Context, actor audit.Actor, documentID uint) (*model.Document, error) {
	if err := e.resolver.Require(ctx, actor, model.PermDocumentView); err != nil {
		return nil, err
	}
	doc, err := e.docRepo.First(ctx, actor.TenantID, documentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.Status = EffectiveStatus(doc.Status, doc.ExpiresAt, e.now())
	return doc, nil
}

// CreateDocument creates a DRAFT document in the actor's tenant.
func (e *Engine) CreateDocument(ctx context.Context, actor audit.Actor, title string, expiresAt *time.Time) (*model.Document, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > 256 {
		return nil, ErrTitleInvalid
	}
	if expiresAt != nil && !expiresAt.After(e.now()) {
		return nil, ErrExpiryInPast
	}
	if err := e.resolver.Require(ctx, actor, model.PermDocumentEdit); err != nil {
		return nil, err
	}

	doc := &model.Document{
		TenantID:  actor.TenantID,
		Title:     title,
		Status:    model.StatusDraft,
		ExpiresAt: expiresAt,
		CreatedBy: actor.IdentityID,
	}
	var record *model.AuditLog
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.docRepo.WithTx(tx).Create(ctx, doc); err != nil {
			return err
		}
		entry := documentEntry(actor, doc, audit.ActionDocumentCreated)
		entry.Metadata = map[string]any{"title": doc.Title, "expiresAt": doc.ExpiresAt}
		var err error
		record, err = e.audit.Create(ctx, tx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.audit.Publish(record)
	return doc, nil
}

func NewEngine(db *gorm.DB, resolver *rbac.Resolver, auditService *audit.AuditService) *Engine {
	return &Engine{
		db:       db,
		docRepo:  NewDocumentRepository(db),
		resolver: resolver,
		audit:    auditService,
		now:      time.Now,
	}
}
