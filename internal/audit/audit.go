package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/metrics"
	"github.com/khanghh/kadmin/model"
	"github.com/khanghh/kadmin/params"
	"gorm.io/gorm"
)

const verifyBatchSize = 500

// Actor is the identity performing an operation, with the tenant it acts in.
type Actor struct {
	IdentityID uint
	TenantID   uint
	IP         string
}

func (a Actor) Ref() *uint {
	if a.IdentityID == 0 {
		return nil
	}
	id := a.IdentityID
	return &id
}

// Entry describes an audit record before sanitization.
type Entry struct {
	TenantID   uint
	ActorID    *uint
	TargetID   *uint
	EntityType string
	EntityID   string
	Action     string
	Details    string
	Metadata   map[string]any
	IP         string
}

// EventPublisher receives committed audit records. Submit must not block.
type EventPublisher interface {
	Submit(record *model.AuditLog)
}

type PermissionChecker interface {
	HasPermission(ctx context.Context, identityID, tenantID uint, perm model.PermissionID) (bool, error)
}

type Config struct {
	MasterKey    string
	MinRetention time.Duration
}

type AuditService struct {
	db           *gorm.DB
	repo         AuditLogRepository
	perms        PermissionChecker
	publisher    EventPublisher
	key          []byte
	minRetention time.Duration
	now          func() time.Time
}

// Create appends a record to the tenant's audit chain. When tx is given the record
// commits or rolls back with it, and the caller must Publish the record after commit.
// Without tx the record is written in its own transaction and published.
func (s *AuditService) Create(ctx context.Context, tx *gorm.DB, entry Entry) (*model.AuditLog, error) {
	if tx != nil {
		return s.append(ctx, tx, entry)
	}

	var record *model.AuditLog
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = s.append(ctx, tx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Publish(record)
	return record, nil
}

func (s *AuditService) append(ctx context.Context, tx *gorm.DB, entry Entry) (*model.AuditLog, error) {
	record, err := s.appendChained(ctx, s.repo.WithTx(tx), entry)
	if err != nil {
		metrics.AuditWriteFailures.Inc()
		slog.Error("Failed to write audit record", "action", entry.Action, "tenantID", entry.TenantID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAuditWriteFailed, err)
	}
	return record, nil
}

func (s *AuditService) appendChained(ctx context.Context, repo AuditLogRepository, entry Entry) (*model.AuditLog, error) {
	if entry.TenantID == 0 || entry.Action == "" {
		return nil, errors.New("audit entry requires tenant and action")
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	record := &model.AuditLog{
		EventID:    model.NewEventID(now),
		TenantID:   entry.TenantID,
		ActorID:    entry.ActorID,
		TargetID:   entry.TargetID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Details:    truncateDetails(entry.Details),
		Metadata:   SanitizeMetadata(entry.Action, entry.Metadata),
		IP:         entry.IP,
		CreatedAt:  now,
	}

	head, err := repo.LockChainHead(ctx, entry.TenantID)
	if err != nil {
		return nil, err
	}
	record.PrevHash = head.LastHash
	if record.Hash, err = computeHash(s.key, record); err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, record); err != nil {
		return nil, err
	}
	if err := repo.UpdateChainHead(ctx, entry.TenantID, record.Hash); err != nil {
		return nil, err
	}
	return record, nil
}

func truncateDetails(details string) string {
	runes := []rune(details)
	if len(runes) > 1024 {
		return string(runes[:1024])
	}
	return details
}

// Publish hands committed records to the alert pipeline.
func (s *AuditService) Publish(records ...*model.AuditLog) {
	for _, record := range records {
		if record == nil {
			continue
		}
		metrics.AuditRecords.WithLabelValues(record.Action).Inc()
		if s.publisher != nil {
			s.publisher.Submit(record)
		}
	}
}

func (s *AuditService) requirePermission(ctx context.Context, actor Actor, perm model.PermissionID) error {
	ok, err := s.perms.HasPermission(ctx, actor.IdentityID, actor.TenantID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.ErrForbidden
	}
	return nil
}

func (s *AuditService) List(ctx context.Context, actor Actor, filter Filter) ([]*model.AuditLog, error) {
	if err := s.requirePermission(ctx, actor, model.PermAuditView); err != nil {
		return nil, err
	}
	filter.TenantID = actor.TenantID
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 100
	}
	return s.repo.Find(ctx, filter)
}

// VerifyChain recomputes every link of the actor's tenant chain up to the current head.
func (s *AuditService) VerifyChain(ctx context.Context, actor Actor) (*ChainReport, error) {
	if err := s.requirePermission(ctx, actor, model.PermAuditView); err != nil {
		return nil, err
	}

	head, err := s.repo.GetChainHead(ctx, actor.TenantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &ChainReport{Valid: true}, nil
	}
	if err != nil {
		return nil, err
	}

	verifier := &chainVerifier{key: s.key, report: ChainReport{Valid: true}}
	reachedHead := false
	errStop := errors.New("stop")
	err = s.repo.FindInBatches(ctx, actor.TenantID, verifyBatchSize, func(batch []*model.AuditLog) error {
		for _, record := range batch {
			if !verifier.check(record) {
				return errStop
			}
			if record.Hash == head.LastHash {
				reachedHead = true
				return errStop
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}

	report := verifier.report
	if report.Valid && !reachedHead && head.LastHash != "" {
		report.Valid = false
		report.Reason = "chain head mismatch"
	}
	return &report, nil
}

// Cleanup deletes the actor's tenant records older than olderThan and records the
// cleanup itself in the same transaction.
func (s *AuditService) Cleanup(ctx context.Context, actor Actor, olderThan time.Duration) (int64, error) {
	if olderThan < s.minRetention {
		return 0, ErrRetentionTooShort
	}
	if err := s.requirePermission(ctx, actor, model.PermAuditCleanup); err != nil {
		return 0, err
	}

	var (
		deleted int64
		record  *model.AuditLog
	)
	before := s.now().Add(-olderThan)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = s.repo.WithTx(tx).DeleteOlderThan(ctx, actor.TenantID, before)
		if err != nil {
			return err
		}
		record, err = s.append(ctx, tx, Entry{
			TenantID:   actor.TenantID,
			ActorID:    actor.Ref(),
			EntityType: EntityAuditLog,
			Action:     ActionRetentionCleanup,
			Metadata: map[string]any{
				"olderThan": olderThan.String(),
				"deleted":   deleted,
			},
			IP: actor.IP,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	s.Publish(record)
	slog.Info("Audit retention cleanup", "tenantID", actor.TenantID, "deleted", deleted, "olderThan", olderThan)
	return deleted, nil
}

func NewAuditService(db *gorm.DB, perms PermissionChecker, publisher EventPublisher, cfg Config) *AuditService {
	minRetention := cfg.MinRetention
	if minRetention <= 0 {
		minRetention = params.AuditDefaultMinRetention
	}
	return &AuditService{
		db:           db,
		repo:         NewAuditLogRepository(db),
		perms:        perms,
		publisher:    publisher,
		key:          []byte(cfg.MasterKey),
		minRetention: minRetention,
		now:          time.Now,
	}
}
