package alerts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/khanghh/kadmin/internal/apperror"
	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/internal/metrics"
	"github.com/khanghh/kadmin/internal/rbac"
	"github.com/khanghh/kadmin/model"
	"github.com/khanghh/kadmin/params"
	"gorm.io/gorm"
)

const maxListLimit = 100

// Notifier delivers raised alerts outside the system.
type Notifier interface {
	Notify(ctx context.Context, alert *model.SecurityAlert) error
}

// Service evaluates audit records against the alert rules and serves raised alerts.
type Service struct {
	alertRepo AlertRepository
	resolver  *rbac.Resolver
	notifier  Notifier
	now       func() time.Time
}

// Evaluate runs the rule registered for record's action and stores the resulting
// alert unless the same alert was raised for the identity within the rule window.
func (s *Service) Evaluate(ctx context.Context, record *model.AuditLog) error {
	rule, ok := rules[record.Action]
	if !ok {
		return nil
	}
	c, err := rule(ctx, s, record)
	if err != nil || c == nil {
		return err
	}

	since := s.now().Add(-params.AlertRuleWindow)
	exists, err := s.alertRepo.ExistsSince(ctx, c.IdentityID, c.Type, since)
	if err != nil || exists {
		return err
	}
	alert := &model.SecurityAlert{
		TenantID:   record.TenantID,
		IdentityID: c.IdentityID,
		Type:       c.Type,
		Severity:   c.Severity,
		Message:    c.Message,
		AuditEvent: record.EventID,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.alertRepo.Create(ctx, alert); err != nil {
		return err
	}
	metrics.AlertsRaised.WithLabelValues(alert.Severity.String()).Inc()
	slog.Info("Security alert raised", "tenantID", alert.TenantID, "identityID", alert.IdentityID, "type", alert.Type, "severity", alert.Severity)

	if s.notifier != nil && alert.Severity >= model.SeverityHigh {
		if err := s.notifier.Notify(ctx, alert); err != nil {
			slog.Error("Failed to send alert notification", "alertID", alert.ID, "error", err)
		}
	}
	return nil
}

// canRead allows the identity an alert is about, or holders of alert.view in the
// same tenant.
func (s *Service) canRead(ctx context.Context, actor audit.Actor, identityID uint) error {
	if identityID != 0 && identityID == actor.IdentityID {
		return nil
	}
	return s.resolver.Require(ctx, actor, model.PermAlertView)
}

// ListAlerts returns alerts about identityID, or about every identity of the
// tenant when identityID is zero.
func (s *Service) ListAlerts(ctx context.Context, actor audit.Actor, identityID uint, unreadOnly bool, limit int) ([]*model.SecurityAlert, error) {
	if err := s.canRead(ctx, actor, identityID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	return s.alertRepo.Find(ctx, AlertFilter{
		TenantID:   actor.TenantID,
		IdentityID: identityID,
		UnreadOnly: unreadOnly,
		Limit:      limit,
	})
}

func (s *Service) MarkRead(ctx context.Context, actor audit.Actor, alertID uint) error {
	alert, err := s.alertRepo.First(ctx, actor.TenantID, alertID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAlertNotFound
	}
	if err != nil {
		return err
	}
	if err := s.canRead(ctx, actor, alert.IdentityID); err != nil {
		if apperror.KindOf(err) == apperror.Forbidden {
			return ErrAlertNotFound
		}
		return err
	}
	return s.alertRepo.MarkRead(ctx, alert.ID)
}

func NewService(db *gorm.DB, resolver *rbac.Resolver, notifier Notifier) *Service {
	return &Service{
		alertRepo: NewAlertRepository(db),
		resolver:  resolver,
		notifier:  notifier,
		now:       time.Now,
	}
}
