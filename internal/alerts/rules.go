package alerts

import (
	"context"
	"fmt"

	"github.com/khanghh/kadmin/internal/audit"
	"github.com/khanghh/kadmin/model"
	"github.com/khanghh/kadmin/params"
)

const (
	TypeRepeatedLoginFailure = "REPEATED_LOGIN_FAILURE"
	TypeRepeatedMFAFailure   = "REPEATED_MFA_FAILURE"
	TypeMFADisabled          = "MFA_DISABLED"
	TypeAuditCleanup         = "AUDIT_RETENTION_CLEANUP"
	TypeSessionsRevoked      = "SESSIONS_REVOKED_BY_ADMIN"
)

// candidate is an alert a rule wants to raise.
type candidate struct {
	IdentityID uint
	Type       string
	Severity   model.AlertSeverity
	Message    string
}

type ruleFunc func(ctx context.Context, s *Service, record *model.AuditLog) (*candidate, error)

// rules maps audit actions to the rule evaluating them.
var rules = map[string]ruleFunc{
	audit.ActionLoginFailed:        repeatedFailureRule(TypeRepeatedLoginFailure, params.AlertLoginFailureThreshold, "failed logins"),
	audit.ActionMFAStepUpFailed:    repeatedFailureRule(TypeRepeatedMFAFailure, params.AlertMFAFailureThreshold, "failed second factor checks"),
	audit.ActionMFADisabled:        mfaDisabledRule,
	audit.ActionRetentionCleanup:   retentionCleanupRule,
	audit.ActionSessionsRevokedAll: sessionsRevokedRule,
}

func repeatedFailureRule(alertType string, threshold int64, what string) ruleFunc {
	return func(ctx context.Context, s *Service, record *model.AuditLog) (*candidate, error) {
		if record.TargetID == nil {
			return nil, nil
		}
		from := record.CreatedAt.Add(-params.AlertRuleWindow)
		count, err := s.alertRepo.CountEvents(ctx, record.TenantID, *record.TargetID, record.Action, from, record.CreatedAt)
		if err != nil || count < threshold {
			return nil, err
		}
		return &candidate{
			IdentityID: *record.TargetID,
			Type:       alertType,
			Severity:   model.SeverityHigh,
			Message:    fmt.Sprintf("%d %s within %s", count, what, params.AlertRuleWindow),
		}, nil
	}
}

func mfaDisabledRule(ctx context.Context, s *Service, record *model.AuditLog) (*candidate, error) {
	if record.TargetID == nil {
		return nil, nil
	}
	return &candidate{
		IdentityID: *record.TargetID,
		Type:       TypeMFADisabled,
		Severity:   model.SeverityMedium,
		Message:    "two-factor authentication was disabled and all sessions were revoked",
	}, nil
}

func retentionCleanupRule(ctx context.Context, s *Service, record *model.AuditLog) (*candidate, error) {
	if record.ActorID == nil {
		return nil, nil
	}
	return &candidate{
		IdentityID: *record.ActorID,
		Type:       TypeAuditCleanup,
		Severity:   model.SeverityMedium,
		Message:    fmt.Sprintf("audit records were deleted by retention cleanup (%v)", record.Metadata["deleted"]),
	}, nil
}

func sessionsRevokedRule(ctx context.Context, s *Service, record *model.AuditLog) (*candidate, error) {
	if record.TargetID == nil || (record.ActorID != nil && *record.ActorID == *record.TargetID) {
		return nil, nil
	}
	return &candidate{
		IdentityID: *record.TargetID,
		Type:       TypeSessionsRevoked,
		Severity:   model.SeverityLow,
		Message:    "all sessions were revoked by another identity",
	}, nil
}
