package identity

import (
	"context"
	"time"

	"github.com/NeverMind-orz/identity-kit/internal/audit"
)

// auditActionToggleStatus tags status toggle decisions on the audit trail.
const auditActionToggleStatus = "ToggleUserStatus"

// Reason codes written to the security audit trail when a status toggle is
// rejected by policy.
const (
	ReasonActorNotAdmin            = "ActorNotAdmin"
	ReasonSelfDeactivationBlocked  = "SelfDeactivationBlocked"
	ReasonAdminDeactivationBlocked = "AdminDeactivationBlocked"
	ReasonNoActiveAdmins           = "NoActiveAdmins"
)

// ToggleStatus activates or deactivates one user account. The actor must be
// an authenticated admin, cannot target themselves or another admin, and a
// deactivation must leave at least one active admin in the tenant. Every
// policy rejection writes a security audit record with its reason code; a
// successful toggle writes an activity record. Audit writes never affect the
// returned decision.
func (s *Service) ToggleStatus(ctx context.Context, activate bool, targetID string) error {
	tenantID, err := s.tenantID(ctx)
	if err != nil {
		return err
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		return errUnauthorized("an authenticated actor is required")
	}

	if !actor.HasRole(RoleAdmin) {
		s.auditToggleRejected(ctx, tenantID, actor.ID, targetID, ReasonActorNotAdmin)

		return errUnauthorized("actor %s does not hold the %s role", actor.Username, RoleAdmin)
	}

	if !activate && targetID == actor.ID {
		s.auditToggleRejected(ctx, tenantID, actor.ID, targetID, ReasonSelfDeactivationBlocked)

		return errValidation("deactivating your own account is not allowed")
	}

	target, err := s.loadUser(ctx, s.db, targetID)
	if err != nil {
		return err
	}

	admin, err := s.roleByName(ctx, s.db, RoleAdmin)
	if err != nil {
		return err
	}

	targetIsAdmin, err := s.holdsRole(ctx, s.db, target.ID, admin.ID)
	if err != nil {
		return err
	}

	if targetIsAdmin {
		s.auditToggleRejected(ctx, tenantID, actor.ID, targetID, ReasonAdminDeactivationBlocked)

		return errValidation("the status of admin accounts cannot be toggled here")
	}

	if !activate {
		remaining, err := s.activeAdminCount(ctx, s.db, target.ID)
		if err != nil {
			return err
		}

		if remaining == 0 {
			s.auditToggleRejected(ctx, tenantID, actor.ID, targetID, ReasonNoActiveAdmins)

			return errValidation("the tenant would be left without an active admin")
		}
	}

	now := time.Now().UTC()

	if activate {
		target.Activate(actor.ID, "activated by "+actor.Username, now)
	} else {
		target.Deactivate(actor.ID, "deactivated by "+actor.Username, now)
	}

	if err := s.db.WithContext(ctx).Save(target).Error; err != nil {
		return errInternal(err, "failed to persist status of user %s", targetID)
	}

	s.dropCachedUser(ctx, tenantID, target.ID)

	s.auditActivity(ctx, audit.ActivityEvent{
		Kind:     auditActionToggleStatus,
		TenantID: tenantID,
		ActorID:  actor.ID,
		Status:   204,
		Payload: map[string]any{
			"targetId": target.ID,
			"activate": activate,
		},
	})

	return nil
}

// auditToggleRejected records one policy rejection on the security trail.
func (s *Service) auditToggleRejected(ctx context.Context, tenantID, actorID, subjectID, reason string) {
	s.auditSecurity(ctx, audit.SecurityEvent{
		Action:    auditActionToggleStatus,
		TenantID:  tenantID,
		ActorID:   actorID,
		SubjectID: subjectID,
		Reason:    reason,
		Severity:  audit.SeverityWarning,
		Source:    SourceIdentity,
	})
}
