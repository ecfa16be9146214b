package portal

import (
	"context"
	"time"
)

// logAudit creates an audit log entry. Best effort; a failed audit write
// never fails the underlying operation.
func (s *Service) logAudit(ctx context.Context, actorID uint, action, targetType string, targetID uint, details string) {
	if !s.auditEnabled {
		return
	}

	audit := &AuditLog{
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
		CreatedAt:  time.Now(),
	}
	s.db.WithContext(ctx).Create(audit)
}

// GetAuditLog retrieves an audit log entry by ID.
func (s *Service) GetAuditLog(ctx context.Context, id uint) (*AuditLog, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}

	var audit AuditLog
	if err := s.db.WithContext(ctx).First(&audit, id).Error; err != nil {
		return nil, &NotFoundError{Resource: "audit log", ID: id}
	}

	return &audit, nil
}

// ListAuditLogs retrieves audit logs, optionally filtered by actor or target.
func (s *Service) ListAuditLogs(ctx context.Context, actorID, targetID *uint) ([]AuditLog, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if actorID != nil {
		query = query.Where("actor_id = ?", *actorID)
	}
	if targetID != nil {
		query = query.Where("target_id = ?", *targetID)
	}

	var audits []AuditLog
	if err := query.Find(&audits).Error; err != nil {
		return nil, err
	}
	return audits, nil
}
