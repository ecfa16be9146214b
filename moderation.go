package portal

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Feedback moderation statuses.
const (
	ModerationPending  = "pending"
	ModerationApproved = "approved"
	ModerationRejected = "rejected"
	ModerationFlagged  = "flagged"
)

// Moderation actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionFlag    = "flag"
	ActionReopen  = "reopen"
)

// ReasonOther requires a non-empty custom reason.
const ReasonOther = "other"

// moderationReasons is the closed enumeration of reason codes.
var moderationReasons = map[string]bool{
	"inappropriate_content": true,
	"spam":                  true,
	"off_topic":             true,
	"personal_attack":       true,
	"false_information":     true,
	"duplicate":             true,
	"incomplete":            true,
	"language_violation":    true,
	ReasonOther:             true,
}

// PrivilegeModerate gates all moderation transitions.
const PrivilegeModerate = "feedback.moderate"

// ModerationInput carries the optional fields a transition may require.
// IdempotencyKey, when supplied by the client, makes a retried action
// return the stored outcome instead of appending a duplicate audit event.
type ModerationInput struct {
	Reason         string `json:"reason,omitempty"`
	CustomReason   string `json:"custom_reason,omitempty"`
	Notes          string `json:"notes,omitempty"`
	Justification  string `json:"justification,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ModerationCounts aggregates feedback counts by status.
type ModerationCounts struct {
	PendingCount  int64 `json:"pending_count"`
	ApprovedCount int64 `json:"approved_count"`
	RejectedCount int64 `json:"rejected_count"`
	FlaggedCount  int64 `json:"flagged_count"`
}

// ListQuery is the paginated feedback queue query.
type ListQuery struct {
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Status string `json:"moderation_status,omitempty"`
	Search string `json:"search,omitempty"`
}

// Pagination describes a result page.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// FeedbackPage is one page of the moderation queue.
type FeedbackPage struct {
	Items      []Feedback `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// validateModerationTransition checks the transition table. It returns the
// target status, or an error with no state touched: validation always
// precedes any write.
func validateModerationTransition(from, action string, in ModerationInput) (string, error) {
	switch action {
	case ActionApprove:
		if from != ModerationPending && from != ModerationFlagged {
			return "", &ConflictError{Action: action, FromState: from}
		}
		return ModerationApproved, nil

	case ActionReject:
		if from != ModerationPending && from != ModerationFlagged {
			return "", &ConflictError{Action: action, FromState: from}
		}
		if err := validateReason(in); err != nil {
			return "", err
		}
		return ModerationRejected, nil

	case ActionFlag:
		if from != ModerationPending {
			return "", &ConflictError{Action: action, FromState: from}
		}
		if err := validateReason(in); err != nil {
			return "", err
		}
		return ModerationFlagged, nil

	case ActionReopen:
		switch from {
		case ModerationFlagged:
			// Justification optional when reopening a flagged item.
			return ModerationPending, nil
		case ModerationRejected:
			// Rejection is policy-permanent; reopening demands justification.
			if strings.TrimSpace(in.Justification) == "" {
				return "", &ValidationError{Field: "justification", Message: "reopening a rejected item requires a justification"}
			}
			return ModerationPending, nil
		default:
			return "", &ConflictError{Action: action, FromState: from}
		}

	default:
		return "", &ValidationError{Field: "action", Message: "unknown moderation action " + action}
	}
}

func validateReason(in ModerationInput) error {
	if in.Reason == "" {
		return &ValidationError{Field: "reason", Message: "a reason code is required"}
	}
	if !moderationReasons[in.Reason] {
		return &ValidationError{Field: "reason", Message: "unknown reason code " + in.Reason}
	}
	if in.Reason == ReasonOther && strings.TrimSpace(in.CustomReason) == "" {
		return &ValidationError{Field: "custom_reason", Message: "reason \"other\" requires a custom reason"}
	}
	return nil
}

// SubmitFeedback records a citizen submission in the pending state.
func (s *Service) SubmitFeedback(ctx context.Context, fb *Feedback) error {
	if strings.TrimSpace(fb.Message) == "" {
		return &ValidationError{Field: "message", Message: "feedback message is required"}
	}

	fb.ModerationStatus = ModerationPending
	fb.ModerationReason = ""
	fb.CustomReason = ""
	if err := s.db.WithContext(ctx).Create(fb).Error; err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

// GetFeedback retrieves a feedback item by ID.
func (s *Service) GetFeedback(ctx context.Context, id uint) (*Feedback, error) {
	var fb Feedback
	if err := s.db.WithContext(ctx).First(&fb, id).Error; err != nil {
		return nil, &NotFoundError{Resource: "feedback", ID: id}
	}
	return &fb, nil
}

// ApproveFeedback transitions a pending or flagged item to approved.
func (s *Service) ApproveFeedback(ctx context.Context, id uint, actor Identity, in ModerationInput) (*Feedback, error) {
	return s.applyModeration(ctx, id, ActionApprove, actor, in)
}

// RejectFeedback transitions a pending or flagged item to rejected. A
// reason code is mandatory.
func (s *Service) RejectFeedback(ctx context.Context, id uint, actor Identity, in ModerationInput) (*Feedback, error) {
	return s.applyModeration(ctx, id, ActionReject, actor, in)
}

// FlagFeedback marks a pending item for further review. A reason code is
// mandatory.
func (s *Service) FlagFeedback(ctx context.Context, id uint, actor Identity, in ModerationInput) (*Feedback, error) {
	return s.applyModeration(ctx, id, ActionFlag, actor, in)
}

// ReopenFeedback returns a flagged or rejected item to pending. Reopening
// a rejected item requires a non-empty justification.
func (s *Service) ReopenFeedback(ctx context.Context, id uint, actor Identity, in ModerationInput) (*Feedback, error) {
	return s.applyModeration(ctx, id, ActionReopen, actor, in)
}

func (s *Service) applyModeration(ctx context.Context, id uint, action string, actor Identity, in ModerationInput) (*Feedback, error) {
	if !s.HasPrivilege(ctx, actor, PrivilegeModerate) {
		return nil, &AuthorizationError{}
	}

	if in.IdempotencyKey != "" {
		// The key is scoped to (item, action): the same key sent against a
		// different item or action is a fresh request, never a replay of
		// another item's outcome.
		var prior ModerationEvent
		err := s.db.WithContext(ctx).
			Where("feedback_id = ? AND action = ? AND idempotency_key = ?", id, action, in.IdempotencyKey).
			First(&prior).Error
		if err == nil {
			return s.GetFeedback(ctx, prior.FeedbackID)
		}
	}

	var fb Feedback
	if err := s.db.WithContext(ctx).First(&fb, id).Error; err != nil {
		return nil, &NotFoundError{Resource: "feedback", ID: id}
	}

	target, err := validateModerationTransition(fb.ModerationStatus, action, in)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	from := fb.ModerationStatus
	key := in.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fb.ModerationStatus = target
		fb.ModeratedBy = &actor.UserID
		fb.ModeratedAt = &now
		switch action {
		case ActionReject, ActionFlag:
			fb.ModerationReason = in.Reason
			fb.CustomReason = in.CustomReason
		case ActionReopen:
			// Reason fields reset for the fresh review; the prior values
			// stay retrievable in the event history.
			fb.ModerationReason = ""
			fb.CustomReason = ""
		}
		if in.Notes != "" {
			fb.ModeratorNotes = in.Notes
		}
		if err := tx.Save(&fb).Error; err != nil {
			return err
		}

		event := &ModerationEvent{
			FeedbackID:     fb.ID,
			Action:         action,
			FromStatus:     from,
			ToStatus:       target,
			Reason:         in.Reason,
			CustomReason:   in.CustomReason,
			Notes:          in.Notes,
			Justification:  in.Justification,
			ActorID:        actor.UserID,
			IdempotencyKey: key,
			CreatedAt:      now,
		}
		return tx.Create(event).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply moderation %s: %w", action, err)
	}

	s.logAudit(ctx, actor.UserID, "moderate_"+action, "feedback", fb.ID,
		fmt.Sprintf("%s -> %s", from, target))
	return &fb, nil
}

// FeedbackHistory returns the append-only moderation trail for an item,
// oldest first.
func (s *Service) FeedbackHistory(ctx context.Context, id uint) ([]ModerationEvent, error) {
	var events []ModerationEvent
	err := s.db.WithContext(ctx).
		Where("feedback_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch moderation history: %w", err)
	}
	return events, nil
}

// ListFeedback returns one page of the moderation queue, optionally
// filtered by status and a message/author search term.
func (s *Service) ListFeedback(ctx context.Context, q ListQuery) (*FeedbackPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Status != "" && q.Status != ModerationPending && q.Status != ModerationApproved &&
		q.Status != ModerationRejected && q.Status != ModerationFlagged {
		return nil, &ValidationError{Field: "moderation_status", Message: "unknown status " + q.Status}
	}

	query := s.db.WithContext(ctx).Model(&Feedback{})
	if q.Status != "" {
		query = query.Where("moderation_status = ?", q.Status)
	}
	if q.Search != "" {
		like := "%" + q.Search + "%"
		query = query.Where("message LIKE ? OR author_name LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count feedback: %w", err)
	}

	var items []Feedback
	err := query.Order("created_at DESC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}

	return &FeedbackPage{
		Items: items,
		Pagination: Pagination{
			Page:       q.Page,
			Limit:      q.Limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(q.Limit))),
		},
	}, nil
}

// ModerationStats aggregates feedback counts by status.
func (s *Service) ModerationStats(ctx context.Context) (*ModerationCounts, error) {
	type row struct {
		ModerationStatus string
		N                int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&Feedback{}).
		Select("moderation_status, count(*) as n").
		Group("moderation_status").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate moderation stats: %w", err)
	}

	counts := &ModerationCounts{}
	for _, r := range rows {
		switch r.ModerationStatus {
		case ModerationPending:
			counts.PendingCount = r.N
		case ModerationApproved:
			counts.ApprovedCount = r.N
		case ModerationRejected:
			counts.RejectedCount = r.N
		case ModerationFlagged:
			counts.FlaggedCount = r.N
		}
	}
	return counts, nil
}
