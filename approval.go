package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Content kinds governed by the approval lifecycle.
const (
	KindProject         = "project"
	KindCountyProject   = "county_project"
	KindCitizenProposal = "citizen_proposal"
	KindAnnouncement    = "announcement"
)

var contentKinds = map[string]bool{
	KindProject:         true,
	KindCountyProject:   true,
	KindCitizenProposal: true,
	KindAnnouncement:    true,
}

// Content approval states, derived from the two visibility flags.
const (
	ContentPending           = "pending"
	ContentApproved          = "approved"
	ContentRevisionRequested = "revision_requested"
)

// PrivilegeApproveContent gates all approval transitions.
const PrivilegeApproveContent = "content.approve"

// ContentState derives the lifecycle state from the normalized flags.
// The flags are mutually exclusive; approved wins if legacy data carries
// both, since approval is the stronger claim about public visibility.
func ContentState(item *ContentItem) string {
	if item.ApprovedForPublic.Bool() {
		return ContentApproved
	}
	if item.RevisionRequested.Bool() {
		return ContentRevisionRequested
	}
	return ContentPending
}

// GetContentItem retrieves a content item by ID.
func (s *Service) GetContentItem(ctx context.Context, id uint) (*ContentItem, error) {
	var item ContentItem
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, &NotFoundError{Resource: "content item", ID: id}
	}
	return &item, nil
}

// CreateContentItem registers a content item in the pending state.
func (s *Service) CreateContentItem(ctx context.Context, item *ContentItem) error {
	if !contentKinds[item.Kind] {
		return &ValidationError{Field: "kind", Message: "unknown content kind " + item.Kind}
	}

	item.ApprovedForPublic = false
	item.RevisionRequested = false
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("failed to create content item: %w", err)
	}
	return nil
}

// ApproveContent makes a pending or revision-requested item publicly
// visible, clearing the revision flag and stamping the approver.
func (s *Service) ApproveContent(ctx context.Context, id uint, actor Identity) (*ContentItem, error) {
	if !s.HasPrivilege(ctx, actor, PrivilegeApproveContent) {
		return nil, &AuthorizationError{}
	}

	item, err := s.GetContentItem(ctx, id)
	if err != nil {
		return nil, err
	}

	state := ContentState(item)
	if state == ContentApproved {
		return nil, &ConflictError{Action: "approve", FromState: state}
	}

	now := time.Now()
	item.ApprovedForPublic = true
	item.RevisionRequested = false
	item.ApprovedBy = &actor.UserID
	item.ApprovedAt = &now

	if err := s.db.WithContext(ctx).Save(item).Error; err != nil {
		return nil, fmt.Errorf("failed to approve content: %w", err)
	}

	s.logAudit(ctx, actor.UserID, "approve_content", item.Kind, item.ID, state+" -> approved")
	return item, nil
}

// RequestContentRevision sends a pending item back to its author. Revision
// notes are mandatory; the approval flag is cleared.
func (s *Service) RequestContentRevision(ctx context.Context, id uint, actor Identity, notes string) (*ContentItem, error) {
	if !s.HasPrivilege(ctx, actor, PrivilegeApproveContent) {
		return nil, &AuthorizationError{}
	}
	if strings.TrimSpace(notes) == "" {
		return nil, &ValidationError{Field: "revision_notes", Message: "revision notes are required"}
	}

	item, err := s.GetContentItem(ctx, id)
	if err != nil {
		return nil, err
	}

	state := ContentState(item)
	if state != ContentPending {
		return nil, &ConflictError{Action: "request_revision", FromState: state}
	}

	now := time.Now()
	item.RevisionRequested = true
	item.ApprovedForPublic = false
	item.RevisionNotes = notes
	item.RevisionRequestedBy = &actor.UserID
	item.RevisionRequestedAt = &now

	if err := s.db.WithContext(ctx).Save(item).Error; err != nil {
		return nil, fmt.Errorf("failed to request revision: %w", err)
	}

	s.logAudit(ctx, actor.UserID, "request_revision", item.Kind, item.ID, "pending -> revision_requested")
	return item, nil
}

// RevokeContent withdraws an approved item from public view, returning it
// to pending.
func (s *Service) RevokeContent(ctx context.Context, id uint, actor Identity) (*ContentItem, error) {
	if !s.HasPrivilege(ctx, actor, PrivilegeApproveContent) {
		return nil, &AuthorizationError{}
	}

	item, err := s.GetContentItem(ctx, id)
	if err != nil {
		return nil, err
	}

	state := ContentState(item)
	if state != ContentApproved {
		return nil, &ConflictError{Action: "revoke", FromState: state}
	}

	item.ApprovedForPublic = false
	item.ApprovedBy = nil
	item.ApprovedAt = nil

	if err := s.db.WithContext(ctx).Save(item).Error; err != nil {
		return nil, fmt.Errorf("failed to revoke content: %w", err)
	}

	s.logAudit(ctx, actor.UserID, "revoke_content", item.Kind, item.ID, "approved -> pending")
	return item, nil
}

// RejectContentRevision closes a revision-requested item without
// publishing it. The item returns to pending with its notes kept.
func (s *Service) RejectContentRevision(ctx context.Context, id uint, actor Identity) (*ContentItem, error) {
	if !s.HasPrivilege(ctx, actor, PrivilegeApproveContent) {
		return nil, &AuthorizationError{}
	}

	item, err := s.GetContentItem(ctx, id)
	if err != nil {
		return nil, err
	}

	state := ContentState(item)
	if state != ContentRevisionRequested {
		return nil, &ConflictError{Action: "reject", FromState: state}
	}

	item.RevisionRequested = false

	if err := s.db.WithContext(ctx).Save(item).Error; err != nil {
		return nil, fmt.Errorf("failed to reject revision: %w", err)
	}

	s.logAudit(ctx, actor.UserID, "reject_revision", item.Kind, item.ID, "revision_requested -> pending")
	return item, nil
}

// ListContentQueue returns content items, optionally filtered by kind and
// lifecycle state, newest first.
func (s *Service) ListContentQueue(ctx context.Context, kind, state string) ([]ContentItem, error) {
	if kind != "" && !contentKinds[kind] {
		return nil, &ValidationError{Field: "kind", Message: "unknown content kind " + kind}
	}

	if state != "" && state != ContentPending && state != ContentApproved && state != ContentRevisionRequested {
		return nil, &ValidationError{Field: "state", Message: "unknown content state " + state}
	}

	query := s.db.WithContext(ctx).Order("created_at DESC")
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var items []ContentItem
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list content queue: %w", err)
	}
	if state == "" {
		return items, nil
	}

	// State is derived after scanning, not compared in SQL: legacy rows
	// store the flags as text or numbers, which boolean column predicates
	// would misclassify.
	filtered := make([]ContentItem, 0, len(items))
	for i := range items {
		if ContentState(&items[i]) == state {
			filtered = append(filtered, items[i])
		}
	}
	return filtered, nil
}

// ApprovePhoto approves a single project photo. Photo approval is a
// parallel boolean, independent of the project's own content state.
func (s *Service) ApprovePhoto(ctx context.Context, id uint, actor Identity) (*ProjectPhoto, error) {
	return s.setPhotoApproval(ctx, id, actor, true)
}

// RevokePhoto withdraws a photo's approval.
func (s *Service) RevokePhoto(ctx context.Context, id uint, actor Identity) (*ProjectPhoto, error) {
	return s.setPhotoApproval(ctx, id, actor, false)
}

func (s *Service) setPhotoApproval(ctx context.Context, id uint, actor Identity, approved bool) (*ProjectPhoto, error) {
	if !s.HasPrivilege(ctx, actor, PrivilegeApproveContent) {
		return nil, &AuthorizationError{}
	}

	var photo ProjectPhoto
	if err := s.db.WithContext(ctx).First(&photo, id).Error; err != nil {
		return nil, &NotFoundError{Resource: "project photo", ID: id}
	}

	if photo.Approved.Bool() == approved {
		action := "approve"
		if !approved {
			action = "revoke"
		}
		return nil, &ConflictError{Action: action, FromState: photoState(photo.Approved.Bool())}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		photo.Approved = LegacyBool(approved)
		if approved {
			now := time.Now()
			photo.ApprovedBy = &actor.UserID
			photo.ApprovedAt = &now
		} else {
			photo.ApprovedBy = nil
			photo.ApprovedAt = nil
		}
		return tx.Save(&photo).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update photo approval: %w", err)
	}

	action := "approve_photo"
	if !approved {
		action = "revoke_photo"
	}
	s.logAudit(ctx, actor.UserID, action, "project_photo", photo.ID, "")
	return &photo, nil
}

func photoState(approved bool) string {
	if approved {
		return ContentApproved
	}
	return ContentPending
}
