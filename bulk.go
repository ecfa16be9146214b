package portal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// BulkFailure reports one item the coordinator dispatched but could not
// transition.
type BulkFailure struct {
	ID    uint   `json:"id"`
	Error string `json:"error"`
}

// BulkResult aggregates a bulk action's per-item outcomes. A partial
// failure never rolls back succeeded items; the system is left in a
// mixed-but-individually-consistent state.
type BulkResult struct {
	Succeeded int           `json:"succeeded"`
	Skipped   []uint        `json:"skipped"`
	Failed    []BulkFailure `json:"failed"`
}

// BulkContentAction applies approve or revoke to a selection of content
// items. Eligibility is computed here, never trusted from the caller: the
// selection is resolved against the items the actor can actually see, and
// items whose current state does not permit the action are skipped, not
// failed. Zero eligible items refuses the action up front.
func (s *Service) BulkContentAction(ctx context.Context, actor Identity, action string, ids []uint) (*BulkResult, error) {
	if action != ActionApprove && action != "revoke" {
		return nil, &ValidationError{Field: "action", Message: "unknown bulk action " + action}
	}
	if len(ids) == 0 {
		return nil, &ValidationError{Field: "item_ids", Message: "at least one item id is required"}
	}
	if !s.HasPrivilege(ctx, actor, PrivilegeApproveContent) {
		return nil, &AuthorizationError{}
	}

	var items []ContentItem
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load selection: %w", err)
	}

	visible, err := s.visibleContent(ctx, actor, items)
	if err != nil {
		return nil, err
	}
	visibleByID := make(map[uint]ContentItem, len(visible))
	for _, item := range visible {
		visibleByID[item.ID] = item
	}

	var eligible []uint
	var skipped []uint
	for _, id := range ids {
		item, ok := visibleByID[id]
		if !ok {
			// Unknown or out-of-scope ids are skipped without detail,
			// not reported as failures.
			skipped = append(skipped, id)
			continue
		}
		state := ContentState(&item)
		if contentActionEligible(action, state) {
			eligible = append(eligible, id)
		} else {
			skipped = append(skipped, id)
		}
	}

	if len(eligible) == 0 {
		return nil, &ValidationError{Field: "item_ids", Message: "no selected items are eligible for " + action}
	}

	result := s.runBulk(ctx, eligible, func(id uint) error {
		var err error
		if action == ActionApprove {
			_, err = s.ApproveContent(ctx, id, actor)
		} else {
			_, err = s.RevokeContent(ctx, id, actor)
		}
		return err
	})
	result.Skipped = skipped

	s.logAudit(ctx, actor.UserID, "bulk_content_"+action, "content_item", 0,
		fmt.Sprintf("%d succeeded, %d skipped, %d failed", result.Succeeded, len(result.Skipped), len(result.Failed)))
	return result, nil
}

func contentActionEligible(action, state string) bool {
	switch action {
	case ActionApprove:
		return state == ContentPending || state == ContentRevisionRequested
	case "revoke":
		return state == ContentApproved
	}
	return false
}

// visibleContent narrows a loaded selection to the items inside the
// actor's scope. Admins and view-all holders see everything.
func (s *Service) visibleContent(ctx context.Context, actor Identity, items []ContentItem) ([]ContentItem, error) {
	records := make([]ProjectRecord, 0, len(items))
	byID := make(map[uint]ContentItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
		records = append(records, ProjectRecord{
			ID:           item.ID,
			DepartmentID: item.DepartmentID,
			WardID:       item.WardID,
			ProjectID:    item.ProjectID,
		})
	}

	filtered, err := s.FilterRecords(ctx, actor, records)
	if err != nil {
		return nil, err
	}

	visible := make([]ContentItem, 0, len(filtered))
	for _, rec := range filtered {
		visible = append(visible, byID[rec.ID])
	}
	return visible, nil
}

// BulkModerationAction applies approve, reject, or flag to a selection of
// feedback items. Reject and flag share one reason code across the batch.
func (s *Service) BulkModerationAction(ctx context.Context, actor Identity, action string, ids []uint, in ModerationInput) (*BulkResult, error) {
	if action != ActionApprove && action != ActionReject && action != ActionFlag {
		return nil, &ValidationError{Field: "action", Message: "unknown bulk action " + action}
	}
	if len(ids) == 0 {
		return nil, &ValidationError{Field: "item_ids", Message: "at least one item id is required"}
	}
	if !s.HasPrivilege(ctx, actor, PrivilegeModerate) {
		return nil, &AuthorizationError{}
	}
	if action == ActionReject || action == ActionFlag {
		if err := validateReason(in); err != nil {
			return nil, err
		}
	}

	var items []Feedback
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load selection: %w", err)
	}
	byID := make(map[uint]Feedback, len(items))
	for _, fb := range items {
		byID[fb.ID] = fb
	}

	var eligible []uint
	var skipped []uint
	for _, id := range ids {
		fb, ok := byID[id]
		if !ok {
			skipped = append(skipped, id)
			continue
		}
		if _, err := validateModerationTransition(fb.ModerationStatus, action, in); err == nil {
			eligible = append(eligible, id)
		} else {
			skipped = append(skipped, id)
		}
	}

	if len(eligible) == 0 {
		return nil, &ValidationError{Field: "item_ids", Message: "no selected items are eligible for " + action}
	}

	result := s.runBulk(ctx, eligible, func(id uint) error {
		// Per-item input: the batch idempotency key cannot be shared
		// between items, so each transition gets its own.
		itemIn := in
		itemIn.IdempotencyKey = ""
		var err error
		switch action {
		case ActionApprove:
			_, err = s.ApproveFeedback(ctx, id, actor, itemIn)
		case ActionReject:
			_, err = s.RejectFeedback(ctx, id, actor, itemIn)
		case ActionFlag:
			_, err = s.FlagFeedback(ctx, id, actor, itemIn)
		}
		return err
	})
	result.Skipped = skipped

	s.logAudit(ctx, actor.UserID, "bulk_moderate_"+action, "feedback", 0,
		fmt.Sprintf("%d succeeded, %d skipped, %d failed", result.Succeeded, len(result.Skipped), len(result.Failed)))
	return result, nil
}

// runBulk dispatches one transition per item across a bounded worker pool.
// Ordering between items is not guaranteed; each item is independently
// consistent and failures do not roll back successes.
func (s *Service) runBulk(ctx context.Context, ids []uint, apply func(id uint) error) *BulkResult {
	workerCount := s.bulkWorkers
	if len(ids) < workerCount {
		workerCount = len(ids)
	}

	jobs := make(chan uint, len(ids))
	failures := make(chan BulkFailure, len(ids))

	var wg sync.WaitGroup
	var succeeded int64
	var mu sync.Mutex

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := apply(id); err != nil {
					failures <- BulkFailure{ID: id, Error: bulkErrorMessage(err)}
					continue
				}
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)

	wg.Wait()
	close(failures)

	result := &BulkResult{Succeeded: int(succeeded)}
	for f := range failures {
		result.Failed = append(result.Failed, f)
	}
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].ID < result.Failed[j].ID })
	return result
}

// bulkErrorMessage keeps authorization failures opaque in per-item results.
func bulkErrorMessage(err error) string {
	if errors.Is(err, ErrPermissionDenied) {
		return "permission denied"
	}
	return err.Error()
}
