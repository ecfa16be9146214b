package portal

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitTestFeedback(t *testing.T, svc *Service, message string) *Feedback {
	t.Helper()
	fb := &Feedback{AuthorName: "Jane Citizen", Message: message}
	require.NoError(t, svc.SubmitFeedback(context.Background(), fb))
	return fb
}

func TestSubmitFeedbackStartsPending(t *testing.T) {
	svc := newTestService(t)
	fb := submitTestFeedback(t, svc, "Street lights are out on Market Road")

	assert.Equal(t, ModerationPending, fb.ModerationStatus)

	require.Error(t, svc.SubmitFeedback(context.Background(), &Feedback{Message: "   "}))
}

func TestApproveFeedback(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fb := submitTestFeedback(t, svc, "Great new market stalls")

	updated, err := svc.ApproveFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{})
	require.NoError(t, err)
	assert.Equal(t, ModerationApproved, updated.ModerationStatus)
	require.NotNil(t, updated.ModeratedBy)
	assert.Equal(t, uint(1), *updated.ModeratedBy)
	assert.NotNil(t, updated.ModeratedAt)
}

func TestRejectRequiresReason(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fb := submitTestFeedback(t, svc, "Offensive rant")

	_, err := svc.RejectFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Failed validation must leave the record untouched.
	current, err := svc.GetFeedback(ctx, fb.ID)
	require.NoError(t, err)
	assert.Equal(t, ModerationPending, current.ModerationStatus)

	_, err = svc.RejectFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Reason: "not_a_reason"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	updated, err := svc.RejectFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Reason: "personal_attack"})
	require.NoError(t, err)
	assert.Equal(t, ModerationRejected, updated.ModerationStatus)
	assert.Equal(t, "personal_attack", updated.ModerationReason)
}

func TestReasonOtherRequiresCustomReason(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fb := submitTestFeedback(t, svc, "Something odd")

	_, err := svc.FlagFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Reason: ReasonOther})
	assert.ErrorIs(t, err, ErrInvalidInput)

	updated, err := svc.FlagFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{
		Reason:       ReasonOther,
		CustomReason: "possible impersonation of a county officer",
	})
	require.NoError(t, err)
	assert.Equal(t, ModerationFlagged, updated.ModerationStatus)
}

func TestApproveFromFlagged(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fb := submitTestFeedback(t, svc, "Needs another look")

	_, err := svc.FlagFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Reason: "incomplete"})
	require.NoError(t, err)

	updated, err := svc.ApproveFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{})
	require.NoError(t, err)
	assert.Equal(t, ModerationApproved, updated.ModerationStatus)
}

func TestApproveIsTerminal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fb := submitTestFeedback(t, svc, "All good here")

	_, err := svc.ApproveFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{})
	require.NoError(t, err)

	_, err = svc.RejectFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Reason: "spam"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.ReopenFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Justification: "oops"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestReopenRejectedRequiresJustification(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fb := submitTestFeedback(t, svc, "Contested complaint")

	// pending -> flagged -> rejected -> reopen(no justification) fails ->
	// reopen(justified) -> pending. The full lifecycle walk.
	flagged, err := svc.FlagFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Reason: "spam"})
	require.NoError(t, err)
	assert.Equal(t, ModerationFlagged, flagged.ModerationStatus)

	rejected, err := svc.RejectFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Reason: "spam"})
	require.NoError(t, err)
	assert.Equal(t, ModerationRejected, rejected.ModerationStatus)

	_, err = svc.ReopenFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	current, err := svc.GetFeedback(ctx, fb.ID)
	require.NoError(t, err)
	assert.Equal(t, ModerationRejected, current.ModerationStatus)

	_, err = svc.ReopenFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Justification: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	reopened, err := svc.ReopenFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Justification: "new evidence"})
	require.NoError(t, err)
	assert.Equal(t, ModerationPending, reopened.ModerationStatus)
	assert.Empty(t, reopened.ModerationReason)
}

func TestReopenFlaggedJustificationOptional(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fb := submitTestFeedback(t, svc, "Maybe fine after all")

	_, err := svc.FlagFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Reason: "off_topic"})
	require.NoError(t, err)

	reopened, err := svc.ReopenFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{})
	require.NoError(t, err)
	assert.Equal(t, ModerationPending, reopened.ModerationStatus)
}

func TestModerationRequiresPrivilege(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fb := submitTestFeedback(t, svc, "Scoped out")

	nobody := Identity{UserID: 42, Role: "citizen"}
	_, err := svc.ApproveFeedback(ctx, fb.ID, nobody, ModerationInput{})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// The error message must not explain why.
	assert.Equal(t, "permission denied", err.Error())
}

func TestModerationHistoryAppends(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fb := submitTestFeedback(t, svc, "History matters")

	_, err := svc.FlagFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Reason: "duplicate", Notes: "looks copied"})
	require.NoError(t, err)
	_, err = svc.RejectFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Reason: "duplicate"})
	require.NoError(t, err)
	_, err = svc.ReopenFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{Justification: "original deleted"})
	require.NoError(t, err)

	events, err := svc.FeedbackHistory(ctx, fb.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, ActionFlag, events[0].Action)
	assert.Equal(t, "looks copied", events[0].Notes)
	assert.Equal(t, ActionReject, events[1].Action)
	assert.Equal(t, ActionReopen, events[2].Action)
	assert.Equal(t, "original deleted", events[2].Justification)

	// Prior reason survives in history even though the record was reset
	// on reopen.
	assert.Equal(t, "duplicate", events[1].Reason)
	current, err := svc.GetFeedback(ctx, fb.ID)
	require.NoError(t, err)
	assert.Empty(t, current.ModerationReason)
}

func TestModerationIdempotencyKey(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fb := submitTestFeedback(t, svc, "Retry storm")

	in := ModerationInput{Reason: "spam", IdempotencyKey: "client-key-1"}
	first, err := svc.RejectFeedback(ctx, fb.ID, adminIdentity(), in)
	require.NoError(t, err)
	assert.Equal(t, ModerationRejected, first.ModerationStatus)

	// Retrying the same action returns the stored outcome and appends no
	// second event.
	second, err := svc.RejectFeedback(ctx, fb.ID, adminIdentity(), in)
	require.NoError(t, err)
	assert.Equal(t, ModerationRejected, second.ModerationStatus)

	events, err := svc.FeedbackHistory(ctx, fb.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestIdempotencyKeyScopedToItemAndAction(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a := submitTestFeedback(t, svc, "first report")
	b := submitTestFeedback(t, svc, "second report")

	in := ModerationInput{Reason: "spam", IdempotencyKey: "shared-key"}
	_, err := svc.RejectFeedback(ctx, a.ID, adminIdentity(), in)
	require.NoError(t, err)

	// The same key sent against a different item must not replay the
	// first item's outcome; the second item gets its own transition.
	rejected, err := svc.RejectFeedback(ctx, b.ID, adminIdentity(), in)
	require.NoError(t, err)
	assert.Equal(t, b.ID, rejected.ID)
	assert.Equal(t, ModerationRejected, rejected.ModerationStatus)

	// A different action on the same item is not short-circuited either.
	reopened, err := svc.ReopenFeedback(ctx, a.ID, adminIdentity(), ModerationInput{
		Justification:  "appeal upheld",
		IdempotencyKey: "shared-key",
	})
	require.NoError(t, err)
	assert.Equal(t, ModerationPending, reopened.ModerationStatus)

	eventsA, err := svc.FeedbackHistory(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, eventsA, 2)
	eventsB, err := svc.FeedbackHistory(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, eventsB, 1)
}

func TestListFeedbackPagination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		submitTestFeedback(t, svc, fmt.Sprintf("feedback number %d", i))
	}
	fb := submitTestFeedback(t, svc, "needle in the stack")
	_, err := svc.ApproveFeedback(ctx, fb.ID, adminIdentity(), ModerationInput{})
	require.NoError(t, err)

	page, err := svc.ListFeedback(ctx, ListQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
	assert.Equal(t, int64(26), page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.TotalPages)

	pending, err := svc.ListFeedback(ctx, ListQuery{Page: 1, Limit: 50, Status: ModerationPending})
	require.NoError(t, err)
	assert.Len(t, pending.Items, 25)

	found, err := svc.ListFeedback(ctx, ListQuery{Page: 1, Limit: 10, Search: "needle"})
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, fb.ID, found.Items[0].ID)

	_, err = svc.ListFeedback(ctx, ListQuery{Status: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestModerationStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a := submitTestFeedback(t, svc, "one")
	b := submitTestFeedback(t, svc, "two")
	submitTestFeedback(t, svc, "three")

	_, err := svc.ApproveFeedback(ctx, a.ID, adminIdentity(), ModerationInput{})
	require.NoError(t, err)
	_, err = svc.FlagFeedback(ctx, b.ID, adminIdentity(), ModerationInput{Reason: "spam"})
	require.NoError(t, err)

	counts, err := svc.ModerationStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.PendingCount)
	assert.Equal(t, int64(1), counts.ApprovedCount)
	assert.Equal(t, int64(1), counts.FlaggedCount)
	assert.Equal(t, int64(0), counts.RejectedCount)
}
