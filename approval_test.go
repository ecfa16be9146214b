package portal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestContent(t *testing.T, svc *Service, kind string) *ContentItem {
	t.Helper()
	item := &ContentItem{Kind: kind, Title: "Ward 3 drainage works"}
	require.NoError(t, svc.CreateContentItem(context.Background(), item))
	return item
}

func TestCreateContentItemValidatesKind(t *testing.T) {
	svc := newTestService(t)

	err := svc.CreateContentItem(context.Background(), &ContentItem{Kind: "blog_post"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	for _, kind := range []string{KindProject, KindCountyProject, KindCitizenProposal, KindAnnouncement} {
		item := createTestContent(t, svc, kind)
		assert.Equal(t, ContentPending, ContentState(item))
	}
}

func TestApproveContentClearsRevisionFlag(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	item := createTestContent(t, svc, KindProject)

	_, err := svc.RequestContentRevision(ctx, item.ID, adminIdentity(), "budget figures missing")
	require.NoError(t, err)

	approved, err := svc.ApproveContent(ctx, item.ID, adminIdentity())
	require.NoError(t, err)
	assert.True(t, approved.ApprovedForPublic.Bool())
	assert.False(t, approved.RevisionRequested.Bool())
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, uint(1), *approved.ApprovedBy)
	assert.NotNil(t, approved.ApprovedAt)
}

func TestApproveAlreadyApprovedConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	item := createTestContent(t, svc, KindAnnouncement)

	_, err := svc.ApproveContent(ctx, item.ID, adminIdentity())
	require.NoError(t, err)

	_, err = svc.ApproveContent(ctx, item.ID, adminIdentity())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRequestRevisionRequiresNotes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	item := createTestContent(t, svc, KindCitizenProposal)

	_, err := svc.RequestContentRevision(ctx, item.ID, adminIdentity(), "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	current, err := svc.GetContentItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, ContentPending, ContentState(current))

	revised, err := svc.RequestContentRevision(ctx, item.ID, adminIdentity(), "add ward boundaries")
	require.NoError(t, err)
	assert.True(t, revised.RevisionRequested.Bool())
	assert.False(t, revised.ApprovedForPublic.Bool())
	assert.Equal(t, "add ward boundaries", revised.RevisionNotes)
}

func TestRequestRevisionOnApprovedConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	item := createTestContent(t, svc, KindCountyProject)

	_, err := svc.ApproveContent(ctx, item.ID, adminIdentity())
	require.NoError(t, err)

	_, err = svc.RequestContentRevision(ctx, item.ID, adminIdentity(), "too late")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRevokeContent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	item := createTestContent(t, svc, KindProject)

	_, err := svc.RevokeContent(ctx, item.ID, adminIdentity())
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.ApproveContent(ctx, item.ID, adminIdentity())
	require.NoError(t, err)

	revoked, err := svc.RevokeContent(ctx, item.ID, adminIdentity())
	require.NoError(t, err)
	assert.Equal(t, ContentPending, ContentState(revoked))
	assert.Nil(t, revoked.ApprovedBy)
	assert.Nil(t, revoked.ApprovedAt)
}

func TestRejectContentRevision(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	item := createTestContent(t, svc, KindCitizenProposal)

	_, err := svc.RequestContentRevision(ctx, item.ID, adminIdentity(), "incomplete")
	require.NoError(t, err)

	rejected, err := svc.RejectContentRevision(ctx, item.ID, adminIdentity())
	require.NoError(t, err)
	assert.Equal(t, ContentPending, ContentState(rejected))

	_, err = svc.RejectContentRevision(ctx, item.ID, adminIdentity())
	assert.ErrorIs(t, err, ErrConflict)
}

func TestApprovalRequiresPrivilege(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	item := createTestContent(t, svc, KindProject)

	citizen := Identity{UserID: 5, Role: "citizen"}
	_, err := svc.ApproveContent(ctx, item.ID, citizen)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// Holding the privilege directly (without the admin role) suffices.
	approver := Identity{UserID: 6, Role: "reviewer", Privileges: []string{PrivilegeApproveContent}}
	_, err = svc.ApproveContent(ctx, item.ID, approver)
	require.NoError(t, err)
}

func TestListContentQueue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a := createTestContent(t, svc, KindProject)
	b := createTestContent(t, svc, KindProject)
	createTestContent(t, svc, KindAnnouncement)

	_, err := svc.ApproveContent(ctx, a.ID, adminIdentity())
	require.NoError(t, err)
	_, err = svc.RequestContentRevision(ctx, b.ID, adminIdentity(), "notes")
	require.NoError(t, err)

	approved, err := svc.ListContentQueue(ctx, KindProject, ContentApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, a.ID, approved[0].ID)

	revisions, err := svc.ListContentQueue(ctx, "", ContentRevisionRequested)
	require.NoError(t, err)
	require.Len(t, revisions, 1)
	assert.Equal(t, b.ID, revisions[0].ID)

	pending, err := svc.ListContentQueue(ctx, "", ContentPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = svc.ListContentQueue(ctx, "bogus", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListContentQueueMatchesLegacyFlagEncodings(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item := createTestContent(t, svc, KindProject)
	createTestContent(t, svc, KindProject)

	// Legacy rows carry the flag as text rather than a proper boolean.
	require.NoError(t, svc.db.
		Exec("UPDATE content_items SET approved_for_public = 'true' WHERE id = ?", item.ID).Error)

	approved, err := svc.ListContentQueue(ctx, "", ContentApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, item.ID, approved[0].ID)

	pending, err := svc.ListContentQueue(ctx, "", ContentPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotEqual(t, item.ID, pending[0].ID)
}

func TestPhotoApprovalIndependentOfProjectState(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	photo := &ProjectPhoto{ProjectID: 77, URL: "https://cdn.example/p/1.jpg"}
	require.NoError(t, svc.db.Create(photo).Error)

	approved, err := svc.ApprovePhoto(ctx, photo.ID, adminIdentity())
	require.NoError(t, err)
	assert.True(t, approved.Approved.Bool())
	assert.NotNil(t, approved.ApprovedAt)

	_, err = svc.ApprovePhoto(ctx, photo.ID, adminIdentity())
	assert.ErrorIs(t, err, ErrConflict)

	revoked, err := svc.RevokePhoto(ctx, photo.ID, adminIdentity())
	require.NoError(t, err)
	assert.False(t, revoked.Approved.Bool())
	assert.Nil(t, revoked.ApprovedBy)
}

func TestCoerceBool(t *testing.T) {
	cases := []struct {
		in   interface{}
		want bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{int64(1), true},
		{int64(0), false},
		{float64(1), true},
		{"true", true},
		{"false", false},
		{"1", true},
		{"0", false},
		{"", false},
		{[]byte("1"), true},
	}
	for _, tc := range cases {
		got, err := CoerceBool(tc.in)
		require.NoError(t, err, "input %v", tc.in)
		assert.Equal(t, tc.want, got, "input %v", tc.in)
	}

	_, err := CoerceBool("maybe")
	assert.Error(t, err)
	_, err = CoerceBool(struct{}{})
	assert.Error(t, err)
}

func TestLegacyBoolScan(t *testing.T) {
	var b LegacyBool
	require.NoError(t, b.Scan(int64(1)))
	assert.True(t, b.Bool())

	require.NoError(t, b.Scan(nil))
	assert.False(t, b.Bool())

	require.NoError(t, b.Scan("true"))
	assert.True(t, b.Bool())

	assert.Error(t, b.Scan("garbage"))
}
