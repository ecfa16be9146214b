package portal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDashboardBase(t *testing.T) {
	svc := newTestService(t)

	layout, err := svc.ResolveDashboard(context.Background(), AdminRole)
	require.NoError(t, err)

	assert.Equal(t, AdminRole, layout.Role)
	assert.Equal(t, []string{"overview", "projects", "moderation", "approvals", "users"}, layout.Tabs)
	assert.Equal(t, []string{"stats_cards", "budget_chart", "recent_activity"}, layout.ComponentsByTab["overview"])
}

func TestResolveDashboardUnknownRoleFallsBack(t *testing.T) {
	svc := newTestService(t)

	layout, err := svc.ResolveDashboard(context.Background(), "no_such_role")
	require.NoError(t, err)

	// Unknown roles resolve to the lowest-privilege dashboard so every
	// authenticated user sees something.
	assert.Equal(t, FallbackRole, layout.Role)
	assert.Equal(t, []string{"overview", "my_projects"}, layout.Tabs)
}

func TestSaveDashboardOverrideReplacesComponentList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// The override is total: the saved list replaces the base wholesale,
	// including dropping the required stats_cards component (required is
	// advisory for the editing UI, not enforced here).
	require.NoError(t, svc.SaveDashboardOverride(ctx, AdminRole, "overview", []string{"budget_chart"}, 1))

	layout, err := svc.ResolveDashboard(ctx, AdminRole)
	require.NoError(t, err)
	assert.Equal(t, []string{"budget_chart"}, layout.ComponentsByTab["overview"])

	// Other tabs keep their base lists.
	assert.Equal(t, []string{"project_table", "project_form"}, layout.ComponentsByTab["projects"])

	// Saving again overwrites the previous override, not appends.
	require.NoError(t, svc.SaveDashboardOverride(ctx, AdminRole, "overview", []string{"stats_cards"}, 1))
	layout, err = svc.ResolveDashboard(ctx, AdminRole)
	require.NoError(t, err)
	assert.Equal(t, []string{"stats_cards"}, layout.ComponentsByTab["overview"])
}

func TestSaveDashboardOverrideUnknownTab(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	err := svc.SaveDashboardOverride(ctx, AdminRole, "payroll", []string{"x"}, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = svc.SaveDashboardOverride(ctx, "no_such_role", "overview", []string{"x"}, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveDashboardNeverInventsTabs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SaveDashboardOverride(ctx, "project_manager", "moderation", []string{"feedback_queue", "moderation_stats"}, 1))

	layout, err := svc.ResolveDashboard(ctx, "project_manager")
	require.NoError(t, err)

	baseTabs := map[string]bool{}
	for _, tab := range BaseDashboard("project_manager") {
		baseTabs[tab.Key] = true
	}
	for _, tab := range layout.Tabs {
		assert.True(t, baseTabs[tab], "tab %s not declared for role", tab)
	}
}

func TestDeleteDashboardOverrideRestoresBase(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.SaveDashboardOverride(ctx, AdminRole, "overview", []string{"budget_chart"}, 1))
	require.NoError(t, svc.DeleteDashboardOverride(ctx, AdminRole, "overview", 1))

	layout, err := svc.ResolveDashboard(ctx, AdminRole)
	require.NoError(t, err)
	assert.Equal(t, []string{"stats_cards", "budget_chart", "recent_activity"}, layout.ComponentsByTab["overview"])

	assert.ErrorIs(t, svc.DeleteDashboardOverride(ctx, AdminRole, "overview", 1), ErrNotFound)
}

func TestResolveDashboardCacheInvalidatedOnOverrideWrite(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Prime the cache.
	_, err := svc.ResolveDashboard(ctx, AdminRole)
	require.NoError(t, err)

	require.NoError(t, svc.SaveDashboardOverride(ctx, AdminRole, "overview", []string{"budget_chart"}, 1))

	layout, err := svc.ResolveDashboard(ctx, AdminRole)
	require.NoError(t, err)
	assert.Equal(t, []string{"budget_chart"}, layout.ComponentsByTab["overview"])
}

func TestResolveDashboardExcludesInactiveDeclarations(t *testing.T) {
	svc := newTestService(t)

	layout, err := svc.ResolveDashboard(context.Background(), AdminRole)
	require.NoError(t, err)

	// Deactivated tabs and components never resolve.
	assert.NotContains(t, layout.Tabs, "reports")
	assert.NotContains(t, layout.ComponentsByTab["overview"], "legacy_exports")

	// The editing surface still sees the deactivated declarations.
	var inactiveTab, inactiveComponent bool
	for _, tab := range BaseDashboard(AdminRole) {
		if tab.Key == "reports" {
			inactiveTab = true
			assert.False(t, tab.Active)
		}
		if tab.Key == "overview" {
			for _, c := range tab.Components {
				if c.Key == "legacy_exports" {
					inactiveComponent = true
					assert.False(t, c.Active)
				}
			}
		}
	}
	assert.True(t, inactiveTab)
	assert.True(t, inactiveComponent)
}

func TestSaveDashboardOverrideInactiveTab(t *testing.T) {
	svc := newTestService(t)

	err := svc.SaveDashboardOverride(context.Background(), AdminRole, "reports", []string{"report_table"}, 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBaseDashboardExposesRequiredFlags(t *testing.T) {
	tabs := BaseDashboard(AdminRole)
	require.NotEmpty(t, tabs)

	var statsCard *ComponentDecl
	for _, tab := range tabs {
		if tab.Key != "overview" {
			continue
		}
		for i := range tab.Components {
			if tab.Components[i].Key == "stats_cards" {
				statsCard = &tab.Components[i]
			}
		}
	}
	require.NotNil(t, statsCard)
	assert.True(t, statsCard.Required)
}
