package portal

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ComponentDecl declares a dashboard component within a tab. Required is
// advisory metadata for the editing surface: the editor hides the delete
// action for required components, but the resolver does not protect them
// from override removal. Deactivated components stay declared for the
// editing surface but are withheld from resolution.
type ComponentDecl struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Source   string `json:"source"`
	Required bool   `json:"required"`
	Active   bool   `json:"active"`
}

// TabDecl declares a dashboard tab and its base component list. A
// deactivated tab never resolves, whatever overrides exist for it.
type TabDecl struct {
	Key        string          `json:"key"`
	Name       string          `json:"name"`
	Icon       string          `json:"icon"`
	Order      int             `json:"order"`
	Active     bool            `json:"active"`
	Components []ComponentDecl `json:"components"`
}

// DashboardLayout is the resolved surface for a role: ordered tab keys and
// the effective component keys per tab.
type DashboardLayout struct {
	Role            string              `json:"role"`
	Tabs            []string            `json:"tabs"`
	ComponentsByTab map[string][]string `json:"components_by_tab"`
}

// baseDashboards holds the static per-role declarations. Overrides stored
// in RoleDashboardConfig replace a tab's component list wholesale; they
// never deep-merge with these declarations.
var baseDashboards = map[string][]TabDecl{
	AdminRole: {
		{Key: "overview", Name: "Overview", Icon: "home", Order: 1, Active: true, Components: []ComponentDecl{
			{Key: "stats_cards", Name: "Statistics", Type: "card", Source: "StatsCards", Required: true, Active: true},
			{Key: "budget_chart", Name: "Budget Chart", Type: "chart", Source: "BudgetChart", Active: true},
			{Key: "recent_activity", Name: "Recent Activity", Type: "list", Source: "RecentActivity", Active: true},
			{Key: "legacy_exports", Name: "Legacy Exports", Type: "table", Source: "LegacyExports"},
		}},
		{Key: "projects", Name: "Projects", Icon: "folder", Order: 2, Active: true, Components: []ComponentDecl{
			{Key: "project_table", Name: "Project Table", Type: "table", Source: "ProjectTable", Required: true, Active: true},
			{Key: "project_form", Name: "Project Form", Type: "form", Source: "ProjectForm", Active: true},
		}},
		{Key: "moderation", Name: "Moderation", Icon: "shield", Order: 3, Active: true, Components: []ComponentDecl{
			{Key: "feedback_queue", Name: "Feedback Queue", Type: "table", Source: "FeedbackQueue", Required: true, Active: true},
			{Key: "moderation_stats", Name: "Moderation Stats", Type: "card", Source: "ModerationStats", Active: true},
		}},
		{Key: "approvals", Name: "Approvals", Icon: "check-circle", Order: 4, Active: true, Components: []ComponentDecl{
			{Key: "approval_queue", Name: "Approval Queue", Type: "table", Source: "ApprovalQueue", Required: true, Active: true},
		}},
		{Key: "users", Name: "Users", Icon: "users", Order: 5, Active: true, Components: []ComponentDecl{
			{Key: "user_table", Name: "User Table", Type: "table", Source: "UserTable", Required: true, Active: true},
			{Key: "role_editor", Name: "Role Editor", Type: "form", Source: "RoleEditor", Active: true},
		}},
		{Key: "reports", Name: "Reports", Icon: "bar-chart", Order: 6, Components: []ComponentDecl{
			{Key: "report_table", Name: "Report Table", Type: "table", Source: "ReportTable", Active: true},
		}},
	},
	"project_manager": {
		{Key: "overview", Name: "Overview", Icon: "home", Order: 1, Active: true, Components: []ComponentDecl{
			{Key: "stats_cards", Name: "Statistics", Type: "card", Source: "StatsCards", Required: true, Active: true},
			{Key: "budget_chart", Name: "Budget Chart", Type: "chart", Source: "BudgetChart", Active: true},
		}},
		{Key: "projects", Name: "Projects", Icon: "folder", Order: 2, Active: true, Components: []ComponentDecl{
			{Key: "project_table", Name: "Project Table", Type: "table", Source: "ProjectTable", Required: true, Active: true},
			{Key: "project_form", Name: "Project Form", Type: "form", Source: "ProjectForm", Active: true},
		}},
		{Key: "moderation", Name: "Moderation", Icon: "shield", Order: 3, Active: true, Components: []ComponentDecl{
			{Key: "feedback_queue", Name: "Feedback Queue", Type: "table", Source: "FeedbackQueue", Required: true, Active: true},
		}},
	},
	"department_officer": {
		{Key: "overview", Name: "Overview", Icon: "home", Order: 1, Active: true, Components: []ComponentDecl{
			{Key: "stats_cards", Name: "Statistics", Type: "card", Source: "StatsCards", Required: true, Active: true},
		}},
		{Key: "projects", Name: "Projects", Icon: "folder", Order: 2, Active: true, Components: []ComponentDecl{
			{Key: "project_table", Name: "Project Table", Type: "table", Source: "ProjectTable", Required: true, Active: true},
		}},
	},
	FallbackRole: {
		{Key: "overview", Name: "Overview", Icon: "home", Order: 1, Active: true, Components: []ComponentDecl{
			{Key: "stats_cards", Name: "Statistics", Type: "card", Source: "StatsCards", Required: true, Active: true},
		}},
		{Key: "my_projects", Name: "My Projects", Icon: "folder", Order: 2, Active: true, Components: []ComponentDecl{
			{Key: "project_table", Name: "Project Table", Type: "table", Source: "ProjectTable", Required: true, Active: true},
		}},
	},
}

// baseDashboardFor returns the static declaration for a role. An unknown
// role falls back to the lowest-privilege role so every authenticated user
// sees some dashboard (availability over minimal disclosure).
func baseDashboardFor(roleName string) (string, []TabDecl) {
	if tabs, ok := baseDashboards[roleName]; ok {
		return roleName, tabs
	}
	return FallbackRole, baseDashboards[FallbackRole]
}

// ResolveDashboard computes the effective dashboard surface for a role:
// the base declaration with any persisted per-tab overrides applied as full
// component-list replacements.
func (s *Service) ResolveDashboard(ctx context.Context, roleName string) (*DashboardLayout, error) {
	cacheKey := "dashboard:" + roleName
	var cached DashboardLayout
	if s.cacheGetJSON(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	effectiveRole, tabs := baseDashboardFor(roleName)

	var overrides []RoleDashboardConfig
	if err := s.db.WithContext(ctx).Where("role_name = ?", effectiveRole).Find(&overrides).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch dashboard overrides: %w", err)
	}
	overrideByTab := make(map[string][]string, len(overrides))
	for _, o := range overrides {
		overrideByTab[o.TabKey] = o.Components
	}

	layout := &DashboardLayout{
		Role:            effectiveRole,
		Tabs:            make([]string, 0, len(tabs)),
		ComponentsByTab: make(map[string][]string, len(tabs)),
	}
	for _, tab := range tabs {
		if !tab.Active {
			continue
		}
		layout.Tabs = append(layout.Tabs, tab.Key)
		if components, ok := overrideByTab[tab.Key]; ok {
			layout.ComponentsByTab[tab.Key] = components
			continue
		}
		keys := make([]string, 0, len(tab.Components))
		for _, c := range tab.Components {
			if !c.Active {
				continue
			}
			keys = append(keys, c.Key)
		}
		layout.ComponentsByTab[tab.Key] = keys
	}

	s.cacheSetJSON(ctx, cacheKey, layout)
	return layout, nil
}

// SaveDashboardOverride persists the complete component list for a
// (role, tab) pair, replacing any previous override. The tab must exist in
// the role's base declaration; the resolver never surfaces tabs declared
// nowhere.
func (s *Service) SaveDashboardOverride(ctx context.Context, roleName, tabKey string, components []string, actorID uint) error {
	tabs, ok := baseDashboards[roleName]
	if !ok {
		return &NotFoundError{Resource: "role dashboard", ID: 0}
	}

	var decl *TabDecl
	for i := range tabs {
		if tabs[i].Key == tabKey {
			decl = &tabs[i]
			break
		}
	}
	if decl == nil {
		return &ValidationError{Field: "tab", Message: "tab " + tabKey + " is not declared for role " + roleName}
	}
	if !decl.Active {
		return &ValidationError{Field: "tab", Message: "tab " + tabKey + " is not active"}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing RoleDashboardConfig
		result := tx.Where("role_name = ? AND tab_key = ?", roleName, tabKey).First(&existing)
		if result.Error == nil {
			existing.Components = components
			existing.UpdatedBy = actorID
			return tx.Save(&existing).Error
		}
		return tx.Create(&RoleDashboardConfig{
			RoleName:   roleName,
			TabKey:     tabKey,
			Components: components,
			UpdatedBy:  actorID,
		}).Error
	})
	if err != nil {
		s.cacheInvalidate(ctx, "dashboard:"+roleName)
		return fmt.Errorf("failed to save dashboard override: %w", err)
	}

	s.cacheInvalidate(ctx, "dashboard:"+roleName)
	s.logAudit(ctx, actorID, "save_dashboard_override", "role_dashboard_config", 0,
		fmt.Sprintf("Replaced components for %s/%s (%d entries)", roleName, tabKey, len(components)))
	return nil
}

// DeleteDashboardOverride removes an override, restoring the base
// declaration for that tab.
func (s *Service) DeleteDashboardOverride(ctx context.Context, roleName, tabKey string, actorID uint) error {
	result := s.db.WithContext(ctx).
		Where("role_name = ? AND tab_key = ?", roleName, tabKey).
		Delete(&RoleDashboardConfig{})
	if result.Error != nil {
		s.cacheInvalidate(ctx, "dashboard:"+roleName)
		return fmt.Errorf("failed to delete dashboard override: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "dashboard override", ID: 0}
	}

	s.cacheInvalidate(ctx, "dashboard:"+roleName)
	s.logAudit(ctx, actorID, "delete_dashboard_override", "role_dashboard_config", 0,
		fmt.Sprintf("Removed override for %s/%s", roleName, tabKey))
	return nil
}

// BaseDashboard exposes the full static declaration (names, icons, types,
// required flags) for the editing surface.
func BaseDashboard(roleName string) []TabDecl {
	_, tabs := baseDashboardFor(roleName)
	return tabs
}
