package portal

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Ward access levels.
const (
	WardAccessRead  = "read"
	WardAccessWrite = "write"
	WardAccessAdmin = "admin"
)

// Project access levels, ordered by increasing privilege.
const (
	ProjectAccessView   = "view"
	ProjectAccessEdit   = "edit"
	ProjectAccessManage = "manage"
	ProjectAccessAdmin  = "admin"
)

// Data filter types.
const (
	FilterBudgetRange    = "budget_range"
	FilterProgressStatus = "progress_status"
	FilterProjectType    = "project_type"
)

var wardAccessLevels = map[string]bool{
	WardAccessRead:  true,
	WardAccessWrite: true,
	WardAccessAdmin: true,
}

var projectAccessRank = map[string]int{
	ProjectAccessView:   1,
	ProjectAccessEdit:   2,
	ProjectAccessManage: 3,
	ProjectAccessAdmin:  4,
}

// DepartmentScope is a user's access to one department.
type DepartmentScope struct {
	DepartmentID uint `json:"department_id"`
	IsPrimary    bool `json:"is_primary"`
}

// WardScope is a user's access to one ward.
type WardScope struct {
	WardID      uint   `json:"ward_id"`
	AccessLevel string `json:"access_level"`
}

// ProjectScope is a user's access to one project.
type ProjectScope struct {
	ProjectID   uint   `json:"project_id"`
	AccessLevel string `json:"access_level"`
}

// BudgetRange bounds a budget filter, inclusive.
type BudgetRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Filters is the set of active data filters for a user. A nil/empty entry
// means no restriction of that type.
type Filters struct {
	BudgetRange         *BudgetRange `json:"budget_range,omitempty"`
	AllowedStatuses     []string     `json:"allowed_statuses,omitempty"`
	AllowedProjectTypes []string     `json:"allowed_project_types,omitempty"`
}

// ProjectRecord is the scoping view of a data record: the identifiers the
// resolver authorizes against plus the fields data filters inspect. A zero
// identifier means the record has no binding of that kind.
type ProjectRecord struct {
	ID           uint    `json:"id"`
	DepartmentID uint    `json:"department_id"`
	WardID       uint    `json:"ward_id"`
	ProjectID    uint    `json:"project_id"`
	Budget       float64 `json:"budget"`
	Status       string  `json:"status"`
	ProjectType  string  `json:"project_type"`
}

// AccessibleDepartments returns the departments a user may act on.
func (s *Service) AccessibleDepartments(ctx context.Context, userID uint) ([]DepartmentScope, error) {
	var rows []DepartmentAssignment
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch department assignments: %w", err)
	}

	scopes := make([]DepartmentScope, 0, len(rows))
	for _, row := range rows {
		scopes = append(scopes, DepartmentScope{DepartmentID: row.DepartmentID, IsPrimary: row.IsPrimary})
	}
	return scopes, nil
}

// AccessibleWards returns the wards a user may act on.
func (s *Service) AccessibleWards(ctx context.Context, userID uint) ([]WardScope, error) {
	var rows []WardAssignment
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch ward assignments: %w", err)
	}

	scopes := make([]WardScope, 0, len(rows))
	for _, row := range rows {
		scopes = append(scopes, WardScope{WardID: row.WardID, AccessLevel: row.AccessLevel})
	}
	return scopes, nil
}

// AccessibleProjects returns the projects a user may act on.
func (s *Service) AccessibleProjects(ctx context.Context, userID uint) ([]ProjectScope, error) {
	var rows []ProjectAssignment
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch project assignments: %w", err)
	}

	scopes := make([]ProjectScope, 0, len(rows))
	for _, row := range rows {
		scopes = append(scopes, ProjectScope{ProjectID: row.ProjectID, AccessLevel: row.AccessLevel})
	}
	return scopes, nil
}

// ProjectAccessAtLeast reports whether an access level grants at least the
// required one.
func ProjectAccessAtLeast(level, required string) bool {
	return projectAccessRank[level] >= projectAccessRank[required]
}

// ActiveFilters returns the user's active data filters. Absent rows mean
// unrestricted; disabled filters are deleted, never stored as off.
func (s *Service) ActiveFilters(ctx context.Context, userID uint) (*Filters, error) {
	var rows []DataFilter
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch data filters: %w", err)
	}

	filters := &Filters{}
	for _, row := range rows {
		switch row.FilterType {
		case FilterBudgetRange:
			if row.BudgetMin != nil && row.BudgetMax != nil {
				filters.BudgetRange = &BudgetRange{Min: *row.BudgetMin, Max: *row.BudgetMax}
			}
		case FilterProgressStatus:
			filters.AllowedStatuses = row.Values
		case FilterProjectType:
			filters.AllowedProjectTypes = row.Values
		}
	}
	return filters, nil
}

// SetBudgetFilter sets (or replaces) a user's budget range filter.
func (s *Service) SetBudgetFilter(ctx context.Context, userID uint, min, max float64, actorID uint) error {
	if min > max {
		return &ValidationError{Field: "budget_range", Message: "min exceeds max"}
	}
	return s.upsertFilter(ctx, userID, DataFilter{
		UserID: userID, FilterType: FilterBudgetRange, BudgetMin: &min, BudgetMax: &max,
	}, actorID)
}

// SetValueFilter sets (or replaces) a user's progress_status or
// project_type filter.
func (s *Service) SetValueFilter(ctx context.Context, userID uint, filterType string, values []string, actorID uint) error {
	if filterType != FilterProgressStatus && filterType != FilterProjectType {
		return &ValidationError{Field: "filter_type", Message: "unknown filter type " + filterType}
	}
	if len(values) == 0 {
		return &ValidationError{Field: "values", Message: "at least one allowed value is required"}
	}
	return s.upsertFilter(ctx, userID, DataFilter{
		UserID: userID, FilterType: filterType, Values: values,
	}, actorID)
}

// ClearDataFilter removes a filter, restoring unrestricted access of that
// type.
func (s *Service) ClearDataFilter(ctx context.Context, userID uint, filterType string, actorID uint) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND filter_type = ?", userID, filterType).
		Delete(&DataFilter{})
	if result.Error != nil {
		return fmt.Errorf("failed to clear data filter: %w", result.Error)
	}

	s.logAudit(ctx, actorID, "clear_data_filter", "data_filter", userID, "Cleared "+filterType+" filter")
	return nil
}

func (s *Service) upsertFilter(ctx context.Context, userID uint, desired DataFilter, actorID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing DataFilter
		result := tx.Where("user_id = ? AND filter_type = ?", userID, desired.FilterType).First(&existing)
		if result.Error == nil {
			existing.BudgetMin = desired.BudgetMin
			existing.BudgetMax = desired.BudgetMax
			existing.Values = desired.Values
			return tx.Save(&existing).Error
		}
		return tx.Create(&desired).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save data filter: %w", err)
	}

	s.logAudit(ctx, actorID, "set_data_filter", "data_filter", userID, "Set "+desired.FilterType+" filter")
	return nil
}

// FilterRecords returns the subset of records visible to the user: records
// whose department, ward, or project falls inside the user's assignment
// sets (admins and view-all holders bypass the scope check), further
// narrowed by every active data filter.
func (s *Service) FilterRecords(ctx context.Context, user Identity, records []ProjectRecord) ([]ProjectRecord, error) {
	bypass := s.HasPrivilege(ctx, user, PrivilegeViewAll)

	var deptSet, wardSet, projSet map[uint]bool
	if !bypass {
		depts, err := s.AccessibleDepartments(ctx, user.UserID)
		if err != nil {
			return nil, err
		}
		wards, err := s.AccessibleWards(ctx, user.UserID)
		if err != nil {
			return nil, err
		}
		projects, err := s.AccessibleProjects(ctx, user.UserID)
		if err != nil {
			return nil, err
		}

		deptSet = make(map[uint]bool, len(depts))
		for _, d := range depts {
			deptSet[d.DepartmentID] = true
		}
		wardSet = make(map[uint]bool, len(wards))
		for _, w := range wards {
			wardSet[w.WardID] = true
		}
		projSet = make(map[uint]bool, len(projects))
		for _, p := range projects {
			projSet[p.ProjectID] = true
		}
	}

	filters, err := s.ActiveFilters(ctx, user.UserID)
	if err != nil {
		return nil, err
	}

	visible := make([]ProjectRecord, 0, len(records))
	for _, rec := range records {
		if !bypass && !recordInScope(rec, deptSet, wardSet, projSet) {
			continue
		}
		if !recordMatchesFilters(rec, filters) {
			continue
		}
		visible = append(visible, rec)
	}
	return visible, nil
}

func recordInScope(rec ProjectRecord, deptSet, wardSet, projSet map[uint]bool) bool {
	if rec.DepartmentID != 0 && deptSet[rec.DepartmentID] {
		return true
	}
	if rec.WardID != 0 && wardSet[rec.WardID] {
		return true
	}
	if rec.ProjectID != 0 && projSet[rec.ProjectID] {
		return true
	}
	return false
}

func recordMatchesFilters(rec ProjectRecord, filters *Filters) bool {
	if filters.BudgetRange != nil {
		if rec.Budget < filters.BudgetRange.Min || rec.Budget > filters.BudgetRange.Max {
			return false
		}
	}
	if len(filters.AllowedStatuses) > 0 && !containsString(filters.AllowedStatuses, rec.Status) {
		return false
	}
	if len(filters.AllowedProjectTypes) > 0 && !containsString(filters.AllowedProjectTypes, rec.ProjectType) {
		return false
	}
	return true
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// AssignUserToDepartments replaces a user's department assignment set. The
// caller supplies the complete desired set; only the symmetric difference
// against the current rows is written, so retrying the same call issues
// zero net changes.
func (s *Service) AssignUserToDepartments(ctx context.Context, userID uint, desired []DepartmentScope, actorID uint) error {
	primaries := 0
	seen := make(map[uint]bool, len(desired))
	for _, d := range desired {
		if d.DepartmentID == 0 {
			return &ValidationError{Field: "department_id", Message: "department id is required"}
		}
		if seen[d.DepartmentID] {
			return &ValidationError{Field: "department_id", Message: "duplicate department in desired set"}
		}
		seen[d.DepartmentID] = true
		if d.IsPrimary {
			primaries++
		}
	}
	if primaries > 1 {
		return &ValidationError{Field: "is_primary", Message: "at most one primary department is allowed"}
	}

	var current []DepartmentAssignment
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&current).Error; err != nil {
		return fmt.Errorf("failed to fetch department assignments: %w", err)
	}

	currentByID := make(map[uint]DepartmentAssignment, len(current))
	for _, row := range current {
		currentByID[row.DepartmentID] = row
	}
	desiredByID := make(map[uint]DepartmentScope, len(desired))
	for _, d := range desired {
		desiredByID[d.DepartmentID] = d
	}

	var adds []DepartmentAssignment
	var updates []DepartmentAssignment
	var removeIDs []uint
	for id, d := range desiredByID {
		row, exists := currentByID[id]
		if !exists {
			adds = append(adds, DepartmentAssignment{UserID: userID, DepartmentID: id, IsPrimary: d.IsPrimary})
			continue
		}
		if row.IsPrimary != d.IsPrimary {
			row.IsPrimary = d.IsPrimary
			updates = append(updates, row)
		}
	}
	for id, row := range currentByID {
		if _, keep := desiredByID[id]; !keep {
			removeIDs = append(removeIDs, row.ID)
		}
	}

	if len(adds) == 0 && len(updates) == 0 && len(removeIDs) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(removeIDs) > 0 {
			if err := tx.Where("id IN ?", removeIDs).Delete(&DepartmentAssignment{}).Error; err != nil {
				return err
			}
		}
		for _, row := range updates {
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		for _, row := range adds {
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace department assignments: %w", err)
	}

	s.logAudit(ctx, actorID, "assign_departments", "user", userID,
		fmt.Sprintf("Replaced department set: +%d ~%d -%d", len(adds), len(updates), len(removeIDs)))
	return nil
}

// AssignUserToWards replaces a user's ward assignment set.
func (s *Service) AssignUserToWards(ctx context.Context, userID uint, desired []WardScope, actorID uint) error {
	seen := make(map[uint]bool, len(desired))
	for _, w := range desired {
		if w.WardID == 0 {
			return &ValidationError{Field: "ward_id", Message: "ward id is required"}
		}
		if !wardAccessLevels[w.AccessLevel] {
			return &ValidationError{Field: "access_level", Message: "unknown ward access level " + w.AccessLevel}
		}
		if seen[w.WardID] {
			return &ValidationError{Field: "ward_id", Message: "duplicate ward in desired set"}
		}
		seen[w.WardID] = true
	}

	var current []WardAssignment
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&current).Error; err != nil {
		return fmt.Errorf("failed to fetch ward assignments: %w", err)
	}

	currentByID := make(map[uint]WardAssignment, len(current))
	for _, row := range current {
		currentByID[row.WardID] = row
	}
	desiredByID := make(map[uint]WardScope, len(desired))
	for _, w := range desired {
		desiredByID[w.WardID] = w
	}

	var adds []WardAssignment
	var updates []WardAssignment
	var removeIDs []uint
	for id, w := range desiredByID {
		row, exists := currentByID[id]
		if !exists {
			adds = append(adds, WardAssignment{UserID: userID, WardID: id, AccessLevel: w.AccessLevel})
			continue
		}
		if row.AccessLevel != w.AccessLevel {
			row.AccessLevel = w.AccessLevel
			updates = append(updates, row)
		}
	}
	for id, row := range currentByID {
		if _, keep := desiredByID[id]; !keep {
			removeIDs = append(removeIDs, row.ID)
		}
	}

	if len(adds) == 0 && len(updates) == 0 && len(removeIDs) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(removeIDs) > 0 {
			if err := tx.Where("id IN ?", removeIDs).Delete(&WardAssignment{}).Error; err != nil {
				return err
			}
		}
		for _, row := range updates {
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		for _, row := range adds {
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace ward assignments: %w", err)
	}

	s.logAudit(ctx, actorID, "assign_wards", "user", userID,
		fmt.Sprintf("Replaced ward set: +%d ~%d -%d", len(adds), len(updates), len(removeIDs)))
	return nil
}

// AssignUserToProjects replaces a user's project assignment set.
func (s *Service) AssignUserToProjects(ctx context.Context, userID uint, desired []ProjectScope, actorID uint) error {
	seen := make(map[uint]bool, len(desired))
	for _, p := range desired {
		if p.ProjectID == 0 {
			return &ValidationError{Field: "project_id", Message: "project id is required"}
		}
		if projectAccessRank[p.AccessLevel] == 0 {
			return &ValidationError{Field: "access_level", Message: "unknown project access level " + p.AccessLevel}
		}
		if seen[p.ProjectID] {
			return &ValidationError{Field: "project_id", Message: "duplicate project in desired set"}
		}
		seen[p.ProjectID] = true
	}

	var current []ProjectAssignment
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&current).Error; err != nil {
		return fmt.Errorf("failed to fetch project assignments: %w", err)
	}

	currentByID := make(map[uint]ProjectAssignment, len(current))
	for _, row := range current {
		currentByID[row.ProjectID] = row
	}
	desiredByID := make(map[uint]ProjectScope, len(desired))
	for _, p := range desired {
		desiredByID[p.ProjectID] = p
	}

	var adds []ProjectAssignment
	var updates []ProjectAssignment
	var removeIDs []uint
	for id, p := range desiredByID {
		row, exists := currentByID[id]
		if !exists {
			adds = append(adds, ProjectAssignment{UserID: userID, ProjectID: id, AccessLevel: p.AccessLevel})
			continue
		}
		if row.AccessLevel != p.AccessLevel {
			row.AccessLevel = p.AccessLevel
			updates = append(updates, row)
		}
	}
	for id, row := range currentByID {
		if _, keep := desiredByID[id]; !keep {
			removeIDs = append(removeIDs, row.ID)
		}
	}

	if len(adds) == 0 && len(updates) == 0 && len(removeIDs) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(removeIDs) > 0 {
			if err := tx.Where("id IN ?", removeIDs).Delete(&ProjectAssignment{}).Error; err != nil {
				return err
			}
		}
		for _, row := range updates {
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
		}
		for _, row := range adds {
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace project assignments: %w", err)
	}

	s.logAudit(ctx, actorID, "assign_projects", "user", userID,
		fmt.Sprintf("Replaced project set: +%d ~%d -%d", len(adds), len(updates), len(removeIDs)))
	return nil
}
