package portal

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Sentinel role and privilege names.
const (
	AdminRole            = "admin"
	FallbackRole         = "contractor"
	PrivilegeAdminAccess = "admin.access"
	PrivilegeViewAll     = "project.view_all"
)

// IsAdmin reports whether the identity bypasses all other privilege checks:
// the "admin" role by name, or the sentinel admin.access privilege.
func IsAdmin(user Identity) bool {
	if user.Role == AdminRole {
		return true
	}
	for _, p := range user.Privileges {
		if p == PrivilegeAdminAccess {
			return true
		}
	}
	return false
}

// HasPrivilege checks a single privilege by exact name match against the
// identity's own privilege list plus its role's declared set. Lookup
// failures fail closed.
func (s *Service) HasPrivilege(ctx context.Context, user Identity, name string) bool {
	if IsAdmin(user) {
		return true
	}

	for _, p := range user.Privileges {
		if p == name {
			return true
		}
	}

	rolePrivs, err := s.RolePrivileges(ctx, user.Role)
	if err != nil {
		return false
	}
	for _, p := range rolePrivs {
		if p == name {
			return true
		}
	}
	return false
}

// HasAnyPrivilege checks whether the user holds at least one of the named
// privileges.
func (s *Service) HasAnyPrivilege(ctx context.Context, user Identity, names ...string) bool {
	for _, name := range names {
		if s.HasPrivilege(ctx, user, name) {
			return true
		}
	}
	return false
}

// HasAllPrivileges checks whether the user holds every named privilege.
func (s *Service) HasAllPrivileges(ctx context.Context, user Identity, names ...string) bool {
	for _, name := range names {
		if !s.HasPrivilege(ctx, user, name) {
			return false
		}
	}
	return true
}

// RolePrivileges retrieves the privilege names declared for a role. Results
// are cached; an unknown role has an empty set, not an error.
func (s *Service) RolePrivileges(ctx context.Context, roleName string) ([]string, error) {
	cacheKey := fmt.Sprintf("role:%s:privileges", roleName)
	var names []string
	if s.cacheGetJSON(ctx, cacheKey, &names) {
		return names, nil
	}

	var role Role
	if err := s.db.WithContext(ctx).Where("name = ?", roleName).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Unknown role: empty set, so privilege checks fail closed.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch role: %w", err)
	}

	var mappings []RolePrivilege
	if err := s.db.WithContext(ctx).Where("role_id = ?", role.ID).Find(&mappings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch role privileges: %w", err)
	}

	privIDs := make([]uint, 0, len(mappings))
	for _, m := range mappings {
		privIDs = append(privIDs, m.PrivilegeID)
	}

	names = []string{}
	if len(privIDs) > 0 {
		var privs []Privilege
		if err := s.db.WithContext(ctx).Where("id IN ?", privIDs).Find(&privs).Error; err != nil {
			return nil, fmt.Errorf("failed to fetch privileges: %w", err)
		}
		for _, p := range privs {
			names = append(names, p.Name)
		}
	}

	s.cacheSetJSON(ctx, cacheKey, names)
	return names, nil
}

// CreatePrivilege registers a new named privilege. Names are globally unique.
func (s *Service) CreatePrivilege(ctx context.Context, name, description string, actorID uint) (*Privilege, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "privilege name is required"}
	}

	var existing Privilege
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("privilege %s already exists: %w", name, ErrConflict)
	}

	priv := &Privilege{Name: name, Description: description}
	if err := s.db.WithContext(ctx).Create(priv).Error; err != nil {
		return nil, fmt.Errorf("failed to create privilege: %w", err)
	}

	s.logAudit(ctx, actorID, "create_privilege", "privilege", priv.ID, "Created privilege: "+name)
	return priv, nil
}

// DeletePrivilege removes a privilege and its role mappings.
func (s *Service) DeletePrivilege(ctx context.Context, name string, actorID uint) error {
	var priv Privilege
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&priv).Error; err != nil {
		return &NotFoundError{Resource: "privilege", ID: 0}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("privilege_id = ?", priv.ID).Delete(&RolePrivilege{}).Error; err != nil {
			return err
		}
		return tx.Delete(&priv).Error
	})
	if err != nil {
		s.cacheInvalidatePattern(ctx, "role:*")
		return fmt.Errorf("failed to delete privilege: %w", err)
	}

	s.cacheInvalidatePattern(ctx, "role:*")
	s.logAudit(ctx, actorID, "delete_privilege", "privilege", priv.ID, "Deleted privilege: "+name)
	return nil
}

// CreateRole registers a role with its initial privilege set. A new role
// may start with zero privileges (locked out until granted).
func (s *Service) CreateRole(ctx context.Context, name, description string, privilegeNames []string, actorID uint) (*Role, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "role name is required"}
	}

	var existing Role
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("role %s already exists: %w", name, ErrConflict)
	}

	role := &Role{Name: name, Description: description}
	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	if len(privilegeNames) > 0 {
		if err := s.SetRolePrivileges(ctx, name, privilegeNames, actorID); err != nil {
			return nil, err
		}
	}

	s.logAudit(ctx, actorID, "create_role", "role", role.ID, "Created role: "+name)
	return role, nil
}

// SetRolePrivileges replaces a role's privilege set with the supplied one.
// The caller provides the complete desired set; retrying the same call is
// idempotent.
func (s *Service) SetRolePrivileges(ctx context.Context, roleName string, privilegeNames []string, actorID uint) error {
	var role Role
	if err := s.db.WithContext(ctx).Where("name = ?", roleName).First(&role).Error; err != nil {
		return &NotFoundError{Resource: "role", ID: 0}
	}

	privIDs := make([]uint, 0, len(privilegeNames))
	for _, name := range privilegeNames {
		var priv Privilege
		if err := s.db.WithContext(ctx).Where("name = ?", name).First(&priv).Error; err != nil {
			return &ValidationError{Field: "privileges", Message: "unknown privilege " + name}
		}
		privIDs = append(privIDs, priv.ID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", role.ID).Delete(&RolePrivilege{}).Error; err != nil {
			return err
		}
		for _, id := range privIDs {
			if err := tx.Create(&RolePrivilege{RoleID: role.ID, PrivilegeID: id}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.cacheInvalidatePattern(ctx, "role:*")
		return fmt.Errorf("failed to set role privileges: %w", err)
	}

	s.cacheInvalidate(ctx, fmt.Sprintf("role:%s:privileges", roleName))
	s.cacheInvalidate(ctx, fmt.Sprintf("dashboard:%s", roleName))
	s.logAudit(ctx, actorID, "set_role_privileges", "role", role.ID, fmt.Sprintf("Replaced privilege set (%d entries)", len(privIDs)))
	return nil
}

// DeleteRole removes a role and its privilege mappings.
func (s *Service) DeleteRole(ctx context.Context, name string, actorID uint) error {
	var role Role
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		return &NotFoundError{Resource: "role", ID: 0}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", role.ID).Delete(&RolePrivilege{}).Error; err != nil {
			return err
		}
		return tx.Delete(&role).Error
	})
	if err != nil {
		s.cacheInvalidatePattern(ctx, "role:*")
		return fmt.Errorf("failed to delete role: %w", err)
	}

	s.cacheInvalidatePattern(ctx, "role:*")
	s.cacheInvalidate(ctx, "dashboard:"+name)
	s.logAudit(ctx, actorID, "delete_role", "role", role.ID, "Deleted role: "+name)
	return nil
}

// ListRoles retrieves all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := s.db.WithContext(ctx).Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	return roles, nil
}

// ListPrivileges retrieves all privileges.
func (s *Service) ListPrivileges(ctx context.Context) ([]Privilege, error) {
	var privs []Privilege
	if err := s.db.WithContext(ctx).Find(&privs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch privileges: %w", err)
	}
	return privs, nil
}
