package portal

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Privilege represents an atomic named capability (resource.action).
type Privilege struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"unique;not null"`
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// Role is a named singleton (e.g. "admin", "contractor"). A role holds only
// the privileges it explicitly declares; there is no inheritance.
type Role struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"unique;not null"`
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

// RolePrivilege maps a role to a privilege.
type RolePrivilege struct {
	RoleID      uint `gorm:"primaryKey;autoIncrement:false"`
	PrivilegeID uint `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt   time.Time
}

// RoleDashboardConfig stores a per-(role, tab) override of the component
// list. The override replaces the tab's component list wholesale; it is
// never merged with the base declaration.
type RoleDashboardConfig struct {
	ID         uint     `gorm:"primaryKey"`
	RoleName   string   `gorm:"index:idx_role_tab,unique;not null"`
	TabKey     string   `gorm:"index:idx_role_tab,unique;not null"`
	Components []string `gorm:"serializer:json"`
	UpdatedBy  uint
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DepartmentAssignment scopes a user to a department. At most one of a
// user's assignments may be primary.
type DepartmentAssignment struct {
	ID           uint `gorm:"primaryKey"`
	UserID       uint `gorm:"index:idx_user_dept,unique;not null"`
	DepartmentID uint `gorm:"index:idx_user_dept,unique;not null"`
	IsPrimary    bool `gorm:"default:false"`
	CreatedAt    time.Time
}

// WardAssignment scopes a user to a ward with an access level. The ward is
// the authorization unit; subcounty grouping is a UI concern only.
type WardAssignment struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"index:idx_user_ward,unique;not null"`
	WardID      uint   `gorm:"index:idx_user_ward,unique;not null"`
	AccessLevel string `gorm:"not null"`
	CreatedAt   time.Time
}

// ProjectAssignment scopes a user to a project with an access level.
type ProjectAssignment struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"index:idx_user_proj,unique;not null"`
	ProjectID   uint   `gorm:"index:idx_user_proj,unique;not null"`
	AccessLevel string `gorm:"not null"`
	CreatedAt   time.Time
}

// DataFilter restricts which records a user sees. At most one active filter
// per (user, type); a missing filter means unrestricted, never deny-all.
type DataFilter struct {
	ID         uint     `gorm:"primaryKey"`
	UserID     uint     `gorm:"index:idx_user_filter,unique;not null"`
	FilterType string   `gorm:"index:idx_user_filter,unique;not null"`
	BudgetMin  *float64
	BudgetMax  *float64
	Values     []string `gorm:"serializer:json"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Feedback is a citizen submission. Rows are never hard-deleted; the
// moderation trail must survive.
type Feedback struct {
	ID               uint   `gorm:"primaryKey"`
	AuthorName       string
	AuthorContact    string
	Message          string `gorm:"not null"`
	ProjectID        *uint  `gorm:"index"`
	ModerationStatus string `gorm:"index;default:pending"`
	ModerationReason string
	CustomReason     string
	ModeratorNotes   string
	ModeratedBy      *uint
	ModeratedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ModerationEvent is an append-only record of a moderation transition.
type ModerationEvent struct {
	ID             uint   `gorm:"primaryKey"`
	FeedbackID     uint   `gorm:"index;not null"`
	Action         string `gorm:"not null"`
	FromStatus     string
	ToStatus       string
	Reason         string
	CustomReason   string
	Notes          string
	Justification  string
	ActorID        uint
	IdempotencyKey string `gorm:"index"`
	CreatedAt      time.Time
}

// ContentItem is the uniform view over the four publishable content kinds.
// The two visibility flags are mutually exclusive.
type ContentItem struct {
	ID                  uint       `gorm:"primaryKey"`
	Kind                string     `gorm:"index;not null"`
	Title               string
	DepartmentID        uint       `gorm:"index"`
	WardID              uint       `gorm:"index"`
	ProjectID           uint       `gorm:"index"`
	ApprovedForPublic   LegacyBool `gorm:"type:boolean"`
	RevisionRequested   LegacyBool `gorm:"type:boolean"`
	RevisionNotes       string
	RevisionRequestedBy *uint
	RevisionRequestedAt *time.Time
	ApprovedBy          *uint
	ApprovedAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ProjectPhoto carries its own approval flag, independent of the owning
// project's content state. No revision sub-state.
type ProjectPhoto struct {
	ID         uint `gorm:"primaryKey"`
	ProjectID  uint `gorm:"index;not null"`
	URL        string
	Caption    string
	Approved   LegacyBool `gorm:"type:boolean"`
	ApprovedBy *uint
	ApprovedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AuditLog tracks control-plane mutations.
type AuditLog struct {
	ID         uint   `gorm:"primaryKey"`
	ActorID    uint   `gorm:"index"`
	Action     string `gorm:"not null"`
	TargetType string `gorm:"not null"`
	TargetID   uint   `gorm:"index"`
	Details    string
	CreatedAt  time.Time
}

// LegacyBool normalizes the heterogeneous representations legacy records
// carry for visibility flags (null, bool, 0/1, "true"/"false", "0"/"1").
// Coercion happens once, at the storage boundary; business logic only ever
// sees a clean boolean.
type LegacyBool bool

// Scan implements sql.Scanner.
func (b *LegacyBool) Scan(value interface{}) error {
	v, err := CoerceBool(value)
	if err != nil {
		return err
	}
	*b = LegacyBool(v)
	return nil
}

// Value implements driver.Valuer.
func (b LegacyBool) Value() (driver.Value, error) {
	return bool(b), nil
}

// GormDataType tells the migrator to create a plain boolean column.
func (LegacyBool) GormDataType() string {
	return "boolean"
}

// Bool returns the normalized value.
func (b LegacyBool) Bool() bool {
	return bool(b)
}

// CoerceBool maps a legacy flag representation to a boolean. Nil means
// false; unknown representations are an error rather than a silent false.
func CoerceBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case []byte:
		return coerceBoolString(string(v))
	case string:
		return coerceBoolString(v)
	default:
		return false, fmt.Errorf("cannot coerce %T to bool", value)
	}
}

func coerceBoolString(s string) (bool, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return false, nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n != 0, nil
	}
	return false, fmt.Errorf("cannot coerce %q to bool", s)
}
