package model

type UserRole string

const (
	Student  UserRole = "student"
	Educator UserRole = "educator"
	Admin    UserRole = "admin"
)

// User is read by the exam core for eligibility (section, department and
// institution membership). Account management lives outside this service.
type User struct {
	UUIDBase
	Name          string   `gorm:"size:100;not null" json:"name"`
	Email         string   `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Role          UserRole `gorm:"size:20;default:'student'" json:"role"`
	InstitutionID *string  `gorm:"index;type:varchar(36)" json:"institutionId,omitempty"`
	DepartmentID  *string  `gorm:"index;type:varchar(36)" json:"departmentId,omitempty"`
	SectionID     *string  `gorm:"index;type:varchar(36)" json:"sectionId,omitempty"`
	Disabled      bool     `gorm:"default:false" json:"disabled"`
}

func (User) TableName() string {
	return "users"
}

// Identity is the authenticated caller as supplied by the auth middleware.
type Identity struct {
	ID            string
	Role          UserRole
	InstitutionID *string
}

func (i Identity) IsStudent() bool { return i.Role == Student }
func (i Identity) IsAdmin() bool   { return i.Role == Admin }
