package model

type Institution struct {
	UUIDBase
	Name string `gorm:"size:255;not null" json:"name"`
	Code string `gorm:"size:50;uniqueIndex" json:"code"`
}

func (Institution) TableName() string {
	return "institutions"
}

type Department struct {
	UUIDBase
	InstitutionID string `gorm:"index;type:varchar(36);not null" json:"institutionId"`
	Name          string `gorm:"size:255;not null" json:"name"`
}

func (Department) TableName() string {
	return "departments"
}

type Section struct {
	UUIDBase
	DepartmentID string `gorm:"index;type:varchar(36);not null" json:"departmentId"`
	Name         string `gorm:"size:255;not null" json:"name"`
}

func (Section) TableName() string {
	return "sections"
}

type Course struct {
	UUIDBase
	InstitutionID *string `gorm:"index;type:varchar(36)" json:"institutionId,omitempty"`
	EducatorID    string  `gorm:"index;type:varchar(36)" json:"educatorId"`
	Code          string  `gorm:"size:50" json:"code"`
	Name          string  `gorm:"size:255;not null" json:"name"`
}

func (Course) TableName() string {
	return "courses"
}

type EnrollmentStatus string

const (
	EnrollmentEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentDropped   EnrollmentStatus = "dropped"
	EnrollmentCompleted EnrollmentStatus = "completed"
)

type Enrollment struct {
	UUIDBase
	CourseID  string           `gorm:"uniqueIndex:idx_enrollment_course_student;type:varchar(36)" json:"courseId"`
	StudentID string           `gorm:"uniqueIndex:idx_enrollment_course_student;type:varchar(36)" json:"studentId"`
	Status    EnrollmentStatus `gorm:"size:20;default:'enrolled'" json:"status"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}
