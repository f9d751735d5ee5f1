package models

import "time"

// StudentStatus is the enrollment state of a student.
type StudentStatus string

// Student statuses. TRANSFERRED is terminal.
const (
	StudentStatusActive      StudentStatus = "ACTIVE"
	StudentStatusInactive    StudentStatus = "INACTIVE"
	StudentStatusTransferred StudentStatus = "TRANSFERRED"
)

var studentTransitions = map[StudentStatus][]StudentStatus{
	StudentStatusActive:   {StudentStatusInactive, StudentStatusTransferred},
	StudentStatusInactive: {StudentStatusActive, StudentStatusTransferred},
}

// Valid reports whether s is a known status.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentStatusActive, StudentStatusInactive, StudentStatusTransferred:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
func (s StudentStatus) CanTransitionTo(next StudentStatus) bool {
	for _, allowed := range studentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Student represents a learner admitted to the institution. Students are
// never deleted; leaving is expressed through Status.
type Student struct {
	ID                 string        `db:"id" json:"id"`
	AdmissionNo        string        `db:"admission_no" json:"admission_no"`
	FullName           string        `db:"full_name" json:"full_name"`
	Gender             string        `db:"gender" json:"gender"`
	BirthDate          *time.Time    `db:"birth_date" json:"birth_date,omitempty"`
	Phone              string        `db:"phone" json:"phone"`
	Address            string        `db:"address" json:"address"`
	GuardianName       string        `db:"guardian_name" json:"guardian_name"`
	GuardianRelation   string        `db:"guardian_relation" json:"guardian_relation"`
	GuardianPhone      string        `db:"guardian_phone" json:"guardian_phone"`
	Status             StudentStatus `db:"status" json:"status"`
	InactivatedOn      *time.Time    `db:"inactivated_on" json:"inactivated_on,omitempty"`
	InactivationReason *string       `db:"inactivation_reason" json:"inactivation_reason,omitempty"`
	InactivatedBy      *string       `db:"inactivated_by" json:"inactivated_by,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search       string
	Status       StudentStatus
	AcademicYear string
	ClassName    string
	SectionName  string
	Branch       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// StudentDetail joins a student with its placement for the filtered or
// latest academic year.
type StudentDetail struct {
	Student
	AcademicYear *string `db:"academic_year" json:"academic_year,omitempty"`
	ClassName    *string `db:"class_name" json:"class_name,omitempty"`
	SectionName  *string `db:"section_name" json:"section_name,omitempty"`
	RollNumber   *int    `db:"roll_number" json:"roll_number,omitempty"`
	Branch       *string `db:"branch" json:"branch,omitempty"`
}
