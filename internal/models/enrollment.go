package models

import "time"

// Enrollment is the placement of one student in one academic year. A student
// has at most one enrollment per year; rows are only ever added.
type Enrollment struct {
	ID           string     `db:"id" json:"id"`
	StudentID    string     `db:"student_id" json:"student_id"`
	AcademicYear string     `db:"academic_year" json:"academic_year"`
	ClassName    string     `db:"class_name" json:"class_name"`
	SectionName  string     `db:"section_name" json:"section_name"`
	RollNumber   *int       `db:"roll_number" json:"roll_number,omitempty"`
	Branch       string     `db:"branch" json:"branch"`
	IsPromoted   bool       `db:"is_promoted" json:"is_promoted"`
	PromotedDate *time.Time `db:"promoted_date" json:"promoted_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// RosterEntry is an enrollment listed with the student's identity.
type RosterEntry struct {
	Enrollment
	AdmissionNo   string        `db:"admission_no" json:"admission_no"`
	FullName      string        `db:"full_name" json:"full_name"`
	StudentStatus StudentStatus `db:"student_status" json:"student_status"`
}

// EnrollmentFilter selects a roster. AcademicYear is mandatory.
type EnrollmentFilter struct {
	AcademicYear string `form:"academic_year" validate:"required,academic_year"`
	ClassName    string `form:"class_name"`
	SectionName  string `form:"section_name"`
	Branch       string `form:"branch"`
}
