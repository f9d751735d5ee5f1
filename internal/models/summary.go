package models

import "time"

// SectionSummary counts enrolled students in one section.
type SectionSummary struct {
	SectionName string `json:"section_name"`
	Total       int    `json:"total"`
}

// ClassSummary counts enrolled students in one class.
type ClassSummary struct {
	ClassName string           `json:"class_name"`
	Total     int              `json:"total"`
	Sections  []SectionSummary `json:"sections"`
}

// StudentSummary aggregates the enrollments of one academic year and branch.
type StudentSummary struct {
	AcademicYear string                `json:"academic_year"`
	Branch       string                `json:"branch,omitempty"`
	Total        int                   `json:"total"`
	ByStatus     map[StudentStatus]int `json:"by_status"`
	Classes      []ClassSummary        `json:"classes"`
	GeneratedAt  time.Time             `json:"generated_at"`
}

// SummaryRow is one grouped count as read from the store.
type SummaryRow struct {
	ClassName   string        `db:"class_name"`
	SectionName string        `db:"section_name"`
	Status      StudentStatus `db:"status"`
	Total       int           `db:"total"`
}
