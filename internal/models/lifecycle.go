package models

import (
	"encoding/json"
	"time"
)

// LifecycleEventKind names a committed transition.
type LifecycleEventKind string

const (
	LifecycleDeactivated LifecycleEventKind = "DEACTIVATED"
	LifecycleReactivated LifecycleEventKind = "REACTIVATED"
	LifecyclePromoted    LifecycleEventKind = "PROMOTED"
	LifecycleTransferred LifecycleEventKind = "TRANSFERRED"
)

// LifecycleEvent is an immutable audit record of one transition.
type LifecycleEvent struct {
	ID         string             `db:"id" json:"id"`
	StudentID  string             `db:"student_id" json:"student_id"`
	Kind       LifecycleEventKind `db:"kind" json:"kind"`
	OccurredAt time.Time          `db:"occurred_at" json:"occurred_at"`
	Actor      string             `db:"actor" json:"actor"`
	Reason     string             `db:"reason" json:"reason"`
	Before     json.RawMessage    `db:"before_state" json:"before,omitempty"`
	After      json.RawMessage    `db:"after_state" json:"after,omitempty"`
}

// StatusSnapshot is the before/after payload of status transitions.
type StatusSnapshot struct {
	Status        StudentStatus `json:"status"`
	InactivatedOn *string       `json:"inactivated_on,omitempty"`
}

// PlacementSnapshot is the before/after payload of promotions.
type PlacementSnapshot struct {
	AcademicYear string `json:"academic_year"`
	ClassName    string `json:"class_name"`
	SectionName  string `json:"section_name"`
	RollNumber   *int   `json:"roll_number,omitempty"`
	Branch       string `json:"branch"`
}

// PlacementOf snapshots an enrollment.
func PlacementOf(e Enrollment) PlacementSnapshot {
	return PlacementSnapshot{
		AcademicYear: e.AcademicYear,
		ClassName:    e.ClassName,
		SectionName:  e.SectionName,
		RollNumber:   e.RollNumber,
		Branch:       e.Branch,
	}
}

// BulkPromotionFailure names why one student of a batch was not promoted.
type BulkPromotionFailure struct {
	StudentID string `json:"student_id"`
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// BulkPromotionResult aggregates per-student outcomes of a batch, both lists
// in input order.
type BulkPromotionResult struct {
	Succeeded []string               `json:"succeeded"`
	Failed    []BulkPromotionFailure `json:"failed"`
}
