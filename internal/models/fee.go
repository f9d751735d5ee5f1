package models

import "time"

// FeeStatus tracks payment progress of an installment.
type FeeStatus string

const (
	FeeStatusPending FeeStatus = "PENDING"
	FeeStatusPartial FeeStatus = "PARTIAL"
	FeeStatusPaid    FeeStatus = "PAID"
)

// FeeInstallment is one payable line of a student's fee structure.
type FeeInstallment struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Title        string    `db:"title" json:"title"`
	AcademicYear string    `db:"academic_year" json:"academic_year"`
	TotalFee     float64   `db:"total_fee" json:"total_fee"`
	PaidAmount   float64   `db:"paid_amount" json:"paid_amount"`
	DueAmount    float64   `db:"due_amount" json:"due_amount"`
	Concession   float64   `db:"concession" json:"concession"`
	Status       FeeStatus `db:"status" json:"status"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Normalize fills in a due amount the ledger left at zero while the
// installment is still short of its total.
func (f *FeeInstallment) Normalize() {
	if f.DueAmount == 0 && f.PaidAmount < f.TotalFee {
		due := f.TotalFee - f.PaidAmount - f.Concession
		if due < 0 {
			due = 0
		}
		f.DueAmount = due
	}
}

// Nullifiable reports whether the installment is owed in full with nothing
// paid, the only case the nullify escape hatch may zero.
func (f FeeInstallment) Nullifiable() bool {
	return f.DueAmount > 0 && f.PaidAmount == 0
}

// OutstandingInstallments returns the installments with a positive due and
// their summed due.
func OutstandingInstallments(items []FeeInstallment) ([]FeeInstallment, float64) {
	var (
		out   []FeeInstallment
		total float64
	)
	for _, item := range items {
		if item.DueAmount > 0 {
			out = append(out, item)
			total += item.DueAmount
		}
	}
	return out, total
}
