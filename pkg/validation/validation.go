// Package validation builds the shared request validator.
package validation

import (
	"regexp"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// TagAcademicYear validates "YYYY-YYYY" where the second year follows the first.
const TagAcademicYear = "academic_year"

var academicYearPattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

// New returns a validator with the domain tags registered.
func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation(TagAcademicYear, func(fl validator.FieldLevel) bool {
		return IsAcademicYear(fl.Field().String())
	})
	return v
}

// IsAcademicYear reports whether s names a consecutive academic year, e.g. 2025-2026.
func IsAcademicYear(s string) bool {
	m := academicYearPattern.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	return end == start+1
}
