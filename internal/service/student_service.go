package service

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/internal/repository"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
	"github.com/noah-isme/student-lifecycle-api/pkg/sanitize"
	"github.com/noah-isme/student-lifecycle-api/pkg/validation"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindDetailByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByAdmissionNo(ctx context.Context, admissionNo string) (bool, error)
	Admit(ctx context.Context, student *models.Student, enrollment *models.Enrollment) error
	Update(ctx context.Context, student *models.Student) error
}

type enrollmentHistory interface {
	History(ctx context.Context, studentID string) iter.Seq2[models.Enrollment, error]
}

type lifecycleEventReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.LifecycleEvent, error)
}

// AdmitStudentRequest registers a student together with the first placement.
type AdmitStudentRequest struct {
	AdmissionNo      string  `json:"admission_no" validate:"required,max=32"`
	FullName         string  `json:"full_name" validate:"required,max=128"`
	Gender           string  `json:"gender" validate:"omitempty,oneof=M F"`
	BirthDate        *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Phone            string  `json:"phone" validate:"max=32"`
	Address          string  `json:"address" validate:"max=255"`
	GuardianName     string  `json:"guardian_name" validate:"max=128"`
	GuardianRelation string  `json:"guardian_relation" validate:"max=32"`
	GuardianPhone    string  `json:"guardian_phone" validate:"max=32"`
	AcademicYear     string  `json:"academic_year" validate:"required,academic_year"`
	ClassName        string  `json:"class_name" validate:"required,max=64"`
	SectionName      string  `json:"section_name" validate:"required,max=16"`
	RollNumber       *int    `json:"roll_number" validate:"omitempty,gt=0"`
	Branch           string  `json:"branch" validate:"required,max=64"`
}

// UpdateStudentRequest changes descriptive fields. The admission number is
// fixed at admission.
type UpdateStudentRequest struct {
	FullName         string  `json:"full_name" validate:"required,max=128"`
	Gender           string  `json:"gender" validate:"omitempty,oneof=M F"`
	BirthDate        *string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Phone            string  `json:"phone" validate:"max=32"`
	Address          string  `json:"address" validate:"max=255"`
	GuardianName     string  `json:"guardian_name" validate:"max=128"`
	GuardianRelation string  `json:"guardian_relation" validate:"max=32"`
	GuardianPhone    string  `json:"guardian_phone" validate:"max=32"`
}

// StudentService handles student directory use-cases.
type StudentService struct {
	repo      studentRepository
	history   enrollmentHistory
	events    lifecycleEventReader
	classes   classCatalog
	notifier  summaryNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, history enrollmentHistory, events lifecycleEventReader, classes classCatalog, notifier summaryNotifier, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, history: history, events: events, classes: classes, notifier: notifier, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown student status")
	}
	if filter.AcademicYear != "" && !validation.IsAcademicYear(filter.AcademicYear) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid academic year")
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Infrastructure(err, "failed to list students")
	}
	if students == nil {
		students = []models.StudentDetail{}
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns detailed student information with the latest placement.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Infrastructure(err, "failed to load student")
	}
	return student, nil
}

// Admit registers a new ACTIVE student and the initial enrollment in one
// write.
func (s *StudentService) Admit(ctx context.Context, req AdmitStudentRequest) (*models.Student, *models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	birthDate, err := parseOptionalDate(req.BirthDate)
	if err != nil {
		return nil, nil, err
	}

	admissionNo := sanitize.Text(req.AdmissionNo)
	exists, err := s.repo.ExistsByAdmissionNo(ctx, admissionNo)
	if err != nil {
		return nil, nil, appErrors.Infrastructure(err, "failed to validate admission number")
	}
	if exists {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "admission number already used")
	}
	known, err := s.classes.ExistsByName(ctx, req.ClassName)
	if err != nil {
		return nil, nil, appErrors.Infrastructure(err, "failed to check class catalog")
	}
	if !known {
		return nil, nil, appErrors.Clone(appErrors.ErrUnknownClass, "class "+req.ClassName+" is not in the catalog")
	}

	student := &models.Student{
		AdmissionNo:      admissionNo,
		FullName:         sanitize.Text(req.FullName),
		Gender:           req.Gender,
		BirthDate:        birthDate,
		Phone:            sanitize.Text(req.Phone),
		Address:          sanitize.Text(req.Address),
		GuardianName:     sanitize.Text(req.GuardianName),
		GuardianRelation: sanitize.Text(req.GuardianRelation),
		GuardianPhone:    sanitize.Text(req.GuardianPhone),
		Status:           models.StudentStatusActive,
	}
	enrollment := &models.Enrollment{
		AcademicYear: req.AcademicYear,
		ClassName:    req.ClassName,
		SectionName:  req.SectionName,
		RollNumber:   req.RollNumber,
		Branch:       req.Branch,
	}
	if err := s.repo.Admit(ctx, student, enrollment); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateAdmissionNo):
			return nil, nil, appErrors.Clone(appErrors.ErrConflict, "admission number already used")
		case errors.Is(err, repository.ErrDuplicateRollNumber):
			return nil, nil, appErrors.Clone(appErrors.ErrDuplicateRollNumber, "")
		}
		return nil, nil, appErrors.Infrastructure(err, "failed to admit student")
	}

	if s.notifier != nil {
		s.notifier.Notify(enrollment.AcademicYear, enrollment.Branch)
	}
	s.logger.Info("student admitted",
		zap.String("student_id", student.ID),
		zap.String("academic_year", enrollment.AcademicYear),
		zap.String("class", enrollment.ClassName),
	)
	return student, enrollment, nil
}

// Update modifies the descriptive fields of an existing student.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	birthDate, err := parseOptionalDate(req.BirthDate)
	if err != nil {
		return nil, err
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Infrastructure(err, "failed to load student")
	}

	student.FullName = sanitize.Text(req.FullName)
	student.Gender = req.Gender
	student.BirthDate = birthDate
	student.Phone = sanitize.Text(req.Phone)
	student.Address = sanitize.Text(req.Address)
	student.GuardianName = sanitize.Text(req.GuardianName)
	student.GuardianRelation = sanitize.Text(req.GuardianRelation)
	student.GuardianPhone = sanitize.Text(req.GuardianPhone)
	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Infrastructure(err, "failed to update student")
	}
	return student, nil
}

// History returns every enrollment of the student ordered by academic year.
func (s *StudentService) History(ctx context.Context, id string) ([]models.Enrollment, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	history := []models.Enrollment{}
	for enrollment, err := range s.history.History(ctx, id) {
		if err != nil {
			return nil, appErrors.Infrastructure(err, "failed to load academic history")
		}
		history = append(history, enrollment)
	}
	return history, nil
}

// Events lists the lifecycle events recorded for a student, oldest first.
func (s *StudentService) Events(ctx context.Context, id string) ([]models.LifecycleEvent, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.events.ListByStudent(ctx, id)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to load lifecycle events")
	}
	if events == nil {
		events = []models.LifecycleEvent{}
	}
	return events, nil
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}
	return &t, nil
}
