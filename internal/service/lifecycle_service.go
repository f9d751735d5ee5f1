package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/internal/repository"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
	"github.com/noah-isme/student-lifecycle-api/pkg/sanitize"
	"github.com/noah-isme/student-lifecycle-api/pkg/validation"
)

const (
	dateLayout      = "2006-01-02"
	maxReasonLength = 500
)

type lifecycleStudentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ApplyTransition(ctx context.Context, t repository.StatusTransition, event *models.LifecycleEvent) error
}

type lifecycleEnrollmentStore interface {
	Get(ctx context.Context, studentID, academicYear string) (*models.Enrollment, error)
	Latest(ctx context.Context, studentID string) (*models.Enrollment, error)
	CreatePromotion(ctx context.Context, enrollment *models.Enrollment, event *models.LifecycleEvent) error
}

type feeLedger interface {
	Installments(ctx context.Context, studentID, academicYear string) ([]models.FeeInstallment, error)
	ZeroUnpaid(ctx context.Context, studentID, actor string) ([]models.FeeInstallment, error)
}

type classCatalog interface {
	ExistsByName(ctx context.Context, name string) (bool, error)
}

// summaryNotifier is told which summaries a committed transition made stale.
// An empty academic year means every year.
type summaryNotifier interface {
	Notify(academicYear, branch string)
}

// DeactivateRequest moves an active student to INACTIVE.
type DeactivateRequest struct {
	StudentID     string `json:"-" validate:"required"`
	EffectiveDate string `json:"effective_date" validate:"required,datetime=2006-01-02"`
	Reason        string `json:"reason" validate:"required,max=500"`
	Actor         string `json:"-" validate:"required"`
}

// ReactivateRequest returns an inactive student to ACTIVE.
type ReactivateRequest struct {
	StudentID string `json:"-" validate:"required"`
	Reason    string `json:"reason" validate:"max=500"`
	Actor     string `json:"-" validate:"required"`
}

// TransferRequest marks a student as having left for another institution.
type TransferRequest struct {
	StudentID string `json:"-" validate:"required"`
	Reason    string `json:"reason" validate:"required,max=500"`
	Actor     string `json:"-" validate:"required"`
}

// NullifyFeesRequest zeroes the unpaid installments of a student.
type NullifyFeesRequest struct {
	StudentID string `json:"-" validate:"required"`
	Actor     string `json:"-" validate:"required"`
}

// PromoteRequest places one student in a new academic year. SourceYear
// names the placement being promoted from; when empty the student's latest
// enrollment is used.
type PromoteRequest struct {
	StudentID     string `json:"-" validate:"required"`
	SourceYear    string `json:"source_year" validate:"omitempty,academic_year"`
	TargetYear    string `json:"target_year" validate:"required,academic_year"`
	TargetClass   string `json:"target_class" validate:"required,max=64"`
	TargetSection string `json:"target_section" validate:"max=16"`
	RollNumber    *int   `json:"roll_number" validate:"omitempty,gt=0"`
	Actor         string `json:"-" validate:"required"`
}

// BulkPromoteRequest promotes many students into the same target class.
type BulkPromoteRequest struct {
	StudentIDs    []string       `json:"student_ids" validate:"required,min=1,dive,required"`
	SourceYear    string         `json:"source_year" validate:"omitempty,academic_year"`
	TargetYear    string         `json:"target_year" validate:"required,academic_year"`
	TargetClass   string         `json:"target_class" validate:"required,max=64"`
	TargetSection string         `json:"target_section" validate:"max=16"`
	RollNumbers   map[string]int `json:"roll_numbers" validate:"omitempty,dive,gt=0"`
	Actor         string         `json:"-" validate:"required"`
}

// LifecycleOptions tunes bulk promotion.
type LifecycleOptions struct {
	BulkConcurrency int
	MaxBulkSize     int
}

// LifecycleService applies the student state machine, the fee gate and the
// promotion rules. Each call reads state fresh from the stores.
type LifecycleService struct {
	students    lifecycleStudentStore
	enrollments lifecycleEnrollmentStore
	fees        feeLedger
	classes     classCatalog
	notifier    summaryNotifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	opts        LifecycleOptions
	now         func() time.Time
}

// NewLifecycleService constructs LifecycleService.
func NewLifecycleService(
	students lifecycleStudentStore,
	enrollments lifecycleEnrollmentStore,
	fees feeLedger,
	classes classCatalog,
	notifier summaryNotifier,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	opts LifecycleOptions,
) *LifecycleService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BulkConcurrency <= 0 {
		opts.BulkConcurrency = 4
	}
	if opts.MaxBulkSize <= 0 {
		opts.MaxBulkSize = 500
	}
	return &LifecycleService{
		students:    students,
		enrollments: enrollments,
		fees:        fees,
		classes:     classes,
		notifier:    notifier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		opts:        opts,
		now:         time.Now,
	}
}

// Deactivate inactivates an active student whose current-year dues are clear.
func (s *LifecycleService) Deactivate(ctx context.Context, req DeactivateRequest) (*models.LifecycleEvent, error) {
	event, err := s.deactivate(ctx, req)
	return event, s.reject("deactivate", err)
}

func (s *LifecycleService) deactivate(ctx context.Context, req DeactivateRequest) (*models.LifecycleEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid deactivation payload")
	}
	effective, err := time.Parse(dateLayout, req.EffectiveDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid effective date")
	}

	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if student.Status != models.StudentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only active students can be deactivated")
	}

	year := ""
	current, err := s.enrollments.Latest(ctx, student.ID)
	switch {
	case err == nil:
		year = current.AcademicYear
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, s.storeFailure(err, "failed to load current enrollment", student.ID)
	}

	installments, err := s.fees.Installments(ctx, student.ID, year)
	if err != nil {
		return nil, s.storeFailure(err, "failed to load fee ledger", student.ID)
	}
	if outstanding, total := models.OutstandingInstallments(installments); total > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrFeeBlock, "student has outstanding fee dues", map[string]interface{}{
			"installments": outstanding,
			"total_due":    total,
		})
	}

	reason := cleanReason(req.Reason)
	actor := req.Actor
	effectiveOn := effective.Format(dateLayout)
	now := s.now().UTC()
	event := &models.LifecycleEvent{
		StudentID:  student.ID,
		Kind:       models.LifecycleDeactivated,
		OccurredAt: now,
		Actor:      actor,
		Reason:     reason,
		Before:     snapshot(models.StatusSnapshot{Status: student.Status}),
		After:      snapshot(models.StatusSnapshot{Status: models.StudentStatusInactive, InactivatedOn: &effectiveOn}),
	}
	transition := repository.StatusTransition{
		StudentID:     student.ID,
		From:          models.StudentStatusActive,
		To:            models.StudentStatusInactive,
		InactivatedOn: &effective,
		Reason:        &reason,
		Actor:         &actor,
		At:            now,
	}
	if err := s.commitTransition(ctx, transition, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Reactivate returns an inactive student to ACTIVE and clears the
// inactivation details. A second call fails because the student is no
// longer inactive.
func (s *LifecycleService) Reactivate(ctx context.Context, req ReactivateRequest) (*models.LifecycleEvent, error) {
	event, err := s.reactivate(ctx, req)
	return event, s.reject("reactivate", err)
}

func (s *LifecycleService) reactivate(ctx context.Context, req ReactivateRequest) (*models.LifecycleEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reactivation payload")
	}
	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if student.Status != models.StudentStatusInactive {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only inactive students can be reactivated")
	}

	var inactivatedOn *string
	if student.InactivatedOn != nil {
		formatted := student.InactivatedOn.Format(dateLayout)
		inactivatedOn = &formatted
	}
	now := s.now().UTC()
	event := &models.LifecycleEvent{
		StudentID:  student.ID,
		Kind:       models.LifecycleReactivated,
		OccurredAt: now,
		Actor:      req.Actor,
		Reason:     cleanReason(req.Reason),
		Before:     snapshot(models.StatusSnapshot{Status: student.Status, InactivatedOn: inactivatedOn}),
		After:      snapshot(models.StatusSnapshot{Status: models.StudentStatusActive}),
	}
	transition := repository.StatusTransition{
		StudentID: student.ID,
		From:      models.StudentStatusInactive,
		To:        models.StudentStatusActive,
		At:        now,
	}
	if err := s.commitTransition(ctx, transition, event); err != nil {
		return nil, err
	}
	return event, nil
}

// MarkTransferred moves an active or inactive student to the terminal
// TRANSFERRED status.
func (s *LifecycleService) MarkTransferred(ctx context.Context, req TransferRequest) (*models.LifecycleEvent, error) {
	event, err := s.markTransferred(ctx, req)
	return event, s.reject("transfer", err)
}

func (s *LifecycleService) markTransferred(ctx context.Context, req TransferRequest) (*models.LifecycleEvent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transfer payload")
	}
	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !student.Status.CanTransitionTo(models.StudentStatusTransferred) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "student is already transferred")
	}

	now := s.now().UTC()
	event := &models.LifecycleEvent{
		StudentID:  student.ID,
		Kind:       models.LifecycleTransferred,
		OccurredAt: now,
		Actor:      req.Actor,
		Reason:     cleanReason(req.Reason),
		Before:     snapshot(models.StatusSnapshot{Status: student.Status}),
		After:      snapshot(models.StatusSnapshot{Status: models.StudentStatusTransferred}),
	}
	transition := repository.StatusTransition{
		StudentID: student.ID,
		From:      student.Status,
		To:        models.StudentStatusTransferred,
		At:        now,
	}
	if err := s.commitTransition(ctx, transition, event); err != nil {
		return nil, err
	}
	return event, nil
}

// NullifyFees zeroes every installment that is owed in full with nothing
// paid. Partially paid installments are left for manual settlement. The
// adjusted installments are returned.
func (s *LifecycleService) NullifyFees(ctx context.Context, req NullifyFeesRequest) ([]models.FeeInstallment, error) {
	adjusted, err := s.nullifyFees(ctx, req)
	return adjusted, s.reject("nullify_fees", err)
}

func (s *LifecycleService) nullifyFees(ctx context.Context, req NullifyFeesRequest) ([]models.FeeInstallment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid nullify payload")
	}
	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	adjusted, err := s.fees.ZeroUnpaid(ctx, student.ID, req.Actor)
	if err != nil {
		return nil, s.storeFailure(err, "failed to nullify fees", student.ID)
	}
	if adjusted == nil {
		adjusted = []models.FeeInstallment{}
	}
	s.logger.Info("fees nullified",
		zap.String("student_id", student.ID),
		zap.String("actor", req.Actor),
		zap.Int("installments", len(adjusted)),
	)
	return adjusted, nil
}

// PromoteOne creates the target-year enrollment for a student. The source
// enrollment is left untouched.
func (s *LifecycleService) PromoteOne(ctx context.Context, req PromoteRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, s.reject("promote", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion payload"))
	}
	classExists := func() (bool, error) {
		return s.classes.ExistsByName(ctx, req.TargetClass)
	}
	enrollment, err := s.promote(ctx, req, classExists)
	return enrollment, s.reject("promote", err)
}

// PromoteBulk promotes each distinct student independently. A failing
// student never blocks the others; only request-level validation fails the
// whole call. Both result lists follow input order.
func (s *LifecycleService) PromoteBulk(ctx context.Context, req BulkPromoteRequest) (*models.BulkPromotionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, s.reject("promote_bulk", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk promotion payload"))
	}
	ids := dedupe(req.StudentIDs)
	if len(ids) > s.opts.MaxBulkSize {
		return nil, s.reject("promote_bulk", appErrors.WithDetails(appErrors.ErrValidation, "too many students in one batch", map[string]int{
			"max": s.opts.MaxBulkSize,
			"got": len(ids),
		}))
	}

	classExists := sync.OnceValues(func() (bool, error) {
		return s.classes.ExistsByName(ctx, req.TargetClass)
	})

	contested := contestedRollNumbers(ids, req.RollNumbers)

	outcomes := make([]error, len(ids))
	var g errgroup.Group
	g.SetLimit(s.opts.BulkConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			if contested[id] {
				outcomes[i] = s.reject("promote_bulk", appErrors.Clone(appErrors.ErrDuplicateRollNumber, "roll number requested for more than one student in the batch"))
				return nil
			}
			one := PromoteRequest{
				StudentID:     id,
				SourceYear:    req.SourceYear,
				TargetYear:    req.TargetYear,
				TargetClass:   req.TargetClass,
				TargetSection: req.TargetSection,
				Actor:         req.Actor,
			}
			if roll, ok := req.RollNumbers[id]; ok {
				one.RollNumber = &roll
			}
			_, err := s.promote(ctx, one, classExists)
			outcomes[i] = s.reject("promote_bulk", err)
			return nil
		})
	}
	_ = g.Wait()

	result := &models.BulkPromotionResult{
		Succeeded: []string{},
		Failed:    []models.BulkPromotionFailure{},
	}
	for i, id := range ids {
		if outcomes[i] == nil {
			result.Succeeded = append(result.Succeeded, id)
			continue
		}
		appErr := appErrors.FromError(outcomes[i])
		result.Failed = append(result.Failed, models.BulkPromotionFailure{
			StudentID: id,
			ErrorKind: appErr.Code,
			Message:   appErr.Message,
		})
	}

	s.metrics.ObserveBulkPromotion(len(ids), len(result.Failed))
	s.logger.Info("bulk promotion finished",
		zap.String("target_year", req.TargetYear),
		zap.String("target_class", req.TargetClass),
		zap.String("actor", req.Actor),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *LifecycleService) promote(ctx context.Context, req PromoteRequest, classExists func() (bool, error)) (*models.Enrollment, error) {
	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if student.Status == models.StudentStatusTransferred {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "transferred students cannot be promoted")
	}

	if req.SourceYear == req.TargetYear {
		return nil, appErrors.Clone(appErrors.ErrSameYear, "target academic year equals the source academic year")
	}
	if _, err := s.enrollments.Get(ctx, student.ID, req.TargetYear); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "student already enrolled in "+req.TargetYear)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, s.storeFailure(err, "failed to check target enrollment", student.ID)
	}

	source, err := s.sourceEnrollment(ctx, student.ID, req.SourceYear)
	if err != nil {
		return nil, err
	}

	known, err := classExists()
	if err != nil {
		return nil, s.storeFailure(err, "failed to check class catalog", student.ID)
	}
	if !known {
		return nil, appErrors.Clone(appErrors.ErrUnknownClass, "class "+req.TargetClass+" is not in the catalog")
	}

	section := req.TargetSection
	if section == "" {
		section = source.SectionName
	}
	now := s.now().UTC()
	promotedOn := now
	target := &models.Enrollment{
		StudentID:    student.ID,
		AcademicYear: req.TargetYear,
		ClassName:    req.TargetClass,
		SectionName:  section,
		RollNumber:   req.RollNumber,
		Branch:       source.Branch,
		IsPromoted:   true,
		PromotedDate: &promotedOn,
		CreatedAt:    now,
	}
	event := &models.LifecycleEvent{
		StudentID:  student.ID,
		Kind:       models.LifecyclePromoted,
		OccurredAt: now,
		Actor:      req.Actor,
		Before:     snapshot(models.PlacementOf(*source)),
		After:      snapshot(models.PlacementOf(*target)),
	}

	if err := s.enrollments.CreatePromotion(ctx, target, event); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEnrollment):
			return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "student already enrolled in "+req.TargetYear)
		case errors.Is(err, repository.ErrDuplicateRollNumber):
			return nil, appErrors.Clone(appErrors.ErrDuplicateRollNumber, "")
		}
		return nil, s.storeFailure(err, "failed to record promotion", student.ID)
	}

	s.metrics.RecordTransition(string(models.LifecyclePromoted))
	s.notify(target.AcademicYear, target.Branch)
	s.logger.Info("student promoted",
		zap.String("student_id", student.ID),
		zap.String("from_year", source.AcademicYear),
		zap.String("to_year", target.AcademicYear),
		zap.String("class", target.ClassName),
		zap.String("section", target.SectionName),
		zap.String("actor", req.Actor),
	)
	return target, nil
}

func (s *LifecycleService) sourceEnrollment(ctx context.Context, studentID, year string) (*models.Enrollment, error) {
	var (
		source *models.Enrollment
		err    error
	)
	if year != "" {
		source, err = s.enrollments.Get(ctx, studentID, year)
	} else {
		source, err = s.enrollments.Latest(ctx, studentID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if year != "" {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no enrollment in "+year)
			}
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no enrollment to promote from")
		}
		return nil, s.storeFailure(err, "failed to load source enrollment", studentID)
	}
	return source, nil
}

func (s *LifecycleService) commitTransition(ctx context.Context, t repository.StatusTransition, event *models.LifecycleEvent) error {
	if err := s.students.ApplyTransition(ctx, t, event); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return appErrors.Clone(appErrors.ErrInvalidState, "student status changed concurrently")
		}
		return s.storeFailure(err, "failed to record status change", t.StudentID)
	}
	s.metrics.RecordTransition(string(event.Kind))
	// Status counts appear in every year the student was enrolled.
	s.notify("", "")
	s.logger.Info("student status changed",
		zap.String("student_id", t.StudentID),
		zap.String("kind", string(event.Kind)),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.String("actor", event.Actor),
	)
	return nil
}

func (s *LifecycleService) loadStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, s.storeFailure(err, "failed to load student", id)
	}
	return student, nil
}

func (s *LifecycleService) storeFailure(err error, message, studentID string) error {
	s.logger.Error(message, zap.String("student_id", studentID), zap.Error(err))
	return appErrors.Infrastructure(err, message)
}

func (s *LifecycleService) reject(operation string, err error) error {
	if err != nil {
		s.metrics.RecordRejection(operation, appErrors.Code(err))
	}
	return err
}

func (s *LifecycleService) notify(year, branch string) {
	if s.notifier != nil {
		s.notifier.Notify(year, branch)
	}
}

func cleanReason(reason string) string {
	return sanitize.Limit(sanitize.Text(reason), maxReasonLength)
}

func snapshot(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// contestedRollNumbers marks every batch member whose requested roll number
// is also requested by another member.
func contestedRollNumbers(ids []string, rolls map[string]int) map[string]bool {
	holders := make(map[int]int, len(rolls))
	for _, id := range ids {
		if roll, ok := rolls[id]; ok {
			holders[roll]++
		}
	}
	contested := make(map[string]bool)
	for _, id := range ids {
		if roll, ok := rolls[id]; ok && holders[roll] > 1 {
			contested[id] = true
		}
	}
	return contested
}
