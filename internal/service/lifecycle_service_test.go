package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/student-lifecycle-api/internal/models"
	"github.com/noah-isme/student-lifecycle-api/internal/repository"
	appErrors "github.com/noah-isme/student-lifecycle-api/pkg/errors"
)

// memoryLifecycleStore backs students, enrollments, fees and the class
// catalog with maps and enforces the (student, year) and roll number
// uniqueness the database constraints provide.
type memoryLifecycleStore struct {
	mu          sync.Mutex
	students    map[string]models.Student
	enrollments map[string]map[string]models.Enrollment
	fees        map[string][]models.FeeInstallment
	classes     map[string]bool
	events      []models.LifecycleEvent

	findErr    error
	createErr  error
	classErr   error
	classCalls int
}

func newMemoryLifecycleStore() *memoryLifecycleStore {
	return &memoryLifecycleStore{
		students:    map[string]models.Student{},
		enrollments: map[string]map[string]models.Enrollment{},
		fees:        map[string][]models.FeeInstallment{},
		classes:     map[string]bool{"5": true, "6": true},
	}
}

func (m *memoryLifecycleStore) addStudent(id string, status models.StudentStatus) {
	m.students[id] = models.Student{ID: id, AdmissionNo: "ADM-" + id, FullName: "Student " + id, Status: status}
}

func (m *memoryLifecycleStore) addEnrollment(e models.Enrollment) {
	if m.enrollments[e.StudentID] == nil {
		m.enrollments[e.StudentID] = map[string]models.Enrollment{}
	}
	if e.ID == "" {
		e.ID = e.StudentID + "/" + e.AcademicYear
	}
	m.enrollments[e.StudentID][e.AcademicYear] = e
}

func (m *memoryLifecycleStore) student(id string) models.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.students[id]
}

func (m *memoryLifecycleStore) enrollmentsOf(id string) map[string]models.Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Enrollment, len(m.enrollments[id]))
	for year, e := range m.enrollments[id] {
		out[year] = e
	}
	return out
}

func (m *memoryLifecycleStore) eventsOf(id string) []models.LifecycleEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LifecycleEvent
	for _, e := range m.events {
		if e.StudentID == id {
			out = append(out, e)
		}
	}
	return out
}

func (m *memoryLifecycleStore) FindByID(ctx context.Context, id string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	st, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &st, nil
}

func (m *memoryLifecycleStore) ApplyTransition(ctx context.Context, t repository.StatusTransition, event *models.LifecycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[t.StudentID]
	if !ok || st.Status != t.From {
		return repository.ErrStatusConflict
	}
	st.Status = t.To
	if t.To != models.StudentStatusTransferred {
		st.InactivatedOn = t.InactivatedOn
		st.InactivationReason = t.Reason
		st.InactivatedBy = t.Actor
	}
	m.students[t.StudentID] = st
	m.events = append(m.events, *event)
	return nil
}

func (m *memoryLifecycleStore) Get(ctx context.Context, studentID, academicYear string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[studentID][academicYear]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (m *memoryLifecycleStore) Latest(ctx context.Context, studentID string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Enrollment
	for _, e := range m.enrollments[studentID] {
		if latest == nil || e.AcademicYear > latest.AcademicYear {
			copied := e
			latest = &copied
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	return latest, nil
}

func (m *memoryLifecycleStore) CreatePromotion(ctx context.Context, enrollment *models.Enrollment, event *models.LifecycleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.enrollments[enrollment.StudentID][enrollment.AcademicYear]; ok {
		return repository.ErrDuplicateEnrollment
	}
	if enrollment.RollNumber != nil {
		for _, years := range m.enrollments {
			e, ok := years[enrollment.AcademicYear]
			if ok && e.ClassName == enrollment.ClassName && e.SectionName == enrollment.SectionName &&
				e.RollNumber != nil && *e.RollNumber == *enrollment.RollNumber {
				return repository.ErrDuplicateRollNumber
			}
		}
	}
	if enrollment.ID == "" {
		enrollment.ID = enrollment.StudentID + "/" + enrollment.AcademicYear
	}
	m.addEnrollment(*enrollment)
	m.events = append(m.events, *event)
	return nil
}

func (m *memoryLifecycleStore) Installments(ctx context.Context, studentID, academicYear string) ([]models.FeeInstallment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FeeInstallment
	for _, f := range m.fees[studentID] {
		if academicYear == "" || f.AcademicYear == academicYear {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memoryLifecycleStore) ZeroUnpaid(ctx context.Context, studentID, actor string) ([]models.FeeInstallment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var adjusted []models.FeeInstallment
	for i, f := range m.fees[studentID] {
		if !f.Nullifiable() {
			continue
		}
		f.Concession = f.TotalFee
		f.DueAmount = 0
		f.Status = models.FeeStatusPaid
		m.fees[studentID][i] = f
		adjusted = append(adjusted, f)
	}
	return adjusted, nil
}

func (m *memoryLifecycleStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classCalls++
	if m.classErr != nil {
		return false, m.classErr
	}
	return m.classes[name], nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][2]string
}

func (n *recordingNotifier) Notify(academicYear, branch string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, [2]string{academicYear, branch})
}

func newLifecycleFixture(t *testing.T) (*LifecycleService, *memoryLifecycleStore, *recordingNotifier) {
	t.Helper()
	store := newMemoryLifecycleStore()
	notifier := &recordingNotifier{}
	svc := NewLifecycleService(store, store, store, store, notifier, NewMetricsService(), nil, zap.NewNop(), LifecycleOptions{BulkConcurrency: 4, MaxBulkSize: 10})
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC) }
	return svc, store, notifier
}

func assertCode(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want.Code, appErrors.Code(err), err.Error())
}

func TestDeactivateWithClearedDues(t *testing.T) {
	svc, store, notifier := newLifecycleFixture(t)
	store.addStudent("42", models.StudentStatusActive)
	store.addEnrollment(models.Enrollment{StudentID: "42", AcademicYear: "2024-2025", ClassName: "5", SectionName: "A"})
	store.fees["42"] = []models.FeeInstallment{{ID: "f1", StudentID: "42", AcademicYear: "2024-2025", TotalFee: 5000, PaidAmount: 5000}}

	event, err := svc.Deactivate(context.Background(), DeactivateRequest{
		StudentID: "42", EffectiveDate: "2025-06-01", Reason: "left <b>city</b>", Actor: "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleDeactivated, event.Kind)
	assert.Equal(t, "left city", event.Reason)

	st := store.student("42")
	assert.Equal(t, models.StudentStatusInactive, st.Status)
	require.NotNil(t, st.InactivatedOn)
	assert.Equal(t, "2025-06-01", st.InactivatedOn.Format(dateLayout))
	require.NotNil(t, st.InactivatedBy)
	assert.Equal(t, "admin-1", *st.InactivatedBy)

	events := store.eventsOf("42")
	require.Len(t, events, 1)
	var after models.StatusSnapshot
	require.NoError(t, json.Unmarshal(events[0].After, &after))
	assert.Equal(t, models.StudentStatusInactive, after.Status)
	assert.Len(t, notifier.calls, 1)
}

func TestDeactivateBlockedByOutstandingDues(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	store.addStudent("43", models.StudentStatusActive)
	store.addEnrollment(models.Enrollment{StudentID: "43", AcademicYear: "2024-2025", ClassName: "5", SectionName: "A"})
	store.fees["43"] = []models.FeeInstallment{{ID: "f1", StudentID: "43", Title: "Term 1", AcademicYear: "2024-2025", TotalFee: 5000, PaidAmount: 2000, DueAmount: 3000}}

	_, err := svc.Deactivate(context.Background(), DeactivateRequest{
		StudentID: "43", EffectiveDate: "2025-06-01", Reason: "left city", Actor: "admin-1",
	})
	assertCode(t, err, appErrors.ErrFeeBlock)
	details, ok := appErrors.FromError(err).Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 3000.0, details["total_due"])
	assert.Len(t, details["installments"], 1)

	assert.Equal(t, models.StudentStatusActive, store.student("43").Status)
	assert.Empty(t, store.eventsOf("43"))
}

func TestDeactivateOnlyChecksCurrentYearDues(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	store.addStudent("44", models.StudentStatusActive)
	store.addEnrollment(models.Enrollment{StudentID: "44", AcademicYear: "2024-2025", ClassName: "5"})
	store.fees["44"] = []models.FeeInstallment{{ID: "old", AcademicYear: "2023-2024", TotalFee: 100, DueAmount: 100}}

	_, err := svc.Deactivate(context.Background(), DeactivateRequest{
		StudentID: "44", EffectiveDate: "2025-06-01", Reason: "moved", Actor: "admin-1",
	})
	require.NoError(t, err)
}

func TestDeactivateRejections(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	store.addStudent("inactive", models.StudentStatusInactive)

	_, err := svc.Deactivate(context.Background(), DeactivateRequest{StudentID: "inactive", EffectiveDate: "2025-06-01", Reason: "x", Actor: "a"})
	assertCode(t, err, appErrors.ErrInvalidState)

	_, err = svc.Deactivate(context.Background(), DeactivateRequest{StudentID: "missing", EffectiveDate: "2025-06-01", Reason: "x", Actor: "a"})
	assertCode(t, err, appErrors.ErrNotFound)

	_, err = svc.Deactivate(context.Background(), DeactivateRequest{StudentID: "inactive", EffectiveDate: "2025-13-40", Reason: "x", Actor: "a"})
	assertCode(t, err, appErrors.ErrValidation)
}

func TestReactivateIsOneShot(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	store.addStudent("7", models.StudentStatusInactive)

	event, err := svc.Reactivate(context.Background(), ReactivateRequest{StudentID: "7", Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleReactivated, event.Kind)
	st := store.student("7")
	assert.Equal(t, models.StudentStatusActive, st.Status)
	assert.Nil(t, st.InactivatedOn)

	_, err = svc.Reactivate(context.Background(), ReactivateRequest{StudentID: "7", Actor: "admin-1"})
	assertCode(t, err, appErrors.ErrInvalidState)
	assert.Len(t, store.eventsOf("7"), 1)
}

func TestReactivateIgnoresDues(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	store.addStudent("8", models.StudentStatusInactive)
	store.fees["8"] = []models.FeeInstallment{{ID: "f", TotalFee: 10, DueAmount: 10}}

	_, err := svc.Reactivate(context.Background(), ReactivateRequest{StudentID: "8", Actor: "admin-1"})
	require.NoError(t, err)
}

func TestMarkTransferredIsTerminal(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	store.addStudent("9", models.StudentStatusInactive)

	_, err := svc.MarkTransferred(context.Background(), TransferRequest{StudentID: "9", Reason: "TC issued", Actor: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusTransferred, store.student("9").Status)

	_, err = svc.MarkTransferred(context.Background(), TransferRequest{StudentID: "9", Reason: "again", Actor: "admin-1"})
	assertCode(t, err, appErrors.ErrInvalidState)
	_, err = svc.Reactivate(context.Background(), ReactivateRequest{StudentID: "9", Actor: "admin-1"})
	assertCode(t, err, appErrors.ErrInvalidState)
}

func TestNullifyFeesUnblocksDeactivation(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	store.addStudent("50", models.StudentStatusActive)
	store.addEnrollment(models.Enrollment{StudentID: "50", AcademicYear: "2024-2025", ClassName: "5"})
	store.fees["50"] = []models.FeeInstallment{
		{ID: "unpaid", AcademicYear: "2024-2025", TotalFee: 1200, DueAmount: 1200},
		{ID: "partial", AcademicYear: "2024-2025", TotalFee: 1000, PaidAmount: 400, DueAmount: 600},
	}

	adjusted, err := svc.NullifyFees(context.Background(), NullifyFeesRequest{StudentID: "50", Actor: "admin-1"})
	require.NoError(t, err)
	require.Len(t, adjusted, 1)
	assert.Equal(t, "unpaid", adjusted[0].ID)
	assert.Equal(t, 1200.0, adjusted[0].Concession)
	assert.Equal(t, models.FeeStatusPaid, adjusted[0].Status)

	_, err = svc.Deactivate(context.Background(), DeactivateRequest{StudentID: "50", EffectiveDate: "2025-06-01", Reason: "x", Actor: "admin-1"})
	assertCode(t, err, appErrors.ErrFeeBlock)

	store.fees["50"] = store.fees["50"][:1]
	_, err = svc.Deactivate(context.Background(), DeactivateRequest{StudentID: "50", EffectiveDate: "2025-06-01", Reason: "x", Actor: "admin-1"})
	require.NoError(t, err)
}

func TestPromoteOneKeepsSourceEnrollment(t *testing.T) {
	svc, store, notifier := newLifecycleFixture(t)
	roll := 3
	store.addStudent("10", models.StudentStatusActive)
	store.addEnrollment(models.Enrollment{StudentID: "10", AcademicYear: "2024-2025", ClassName: "5", SectionName: "B", RollNumber: &roll, Branch: "north"})
	before := store.enrollmentsOf("10")["2024-2025"]

	created, err := svc.PromoteOne(context.Background(), PromoteRequest{
		StudentID: "10", TargetYear: "2025-2026", TargetClass: "6", Actor: "admin-1",
	})
	require.NoError(t, err)
	assert.True(t, created.IsPromoted)
	require.NotNil(t, created.PromotedDate)
	assert.Equal(t, "B", created.SectionName)
	assert.Equal(t, "north", created.Branch)
	assert.Nil(t, created.RollNumber)

	rows := store.enrollmentsOf("10")
	assert.Equal(t, before, rows["2024-2025"])
	assert.Equal(t, *created, rows["2025-2026"])
	assert.Equal(t, [][2]string{{"2025-2026", "north"}}, notifier.calls)

	events := store.eventsOf("10")
	require.Len(t, events, 1)
	var placement models.PlacementSnapshot
	require.NoError(t, json.Unmarshal(events[0].Before, &placement))
	assert.Equal(t, "2024-2025", placement.AcademicYear)
}

func TestPromoteOneRejections(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	store.addStudent("1", models.StudentStatusActive)
	store.addEnrollment(models.Enrollment{StudentID: "1", AcademicYear: "2024-2025", ClassName: "5"})
	store.addStudent("2", models.StudentStatusTransferred)
	store.addEnrollment(models.Enrollment{StudentID: "2", AcademicYear: "2024-2025", ClassName: "5"})
	store.addStudent("3", models.StudentStatusActive)

	cases := []struct {
		name string
		req  PromoteRequest
		want *appErrors.Error
	}{
		{"same year", PromoteRequest{StudentID: "1", SourceYear: "2024-2025", TargetYear: "2024-2025", TargetClass: "6"}, appErrors.ErrSameYear},
		{"already enrolled in target", PromoteRequest{StudentID: "1", TargetYear: "2024-2025", TargetClass: "6"}, appErrors.ErrDuplicateEnrollment},
		{"unknown class", PromoteRequest{StudentID: "1", TargetYear: "2025-2026", TargetClass: "12"}, appErrors.ErrUnknownClass},
		{"transferred", PromoteRequest{StudentID: "2", TargetYear: "2025-2026", TargetClass: "6"}, appErrors.ErrInvalidState},
		{"no enrollment", PromoteRequest{StudentID: "3", TargetYear: "2025-2026", TargetClass: "6"}, appErrors.ErrNotFound},
		{"missing student", PromoteRequest{StudentID: "404", TargetYear: "2025-2026", TargetClass: "6"}, appErrors.ErrNotFound},
		{"malformed year", PromoteRequest{StudentID: "1", TargetYear: "2025-2027", TargetClass: "6"}, appErrors.ErrValidation},
		{"missing source year", PromoteRequest{StudentID: "1", SourceYear: "2023-2024", TargetYear: "2025-2026", TargetClass: "6"}, appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.Actor = "admin-1"
			_, err := svc.PromoteOne(context.Background(), tc.req)
			assertCode(t, err, tc.want)
		})
	}
	assert.Len(t, store.enrollmentsOf("1"), 1)
}

func TestPromoteOneDuplicateRollNumber(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	roll := 1
	store.addStudent("1", models.StudentStatusActive)
	store.addEnrollment(models.Enrollment{StudentID: "1", AcademicYear: "2024-2025", ClassName: "5", SectionName: "A"})
	store.addEnrollment(models.Enrollment{StudentID: "other", AcademicYear: "2025-2026", ClassName: "6", SectionName: "A", RollNumber: &roll})

	_, err := svc.PromoteOne(context.Background(), PromoteRequest{
		StudentID: "1", TargetYear: "2025-2026", TargetClass: "6", TargetSection: "A", RollNumber: &roll, Actor: "admin-1",
	})
	assertCode(t, err, appErrors.ErrDuplicateRollNumber)
}

func TestPromoteOneConcurrentCallsCommitOnce(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	store.addStudent("1", models.StudentStatusActive)
	store.addEnrollment(models.Enrollment{StudentID: "1", AcademicYear: "2024-2025", ClassName: "5", SectionName: "A"})

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = svc.PromoteOne(context.Background(), PromoteRequest{
				StudentID: "1", TargetYear: "2025-2026", TargetClass: "6", Actor: "admin-1",
			})
		}()
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, appErrors.ErrDuplicateEnrollment), err.Error())
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, store.enrollmentsOf("1"), 2)
}

func seedBulkScenario(store *memoryLifecycleStore) {
	for _, id := range []string{"10", "11"} {
		store.addStudent(id, models.StudentStatusActive)
		store.addEnrollment(models.Enrollment{StudentID: id, AcademicYear: "2024-2025", ClassName: "5", SectionName: "A"})
	}
	store.addEnrollment(models.Enrollment{StudentID: "11", AcademicYear: "2025-2026", ClassName: "6", SectionName: "B"})
}

func TestPromoteBulkIsolatesFailures(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	seedBulkScenario(store)
	before11 := store.enrollmentsOf("11")

	result, err := svc.PromoteBulk(context.Background(), BulkPromoteRequest{
		StudentIDs: []string{"10", "11"}, SourceYear: "2024-2025", TargetYear: "2025-2026",
		TargetClass: "6", TargetSection: "A", Actor: "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "11", result.Failed[0].StudentID)
	assert.Equal(t, appErrors.ErrDuplicateEnrollment.Code, result.Failed[0].ErrorKind)

	assert.Len(t, store.enrollmentsOf("10"), 2)
	assert.Equal(t, before11, store.enrollmentsOf("11"))
}

func TestPromoteBulkReportsDuplicatesFromLatestEnrollment(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	seedBulkScenario(store)
	before11 := store.enrollmentsOf("11")

	result, err := svc.PromoteBulk(context.Background(), BulkPromoteRequest{
		StudentIDs: []string{"10", "11"}, TargetYear: "2025-2026",
		TargetClass: "6", TargetSection: "A", Actor: "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "11", result.Failed[0].StudentID)
	assert.Equal(t, appErrors.ErrDuplicateEnrollment.Code, result.Failed[0].ErrorKind)
	assert.Equal(t, before11, store.enrollmentsOf("11"))
}

func TestPromoteBulkOutcomeIndependentOfOrder(t *testing.T) {
	outcomes := func(ids []string) map[string]string {
		svc, store, _ := newLifecycleFixture(t)
		seedBulkScenario(store)
		store.addStudent("12", models.StudentStatusTransferred)
		store.addEnrollment(models.Enrollment{StudentID: "12", AcademicYear: "2024-2025", ClassName: "5"})

		result, err := svc.PromoteBulk(context.Background(), BulkPromoteRequest{
			StudentIDs: ids, SourceYear: "2024-2025", TargetYear: "2025-2026", TargetClass: "6", Actor: "admin-1",
		})
		require.NoError(t, err)
		out := map[string]string{}
		for _, id := range result.Succeeded {
			out[id] = "ok"
		}
		for _, f := range result.Failed {
			out[f.StudentID] = f.ErrorKind
		}
		return out
	}

	forward := outcomes([]string{"10", "11", "12", "404"})
	backward := outcomes([]string{"404", "12", "11", "10"})
	assert.Equal(t, forward, backward)
	assert.Equal(t, "ok", forward["10"])
	assert.Equal(t, appErrors.ErrNotFound.Code, forward["404"])
	assert.Equal(t, appErrors.ErrInvalidState.Code, forward["12"])
}

func TestPromoteBulkKeepsInputOrderAndDedupes(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	ids := []string{"c", "a", "b", "a", "d"}
	for _, id := range []string{"a", "b", "c", "d"} {
		store.addStudent(id, models.StudentStatusActive)
		store.addEnrollment(models.Enrollment{StudentID: id, AcademicYear: "2024-2025", ClassName: "5", SectionName: "A"})
	}

	result, err := svc.PromoteBulk(context.Background(), BulkPromoteRequest{
		StudentIDs: ids, TargetYear: "2025-2026", TargetClass: "6",
		RollNumbers: map[string]int{"a": 1, "b": 2, "c": 3}, Actor: "admin-1",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a", "b", "d"}, result.Succeeded)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1, store.classCalls)
}

func TestPromoteBulkFailsEveryStudentSharingARollNumber(t *testing.T) {
	run := func(ids []string) *models.BulkPromotionResult {
		svc, store, _ := newLifecycleFixture(t)
		svc.opts.BulkConcurrency = 1
		for _, id := range []string{"a", "b", "c"} {
			store.addStudent(id, models.StudentStatusActive)
			store.addEnrollment(models.Enrollment{StudentID: id, AcademicYear: "2024-2025", ClassName: "5", SectionName: "A"})
		}
		result, err := svc.PromoteBulk(context.Background(), BulkPromoteRequest{
			StudentIDs: ids, TargetYear: "2025-2026", TargetClass: "6", TargetSection: "A",
			RollNumbers: map[string]int{"a": 1, "b": 1, "c": 2}, Actor: "admin-1",
		})
		require.NoError(t, err)
		for _, id := range []string{"a", "b"} {
			assert.Len(t, store.enrollmentsOf(id), 1, id)
		}
		return result
	}

	for _, ids := range [][]string{{"a", "b", "c"}, {"b", "a", "c"}} {
		result := run(ids)
		assert.Equal(t, []string{"c"}, result.Succeeded)
		assert.Equal(t, []string{ids[0], ids[1]}, failedIDs(result))
		for _, f := range result.Failed {
			assert.Equal(t, appErrors.ErrDuplicateRollNumber.Code, f.ErrorKind)
		}
	}
}

func TestPromoteBulkRequestValidation(t *testing.T) {
	svc, _, _ := newLifecycleFixture(t)

	_, err := svc.PromoteBulk(context.Background(), BulkPromoteRequest{TargetYear: "2025-2026", TargetClass: "6", Actor: "a"})
	assertCode(t, err, appErrors.ErrValidation)

	tooMany := make([]string, 11)
	for i := range tooMany {
		tooMany[i] = string(rune('a' + i))
	}
	_, err = svc.PromoteBulk(context.Background(), BulkPromoteRequest{StudentIDs: tooMany, TargetYear: "2025-2026", TargetClass: "6", Actor: "a"})
	assertCode(t, err, appErrors.ErrValidation)
}

func TestInfrastructureFailuresAreRetryable(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	store.findErr = errors.New("connection refused")

	_, err := svc.Deactivate(context.Background(), DeactivateRequest{StudentID: "1", EffectiveDate: "2025-06-01", Reason: "x", Actor: "a"})
	assertCode(t, err, appErrors.ErrInfrastructure)
	assert.True(t, appErrors.Retryable(err))

	result, err := svc.PromoteBulk(context.Background(), BulkPromoteRequest{StudentIDs: []string{"1", "2"}, TargetYear: "2025-2026", TargetClass: "6", Actor: "a"})
	require.NoError(t, err)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, appErrors.ErrInfrastructure.Code, result.Failed[0].ErrorKind)
}

func TestDomainRejectionsAreNotRetryable(t *testing.T) {
	svc, store, _ := newLifecycleFixture(t)
	store.addStudent("1", models.StudentStatusActive)
	store.addEnrollment(models.Enrollment{StudentID: "1", AcademicYear: "2024-2025", ClassName: "5"})
	store.createErr = errors.New("disk full")

	_, err := svc.PromoteOne(context.Background(), PromoteRequest{StudentID: "1", TargetYear: "2024-2025", TargetClass: "6", Actor: "a"})
	assert.False(t, appErrors.Retryable(err))

	_, err = svc.PromoteOne(context.Background(), PromoteRequest{StudentID: "1", TargetYear: "2025-2026", TargetClass: "6", Actor: "a"})
	assert.True(t, appErrors.Retryable(err))
}

func failedIDs(result *models.BulkPromotionResult) []string {
	ids := make([]string, 0, len(result.Failed))
	for _, f := range result.Failed {
		ids = append(ids, f.StudentID)
	}
	return ids
}
