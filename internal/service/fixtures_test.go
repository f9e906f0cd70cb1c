package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	"github.com/noah-isme/tutoring-booking-api/pkg/calendar"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(raw string) {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.now = parsed
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// malformedID is rejected by the stores the way Postgres rejects a bad uuid literal.
const malformedID = "not-a-uuid"

func invalidUUID(id string) error {
	if id == malformedID {
		return &pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"}
	}
	return nil
}

func newTestCalendar(t *testing.T, now string) (*calendar.Calendar, *testClock) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Jerusalem")
	require.NoError(t, err)
	clock := &testClock{}
	clock.Set(now)
	return calendar.NewWithLocation(loc, clock.Now), clock
}

// memoryLessons is an in-memory lesson table. The exec argument is ignored.
type memoryLessons struct {
	mu      sync.Mutex
	seq     int
	rows    map[string]*models.Lesson
	locked  []string
	lockErr error
	stale   []models.Lesson
}

func newMemoryLessons() *memoryLessons {
	return &memoryLessons{rows: make(map[string]*models.Lesson)}
}

func (m *memoryLessons) LockTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lockErr != nil {
		return m.lockErr
	}
	m.locked = append(m.locked, teacherID)
	return nil
}

func (m *memoryLessons) HasActiveAt(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time, startTime string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.rows {
		if l.TeacherID == teacherID && l.Date.Equal(date) && l.StartTime == startTime && l.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryLessons) ActiveSlotKeys(ctx context.Context, teacherID string, from, to time.Time) ([]models.SlotKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []models.SlotKey
	for _, l := range m.rows {
		if l.TeacherID == teacherID && l.Status.Active() && !l.Date.Before(from) && l.Date.Before(to) {
			keys = append(keys, models.SlotKey{Date: l.Date, StartTime: l.StartTime})
		}
	}
	return keys, nil
}

func (m *memoryLessons) Create(ctx context.Context, exec sqlx.ExtContext, lesson *models.Lesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if lesson.ID == "" {
		lesson.ID = fmt.Sprintf("lesson-%d", m.seq)
	}
	lesson.CreatedAt = time.Unix(int64(m.seq), 0).UTC()
	lesson.UpdatedAt = lesson.CreatedAt
	row := *lesson
	m.rows[lesson.ID] = &row
	return nil
}

func (m *memoryLessons) put(lesson models.Lesson) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := lesson
	m.rows[lesson.ID] = &row
}

func (m *memoryLessons) get(id string) models.Lesson {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memoryLessons) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memoryLessons) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	if err := invalidUUID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *row
	return &clone, nil
}

func (m *memoryLessons) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error) {
	return m.FindByID(ctx, id)
}

func (m *memoryLessons) update(id string, from models.LessonStatus, apply func(*models.Lesson)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != from {
		return sql.ErrNoRows
	}
	apply(row)
	return nil
}

func (m *memoryLessons) MarkScheduled(ctx context.Context, exec sqlx.ExtContext, id string, teacherAt, adminAt *time.Time) error {
	return m.update(id, models.LessonStatusPendingApproval, func(l *models.Lesson) {
		l.Status = models.LessonStatusScheduled
		l.ApprovalExpiresAt = nil
		if teacherAt != nil {
			l.ApprovedByTeacherAt = teacherAt
		}
		if adminAt != nil {
			l.ApprovedByAdminAt = adminAt
		}
	})
}

func (m *memoryLessons) MarkCanceled(ctx context.Context, exec sqlx.ExtContext, id string) error {
	return m.update(id, models.LessonStatusPendingApproval, func(l *models.Lesson) {
		l.Status = models.LessonStatusCanceled
		l.ApprovalExpiresAt = nil
	})
}

func (m *memoryLessons) MarkCompleted(ctx context.Context, exec sqlx.ExtContext, id string) error {
	return m.update(id, models.LessonStatusScheduled, func(l *models.Lesson) {
		l.Status = models.LessonStatusCompleted
		l.ReportCompleted = true
	})
}

func (m *memoryLessons) MarkFollowUp(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.Status != models.LessonStatusCompleted || row.FollowUpCompletedAt != nil {
		return sql.ErrNoRows
	}
	row.FollowUpCompletedAt = &at
	return nil
}

func (m *memoryLessons) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale != nil {
		return m.stale, nil
	}
	var out []models.Lesson
	for _, l := range m.rows {
		if l.Status == models.LessonStatusPendingApproval && l.ApprovalExpiresAt != nil && !l.ApprovalExpiresAt.After(now) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryLessons) matching(filter models.LessonFilter) []models.Lesson {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Lesson
	for _, l := range m.rows {
		if filter.TeacherID != "" && l.TeacherID != filter.TeacherID {
			continue
		}
		if filter.StudentID != "" && l.StudentID != filter.StudentID {
			continue
		}
		if filter.StudentIDs != nil && !containsString(filter.StudentIDs, l.StudentID) {
			continue
		}
		if len(filter.Statuses) > 0 {
			ok := false
			for _, s := range filter.Statuses {
				ok = ok || s == l.Status
			}
			if !ok {
				continue
			}
		}
		if filter.From != nil && l.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !l.Date.Before(*filter.To) {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func (m *memoryLessons) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error) {
	rows := m.matching(filter)
	return rows, len(rows), nil
}

func (m *memoryLessons) ListAll(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, error) {
	return m.matching(filter), nil
}

// memorySlots is an in-memory availability table.
type memorySlots struct {
	mu        sync.Mutex
	seq       int
	rows      map[string]*models.Availability
	deleteErr error
}

func newMemorySlots() *memorySlots {
	return &memorySlots{rows: make(map[string]*models.Availability)}
}

func (m *memorySlots) Create(ctx context.Context, exec sqlx.ExtContext, slot *models.Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	slot.ID = fmt.Sprintf("slot-%d", m.seq)
	slot.IsAvailable = true
	slot.CreatedAt = time.Unix(int64(m.seq), 0).UTC()
	row := *slot
	m.rows[slot.ID] = &row
	return nil
}

func (m *memorySlots) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Availability, error) {
	if err := invalidUUID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *row
	return &clone, nil
}

func (m *memorySlots) ListOpen(ctx context.Context, teacherID string, from, to time.Time) ([]models.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Availability
	for _, s := range m.rows {
		if s.TeacherID == teacherID && s.IsAvailable && !s.Date.Before(from) && s.Date.Before(to) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (m *memorySlots) ListOnDate(ctx context.Context, exec sqlx.ExtContext, teacherID string, date time.Time) ([]models.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Availability
	for _, s := range m.rows {
		if s.TeacherID == teacherID && s.Date.Equal(date) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memorySlots) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.rows, id)
	return nil
}

func (m *memorySlots) DeleteOwned(ctx context.Context, id, teacherID string) (bool, error) {
	if err := invalidUUID(id); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok || row.TeacherID != teacherID {
		return false, nil
	}
	delete(m.rows, id)
	return true, nil
}

func (m *memorySlots) Restore(ctx context.Context, exec sqlx.ExtContext, slot *models.Availability) (bool, error) {
	m.mu.Lock()
	for _, s := range m.rows {
		if s.TeacherID == slot.TeacherID && s.Date.Equal(slot.Date) && s.StartTime == slot.StartTime && s.EndTime == slot.EndTime && s.IsAvailable {
			m.mu.Unlock()
			return false, nil
		}
	}
	m.mu.Unlock()
	return true, m.Create(ctx, exec, slot)
}

func (m *memorySlots) windows(teacherID string, date time.Time, start, end string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.rows {
		if s.TeacherID == teacherID && s.Date.Equal(date) && s.StartTime == start && s.EndTime == end && s.IsAvailable {
			n++
		}
	}
	return n
}

func (m *memorySlots) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memoryUsers struct {
	rows map[string]models.User
}

func newMemoryUsers(users ...models.User) *memoryUsers {
	m := &memoryUsers{rows: make(map[string]models.User)}
	for _, u := range users {
		m.rows[u.ID] = u
	}
	return m
}

func (m *memoryUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if err := invalidUUID(id); err != nil {
		return nil, err
	}
	u, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (m *memoryUsers) ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	var out []models.User
	for _, u := range m.rows {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryUsers) UpdateRole(ctx context.Context, exec sqlx.ExtContext, id string, role models.UserRole) error {
	u, ok := m.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	m.rows[id] = u
	return nil
}

type memoryProfiles struct {
	teachers map[string]models.TeacherProfile
	students map[string]models.StudentProfile
	ensured  []string
}

func newMemoryProfiles() *memoryProfiles {
	return &memoryProfiles{teachers: map[string]models.TeacherProfile{}, students: map[string]models.StudentProfile{}}
}

func (m *memoryProfiles) FindTeacherProfile(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	p, ok := m.teachers[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m *memoryProfiles) EnsureTeacherProfile(ctx context.Context, exec sqlx.ExtContext, userID, displayName string) error {
	m.ensured = append(m.ensured, userID)
	if _, ok := m.teachers[userID]; !ok {
		m.teachers[userID] = models.TeacherProfile{UserID: userID, DisplayName: displayName}
	}
	return nil
}

func (m *memoryProfiles) UpsertTeacherProfile(ctx context.Context, profile *models.TeacherProfile) error {
	m.teachers[profile.UserID] = *profile
	return nil
}

func (m *memoryProfiles) ListTeachers(ctx context.Context) ([]models.TeacherListing, error) {
	return nil, nil
}

func (m *memoryProfiles) FindStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	p, ok := m.students[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m *memoryProfiles) UpsertStudentProfile(ctx context.Context, profile *models.StudentProfile) error {
	m.students[profile.UserID] = *profile
	return nil
}

func (m *memoryProfiles) ListChildIDs(ctx context.Context, parentID string) ([]string, error) {
	var ids []string
	for id, p := range m.students {
		if p.ParentID != nil && *p.ParentID == parentID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type sentNotification struct {
	kind       string
	recipients []models.Recipient
	facts      models.LessonFacts
	attachment *Attachment
}

// recordingNotifier captures deliveries. err and panicMsg make it fail.
type recordingNotifier struct {
	mu       sync.Mutex
	sent     []sentNotification
	err      error
	panicMsg string
}

func (n *recordingNotifier) record(s sentNotification) error {
	if n.panicMsg != "" {
		panic(n.panicMsg)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, s)
	return n.err
}

func (n *recordingNotifier) NotifyBookingConfirmed(ctx context.Context, recipients []models.Recipient, facts models.LessonFacts) error {
	return n.record(sentNotification{kind: notifyBookingConfirmed, recipients: recipients, facts: facts})
}

func (n *recordingNotifier) NotifyLessonCompleted(ctx context.Context, recipients []models.Recipient, facts models.LessonFacts, attachment *Attachment) error {
	return n.record(sentNotification{kind: notifyLessonCompleted, recipients: recipients, facts: facts, attachment: attachment})
}

func (n *recordingNotifier) NotifyScreeningFollowUp(ctx context.Context, recipient models.Recipient, facts models.LessonFacts) error {
	return n.record(sentNotification{kind: notifyScreeningFollow, recipients: []models.Recipient{recipient}, facts: facts})
}

func (n *recordingNotifier) ofKind(kind string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func strPtr(v string) *string { return &v }

func dtoRange(from, to string) dto.AvailabilityQuery {
	return dto.AvailabilityQuery{From: from, To: to}
}

func claimFor(studentID string) dto.ClaimSlotRequest {
	return dto.ClaimSlotRequest{StudentID: studentID}
}

var (
	teacherAlice = models.User{ID: "teacher-1", Email: "alice@example.com", FullName: "Alice Teacher", Role: models.RoleTeacher}
	teacherBen   = models.User{ID: "teacher-2", Email: "ben@example.com", FullName: "Ben Teacher", Role: models.RoleTeacher}
	studentSam   = models.User{ID: "student-1", Email: "sam@example.com", FullName: "Sam Student", Role: models.RoleStudent}
	studentTal   = models.User{ID: "student-2", Email: "tal@example.com", FullName: "Tal Student", Role: models.RoleStudent}
	parentPat    = models.User{ID: "parent-1", Email: "pat@example.com", FullName: "Pat Parent", Role: models.RoleParent}
	adminAda     = models.User{ID: "admin-1", Email: "ada@example.com", FullName: "Ada Admin", Role: models.RoleAdmin}
)

func actorOf(u models.User) models.Actor {
	return models.Actor{UserID: u.ID, Role: u.Role, Email: u.Email}
}

// bookingWorld wires the booking services over in-memory stores and a sqlmock transaction
// provider, mirroring the production graph.
type bookingWorld struct {
	clock         *testClock
	cal           *calendar.Calendar
	mock          sqlmock.Sqlmock
	lessons       *memoryLessons
	slots         *memorySlots
	users         *memoryUsers
	profiles      *memoryProfiles
	notifier      *recordingNotifier
	policy        *AdminPolicy
	notifications *NotificationService
	availability  *AvailabilityService
	booking       *BookingService
	reconciler    *LessonReconciler
	summaries     *memorySummaries
	completion    *CompletionService
	queries       *LessonQueryService
}

func newBookingWorld(t *testing.T, now string) *bookingWorld {
	t.Helper()
	cal, clock := newTestCalendar(t, now)
	tx, mock := newTxProviderMock(t)
	w := &bookingWorld{
		clock:    clock,
		cal:      cal,
		mock:     mock,
		lessons:  newMemoryLessons(),
		slots:    newMemorySlots(),
		users:    newMemoryUsers(teacherAlice, teacherBen, studentSam, studentTal, parentPat, adminAda),
		profiles: newMemoryProfiles(),
		notifier: &recordingNotifier{},
		policy:   NewAdminPolicy([]string{"ben@example.com"}),
	}
	w.profiles.students[studentSam.ID] = models.StudentProfile{UserID: studentSam.ID, ParentID: strPtr(parentPat.ID)}

	w.notifications = NewNotificationService(w.notifier, w.users, w.profiles, w.policy, cal, nil, nil)
	w.availability = NewAvailabilityService(w.slots, w.lessons, w.users, nil, cal, nil, nil, AvailabilityConfig{})
	w.booking = NewBookingService(tx, w.lessons, w.slots, w.users, w.profiles, w.notifications, nil, cal, nil, nil, nil, BookingConfig{})
	w.reconciler = NewLessonReconciler(tx, w.lessons, w.availability, w.policy, w.notifications, nil, nil, cal, nil, nil, ReconcilerConfig{})
	w.summaries = newMemorySummaries()
	w.completion = NewCompletionService(tx, w.lessons, w.summaries, nil, w.notifications, w.profiles, w.policy, cal, nil, nil, nil)
	w.queries = NewLessonQueryService(w.lessons, w.users, w.profiles, w.policy, cal, nil, nil)
	return w
}

func (w *bookingWorld) expectCommit() {
	w.mock.ExpectBegin()
	w.mock.ExpectCommit()
}

func (w *bookingWorld) expectRollback() {
	w.mock.ExpectBegin()
	w.mock.ExpectRollback()
}

type memorySummaries struct {
	mu   sync.Mutex
	rows map[string]*models.LessonSummary
}

func newMemorySummaries() *memorySummaries {
	return &memorySummaries{rows: make(map[string]*models.LessonSummary)}
}

func (m *memorySummaries) Create(ctx context.Context, exec sqlx.ExtContext, summary *models.LessonSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[summary.LessonID]; ok {
		return fmt.Errorf("duplicate summary for %s", summary.LessonID)
	}
	summary.ID = "summary-" + summary.LessonID
	row := *summary
	m.rows[summary.LessonID] = &row
	return nil
}

func (m *memorySummaries) FindByLessonID(ctx context.Context, lessonID string) (*models.LessonSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[lessonID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *row
	return &clone, nil
}

func (m *memorySummaries) SetPDFURL(ctx context.Context, lessonID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[lessonID]
	if !ok {
		return sql.ErrNoRows
	}
	row.PDFURL = &url
	return nil
}
