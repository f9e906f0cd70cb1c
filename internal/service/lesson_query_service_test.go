package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
)

func seedQueryLessons(t *testing.T, w *bookingWorld) {
	t.Helper()
	day2, _ := w.cal.ParseDay("2025-03-02")
	day3, _ := w.cal.ParseDay("2025-03-03")
	expires := w.clock.Now().Add(-time.Minute)
	w.lessons.put(models.Lesson{ID: "l1", TeacherID: teacherAlice.ID, StudentID: studentSam.ID, BookedBy: studentSam.ID, Date: day2, StartTime: "10:00", EndTime: "10:45", Status: models.LessonStatusScheduled})
	w.lessons.put(models.Lesson{ID: "l2", TeacherID: teacherBen.ID, StudentID: studentTal.ID, BookedBy: studentTal.ID, Date: day3, StartTime: "09:00", EndTime: "10:00", Status: models.LessonStatusPendingApproval, ApprovalExpiresAt: &expires})
	w.lessons.put(models.Lesson{ID: "l3", TeacherID: teacherAlice.ID, StudentID: studentTal.ID, BookedBy: studentTal.ID, Date: day3, StartTime: "12:00", EndTime: "13:00", Status: models.LessonStatusCanceled})
}

func lessonIDs(lessons []models.Lesson) []string {
	ids := make([]string, 0, len(lessons))
	for _, l := range lessons {
		ids = append(ids, l.ID)
	}
	return ids
}

func TestListLessonsScopedByRole(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	seedQueryLessons(t, w)

	cases := []struct {
		actor models.User
		want  []string
	}{
		{actor: teacherAlice, want: []string{"l1", "l3"}},
		{actor: studentTal, want: []string{"l2", "l3"}},
		{actor: parentPat, want: []string{"l1"}},
		{actor: adminAda, want: []string{"l1", "l2", "l3"}},
		{actor: teacherBen, want: []string{"l1", "l2", "l3"}},
	}
	for _, tc := range cases {
		t.Run(tc.actor.ID, func(t *testing.T) {
			lessons, page, err := w.queries.List(context.Background(), actorOf(tc.actor), dto.LessonListQuery{})
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.want, lessonIDs(lessons))
			assert.Equal(t, len(tc.want), page.TotalCount)
			assert.Equal(t, 1, page.Page)
			assert.Equal(t, 20, page.PageSize)
		})
	}
}

func TestListLessonsFilters(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	seedQueryLessons(t, w)

	lessons, _, err := w.queries.List(context.Background(), actorOf(adminAda), dto.LessonListQuery{From: "2025-03-03", To: "2025-03-03"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"l2", "l3"}, lessonIDs(lessons))
	for _, l := range lessons {
		assert.Equal(t, "2025-03-03", l.Day)
	}

	lessons, _, err = w.queries.List(context.Background(), actorOf(adminAda), dto.LessonListQuery{Status: "scheduled"})
	require.NoError(t, err)
	assert.Equal(t, []string{"l1"}, lessonIDs(lessons))

	_, _, err = w.queries.List(context.Background(), actorOf(adminAda), dto.LessonListQuery{Status: "done"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, _, err = w.queries.List(context.Background(), actorOf(adminAda), dto.LessonListQuery{From: "2025-03-04", To: "2025-03-02"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestGetLessonVisibility(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	seedQueryLessons(t, w)

	lesson, err := w.queries.Get(context.Background(), actorOf(parentPat), "l1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-02", lesson.Day)

	_, err = w.queries.Get(context.Background(), actorOf(parentPat), "l2")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = w.queries.Get(context.Background(), actorOf(teacherAlice), "l2")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = w.queries.Get(context.Background(), actorOf(adminAda), "nope")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestPendingBacklogFlagsExpired(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	seedQueryLessons(t, w)
	fresh := submitPending(t, w, "15:00", "16:00")

	backlog, err := w.queries.Pending(context.Background(), actorOf(adminAda))
	require.NoError(t, err)
	require.Len(t, backlog, 2)
	flags := map[string]bool{}
	for _, entry := range backlog {
		flags[entry.ID] = entry.Expired
	}
	assert.True(t, flags["l2"])
	assert.False(t, flags[fresh.ID])

	_, err = w.queries.Pending(context.Background(), actorOf(teacherAlice))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
}

func TestExportCSV(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	seedQueryLessons(t, w)

	body, filename, err := w.queries.ExportCSV(context.Background(), actorOf(adminAda), dto.LessonExportQuery{From: "2025-03-01", To: "2025-03-02"})
	require.NoError(t, err)
	assert.Equal(t, "lessons-2025-03-01-2025-03-02.csv", filename)

	text := string(bytes.TrimPrefix(body, []byte{0xEF, 0xBB, 0xBF}))
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "lesson_id,date,start_time"))
	assert.Contains(t, lines[1], "l1,2025-03-02,10:00,10:45,scheduled,Alice Teacher,Sam Student")

	_, _, err = w.queries.ExportCSV(context.Background(), actorOf(studentSam), dto.LessonExportQuery{From: "2025-03-01", To: "2025-03-02"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, _, err = w.queries.ExportCSV(context.Background(), actorOf(adminAda), dto.LessonExportQuery{From: "2025-03-01"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestCalendarICS(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	seedQueryLessons(t, w)

	body, err := w.queries.CalendarICS(context.Background(), actorOf(teacherAlice))
	require.NoError(t, err)
	text := string(body)

	assert.True(t, strings.HasPrefix(text, "BEGIN:VCALENDAR\r\n"))
	assert.Equal(t, 1, strings.Count(text, "BEGIN:VEVENT"), "canceled lessons are not exported")
	assert.Contains(t, text, "UID:l1@tutoring-booking-api\r\n")
	assert.Contains(t, text, "DTSTART:20250302T080000Z\r\n")
	assert.Contains(t, text, "DTEND:20250302T084500Z\r\n")
	assert.Contains(t, text, "SUMMARY:Lesson: Sam Student with Alice Teacher\r\n")
	assert.True(t, strings.HasSuffix(text, "END:VCALENDAR\r\n"))
}

func TestEscapeICSText(t *testing.T) {
	assert.Equal(t, `a\, b\; c\\d\ne`, escapeICSText("a, b; c\\d\ne"))
}
