package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-booking-api/internal/dto"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-booking-api/pkg/errors"
)

func directRequest(day, start, end string) dto.DirectBookingRequest {
	return dto.DirectBookingRequest{TeacherID: teacherAlice.ID, Date: day, StartTime: start, EndTime: end}
}

func TestDirectSubmitCreatesPendingLesson(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	w.expectCommit()

	req := directRequest("2025-03-02", "10:00", "10:45")
	req.QuestionFromStudent = strPtr("Can we review fractions?")
	lesson, err := w.booking.DirectSubmit(context.Background(), actorOf(studentSam), req)
	require.NoError(t, err)

	assert.Equal(t, models.LessonStatusPendingApproval, lesson.Status)
	require.NotNil(t, lesson.ApprovalExpiresAt)
	assert.Equal(t, w.clock.Now().Add(2*time.Hour), *lesson.ApprovalExpiresAt)
	assert.Equal(t, "2025-03-02", lesson.Day)
	assert.Equal(t, time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC), lesson.Date)
	assert.Equal(t, studentSam.ID, lesson.StudentID)
	assert.Equal(t, 0, w.slots.count(), "direct submit must not touch availability")
	assert.Equal(t, []string{teacherAlice.ID}, w.lessons.locked)
	assert.Len(t, w.notifier.ofKind(notifyBookingConfirmed), 1)
	require.NoError(t, w.mock.ExpectationsWereMet())
}

func TestDirectSubmitRejectsTakenSlot(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	w.expectCommit()
	_, err := w.booking.DirectSubmit(context.Background(), actorOf(studentSam), directRequest("2025-03-02", "10:00", "10:45"))
	require.NoError(t, err)

	w.expectRollback()
	_, err = w.booking.DirectSubmit(context.Background(), actorOf(studentTal), directRequest("2025-03-02", "10:00", "11:00"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotUnavailable.Code))
	assert.Equal(t, 1, w.lessons.count())
	require.NoError(t, w.mock.ExpectationsWereMet())
}

func TestDirectSubmitValidation(t *testing.T) {
	w := newBookingWorld(t, "2025-03-02T08:30:00Z")

	cases := []struct {
		name string
		req  dto.DirectBookingRequest
	}{
		{name: "bad date", req: directRequest("02/03/2025", "10:00", "10:45")},
		{name: "bad time", req: directRequest("2025-03-02", "25:00", "10:45")},
		{name: "end before start", req: directRequest("2025-03-02", "11:00", "10:45")},
		{name: "already started", req: directRequest("2025-03-02", "10:00", "10:45")},
		{name: "not a teacher", req: dto.DirectBookingRequest{TeacherID: studentTal.ID, Date: "2025-03-03", StartTime: "10:00", EndTime: "10:45"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := w.booking.DirectSubmit(context.Background(), actorOf(studentSam), tc.req)
			require.Error(t, err)
			assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code), err.Error())
		})
	}
	assert.Equal(t, 0, w.lessons.count())
	require.NoError(t, w.mock.ExpectationsWereMet())
}

func TestDirectSubmitStudentResolution(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")

	_, err := w.booking.DirectSubmit(context.Background(), actorOf(studentSam), dto.DirectBookingRequest{
		TeacherID: teacherAlice.ID, StudentID: studentTal.ID, Date: "2025-03-02", StartTime: "10:00", EndTime: "10:45",
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	_, err = w.booking.DirectSubmit(context.Background(), actorOf(parentPat), dto.DirectBookingRequest{
		TeacherID: teacherAlice.ID, StudentID: studentTal.ID, Date: "2025-03-02", StartTime: "10:00", EndTime: "10:45",
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code), "parent is not linked to this student")

	_, err = w.booking.DirectSubmit(context.Background(), actorOf(teacherBen), directRequest("2025-03-02", "10:00", "10:45"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	w.expectCommit()
	lesson, err := w.booking.DirectSubmit(context.Background(), actorOf(parentPat), dto.DirectBookingRequest{
		TeacherID: teacherAlice.ID, StudentID: studentSam.ID, Date: "2025-03-02", StartTime: "10:00", EndTime: "10:45",
	})
	require.NoError(t, err)
	assert.Equal(t, studentSam.ID, lesson.StudentID)
	assert.Equal(t, parentPat.ID, lesson.BookedBy)
	require.NoError(t, w.mock.ExpectationsWereMet())
}

func TestDirectSubmitMapsLockContention(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	w.lessons.lockErr = &pq.Error{Code: "55P03"}
	w.expectRollback()

	_, err := w.booking.DirectSubmit(context.Background(), actorOf(studentSam), directRequest("2025-03-02", "10:00", "10:45"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotUnavailable.Code))
	require.NoError(t, w.mock.ExpectationsWereMet())
}

func declareSlot(t *testing.T, w *bookingWorld, day, start, end string) *models.Availability {
	t.Helper()
	slot, err := w.availability.Declare(context.Background(), actorOf(teacherAlice), dto.DeclareAvailabilityRequest{Date: day, StartTime: start, EndTime: end})
	require.NoError(t, err)
	return slot
}

func TestClaimSlotSequentialClaimsHaveOneWinner(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	slot := declareSlot(t, w, "2025-03-02", "10:00", "10:45")

	w.expectCommit()
	lesson, err := w.booking.ClaimSlot(context.Background(), actorOf(studentSam), slot.ID, dto.ClaimSlotRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusScheduled, lesson.Status)
	assert.Nil(t, lesson.ApprovalExpiresAt)

	for _, student := range []models.User{studentTal, studentSam} {
		w.expectRollback()
		_, err := w.booking.ClaimSlot(context.Background(), actorOf(student), slot.ID, dto.ClaimSlotRequest{})
		require.Error(t, err)
		assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotUnavailable.Code))
	}

	assert.Equal(t, 1, w.lessons.count())
	assert.Equal(t, 0, w.slots.count())
	require.NoError(t, w.mock.ExpectationsWereMet())
}

func TestClaimSlotRollsBackWhenRowVanishes(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	slot := declareSlot(t, w, "2025-03-02", "10:00", "10:45")
	w.slots.deleteErr = sql.ErrNoRows
	w.expectRollback()

	_, err := w.booking.ClaimSlot(context.Background(), actorOf(studentSam), slot.ID, dto.ClaimSlotRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotUnavailable.Code))
	assert.Empty(t, w.notifier.ofKind(notifyBookingConfirmed))
	require.NoError(t, w.mock.ExpectationsWereMet())
}

func TestClaimSlotRejectsSlotHeldByPendingLesson(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	slot := declareSlot(t, w, "2025-03-02", "10:00", "10:45")

	w.expectCommit()
	_, err := w.booking.DirectSubmit(context.Background(), actorOf(studentTal), directRequest("2025-03-02", "10:00", "10:45"))
	require.NoError(t, err)

	w.expectRollback()
	_, err = w.booking.ClaimSlot(context.Background(), actorOf(studentSam), slot.ID, dto.ClaimSlotRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotUnavailable.Code))
	assert.Equal(t, 1, w.slots.count())
	require.NoError(t, w.mock.ExpectationsWereMet())
}

func TestClaimSlotUnknownID(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	w.expectRollback()

	_, err := w.booking.ClaimSlot(context.Background(), actorOf(studentSam), "missing", dto.ClaimSlotRequest{})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotUnavailable.Code))
	require.NoError(t, w.mock.ExpectationsWereMet())
}

func TestClaimSlotInThePast(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	slot := declareSlot(t, w, "2025-03-02", "10:00", "10:45")
	w.clock.Set("2025-03-02T08:15:00Z")
	w.expectRollback()

	_, err := w.booking.ClaimSlot(context.Background(), actorOf(studentSam), slot.ID, dto.ClaimSlotRequest{})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
	assert.Equal(t, 1, w.slots.count())
	require.NoError(t, w.mock.ExpectationsWereMet())
}

func TestMalformedIDsAreClientErrors(t *testing.T) {
	w := newBookingWorld(t, "2025-03-01T08:00:00Z")
	ctx := context.Background()

	req := directRequest("2025-03-02", "10:00", "10:45")
	req.TeacherID = malformedID
	_, err := w.booking.DirectSubmit(ctx, actorOf(studentSam), req)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code), err.Error())

	w.expectRollback()
	_, err = w.booking.ClaimSlot(ctx, actorOf(studentSam), malformedID, dto.ClaimSlotRequest{})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrSlotUnavailable.Code), err.Error())

	w.expectRollback()
	_, err = w.reconciler.Approve(ctx, actorOf(teacherAlice), malformedID)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code), err.Error())

	w.expectRollback()
	_, err = w.completion.CompleteLesson(ctx, actorOf(teacherAlice), malformedID, dto.CompleteLessonRequest{Topics: "fractions", Progress: "good"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code), err.Error())

	_, err = w.queries.Get(ctx, actorOf(adminAda), malformedID)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code), err.Error())

	_, err = w.availability.ListOpen(ctx, malformedID, dtoRange("2025-03-01", "2025-03-07"))
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code), err.Error())

	assert.NoError(t, w.availability.Retract(ctx, actorOf(teacherAlice), malformedID))
	assert.Equal(t, 0, w.lessons.count())
	require.NoError(t, w.mock.ExpectationsWereMet())
}
