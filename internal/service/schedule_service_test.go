package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
)

type mockScheduleRepo struct {
	slots map[string]*models.Schedule
	// teacher per batch mirrors the fixture's batch lookup so conflict
	// detection can compare across batches of the same teacher
	teachers map[string]string
	seq      int
}

func newMockScheduleRepo(teachers map[string]string) *mockScheduleRepo {
	return &mockScheduleRepo{slots: map[string]*models.Schedule{}, teachers: teachers}
}

func (m *mockScheduleRepo) List(_ context.Context, _ models.ScheduleFilter) ([]models.Schedule, int, error) {
	out := make([]models.Schedule, 0, len(m.slots))
	for _, s := range m.slots {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockScheduleRepo) FindByID(_ context.Context, id string) (*models.Schedule, error) {
	s, ok := m.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (m *mockScheduleRepo) FindConflicts(_ context.Context, slot *models.Schedule, teacherID, excludeID string) ([]models.ScheduleConflict, error) {
	var conflicts []models.ScheduleConflict
	for _, existing := range m.slots {
		if existing.ID == excludeID || existing.DayOfWeek != slot.DayOfWeek {
			continue
		}
		if existing.StartTime >= slot.EndTime || existing.EndTime <= slot.StartTime {
			continue
		}
		switch {
		case existing.Room == slot.Room:
			conflicts = append(conflicts, conflictOf(existing, "room"))
		case m.teachers[existing.BatchID] == teacherID:
			conflicts = append(conflicts, conflictOf(existing, "teacher"))
		}
	}
	return conflicts, nil
}

func conflictOf(s *models.Schedule, dimension string) models.ScheduleConflict {
	return models.ScheduleConflict{
		ScheduleID: s.ID,
		BatchID:    s.BatchID,
		DayOfWeek:  s.DayOfWeek,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		Room:       s.Room,
		Dimension:  dimension,
	}
}

func (m *mockScheduleRepo) Create(_ context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		m.seq++
		schedule.ID = string(rune('a' + m.seq - 1))
	}
	m.slots[schedule.ID] = schedule
	return nil
}

func (m *mockScheduleRepo) Update(_ context.Context, schedule *models.Schedule) error {
	m.slots[schedule.ID] = schedule
	return nil
}

func (m *mockScheduleRepo) Delete(_ context.Context, id string) error {
	delete(m.slots, id)
	return nil
}

func newScheduleFixture() (*ScheduleService, *mockScheduleRepo) {
	teachers := map[string]string{"b1": "t1", "b2": "t1", "b3": "t2"}
	repo := newMockScheduleRepo(teachers)
	batches := &mockBatchLookup{batches: map[string]*models.Batch{
		"b1": {ID: "b1", TeacherID: "t1", Active: true},
		"b2": {ID: "b2", TeacherID: "t1", Active: true},
		"b3": {ID: "b3", TeacherID: "t2", Active: true},
	}}
	return NewScheduleService(repo, batches, nil, nil), repo
}

func TestCreateScheduleSlot(t *testing.T) {
	svc, repo := newScheduleFixture()

	slot, err := svc.Create(context.Background(), models.CreateScheduleRequest{
		BatchID: "b1", DayOfWeek: "MONDAY", StartTime: "16:00", EndTime: "17:30", Room: "R1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, slot.ID)
	assert.Len(t, repo.slots, 1)
}

func TestCreateScheduleRejectsInvertedTimes(t *testing.T) {
	svc, _ := newScheduleFixture()

	_, err := svc.Create(context.Background(), models.CreateScheduleRequest{
		BatchID: "b1", DayOfWeek: "MONDAY", StartTime: "17:30", EndTime: "16:00", Room: "R1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateScheduleDetectsRoomConflict(t *testing.T) {
	svc, _ := newScheduleFixture()

	_, err := svc.Create(context.Background(), models.CreateScheduleRequest{
		BatchID: "b1", DayOfWeek: "MONDAY", StartTime: "16:00", EndTime: "17:30", Room: "R1",
	})
	require.NoError(t, err)

	// a different teacher, same room, overlapping window
	_, err = svc.Create(context.Background(), models.CreateScheduleRequest{
		BatchID: "b3", DayOfWeek: "MONDAY", StartTime: "17:00", EndTime: "18:30", Room: "R1",
	})
	require.Error(t, err)

	var conflictErr *models.ScheduleConflictError
	require.True(t, errors.As(err, &conflictErr))
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, "room", conflictErr.Conflicts[0].Dimension)
}

func TestCreateScheduleDetectsTeacherConflict(t *testing.T) {
	svc, _ := newScheduleFixture()

	_, err := svc.Create(context.Background(), models.CreateScheduleRequest{
		BatchID: "b1", DayOfWeek: "TUESDAY", StartTime: "16:00", EndTime: "17:30", Room: "R1",
	})
	require.NoError(t, err)

	// same teacher runs b2, different room, overlapping window
	_, err = svc.Create(context.Background(), models.CreateScheduleRequest{
		BatchID: "b2", DayOfWeek: "TUESDAY", StartTime: "17:00", EndTime: "18:30", Room: "R2",
	})
	require.Error(t, err)

	var conflictErr *models.ScheduleConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.Equal(t, "teacher", conflictErr.Conflicts[0].Dimension)
}

func TestCreateScheduleAllowsAdjacentSlots(t *testing.T) {
	svc, _ := newScheduleFixture()

	_, err := svc.Create(context.Background(), models.CreateScheduleRequest{
		BatchID: "b1", DayOfWeek: "MONDAY", StartTime: "16:00", EndTime: "17:30", Room: "R1",
	})
	require.NoError(t, err)

	// back to back in the same room is not a collision
	_, err = svc.Create(context.Background(), models.CreateScheduleRequest{
		BatchID: "b3", DayOfWeek: "MONDAY", StartTime: "17:30", EndTime: "19:00", Room: "R1",
	})
	require.NoError(t, err)
}

func TestUpdateScheduleExcludesItselfFromConflicts(t *testing.T) {
	svc, _ := newScheduleFixture()

	slot, err := svc.Create(context.Background(), models.CreateScheduleRequest{
		BatchID: "b1", DayOfWeek: "MONDAY", StartTime: "16:00", EndTime: "17:30", Room: "R1",
	})
	require.NoError(t, err)

	// shrinking the same slot must not collide with itself
	end := "17:00"
	updated, err := svc.Update(context.Background(), slot.ID, models.UpdateScheduleRequest{EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, "17:00", updated.EndTime)
}
