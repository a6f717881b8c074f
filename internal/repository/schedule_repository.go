package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bimbel-api/internal/models"
)

const scheduleColumns = "s.id, s.batch_id, s.day_of_week, s.start_time, s.end_time, s.room, s.created_at, s.updated_at"

// ScheduleRepository provides persistence for weekly class slots.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// List returns schedules matching the filter with a total count.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	base := "FROM schedules s JOIN batches b ON b.id = s.batch_id"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.BatchID != "" {
		where = append(where, fmt.Sprintf("s.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("b.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.DayOfWeek != "" {
		where = append(where, fmt.Sprintf("s.day_of_week = $%d", len(args)+1))
		args = append(args, filter.DayOfWeek)
	}
	if filter.Room != "" {
		where = append(where, fmt.Sprintf("s.room = $%d", len(args)+1))
		args = append(args, filter.Room)
	}
	whereClause := strings.Join(where, " AND ")

	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s WHERE %s ORDER BY s.day_of_week, s.start_time LIMIT %d OFFSET %d", scheduleColumns, base, whereClause, size, offset)
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}
	return schedules, total, nil
}

// FindByID returns a schedule slot by identifier.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	const query = `SELECT id, batch_id, day_of_week, start_time, end_time, room, created_at, updated_at FROM schedules WHERE id = $1`
	var schedule models.Schedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// FindConflicts returns existing slots that overlap the proposed one in the
// same room or for the same teacher.
func (r *ScheduleRepository) FindConflicts(ctx context.Context, slot *models.Schedule, teacherID, excludeID string) ([]models.ScheduleConflict, error) {
	query := `SELECT s.id AS schedule_id, s.batch_id, s.day_of_week, s.start_time, s.end_time, s.room,
CASE WHEN s.room = $4 THEN 'room' ELSE 'teacher' END AS dimension
FROM schedules s
JOIN batches b ON b.id = s.batch_id
WHERE s.day_of_week = $1
  AND s.start_time < $3 AND s.end_time > $2
  AND (s.room = $4 OR b.teacher_id = $5)
  AND ($6 = '' OR s.id <> $6)`
	var conflicts []models.ScheduleConflict
	err := r.db.SelectContext(ctx, &conflicts, query,
		slot.DayOfWeek, slot.StartTime, slot.EndTime, slot.Room, teacherID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("find schedule conflicts: %w", err)
	}
	return conflicts, nil
}

// Create inserts a new schedule slot.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now
	query := `INSERT INTO schedules (id, batch_id, day_of_week, start_time, end_time, room, created_at, updated_at)
VALUES (:id, :batch_id, :day_of_week, :start_time, :end_time, :room, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// Update modifies an existing schedule slot.
func (r *ScheduleRepository) Update(ctx context.Context, schedule *models.Schedule) error {
	schedule.UpdatedAt = time.Now().UTC()
	query := `UPDATE schedules SET day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time, room = :room, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// Delete removes a schedule slot.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}
