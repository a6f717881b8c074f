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

// AttendanceRepository provides persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository creates the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns attendance records matching the filter with a total count.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	base := "FROM attendance a JOIN users s ON s.id = a.student_id"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.BatchID != "" {
		where = append(where, fmt.Sprintf("a.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := strings.Join(where, " AND ")

	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.batch_id, a.student_id, a.date, a.status, a.notes, a.marked_by, a.created_at, a.updated_at,
s.full_name AS student_name
%s WHERE %s ORDER BY a.date DESC, s.full_name LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// Upsert inserts or updates the attendance row for (batch, student, date).
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.Attendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	query := `INSERT INTO attendance (id, batch_id, student_id, date, status, notes, marked_by, created_at, updated_at)
VALUES (:id, :batch_id, :student_id, :date, :status, :notes, :marked_by, :created_at, :updated_at)
ON CONFLICT (batch_id, student_id, date)
DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, marked_by = EXCLUDED.marked_by, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// Summaries aggregates per-student status counts for a batch within a date range.
func (r *AttendanceRepository) Summaries(ctx context.Context, batchID string, from, to time.Time) ([]models.AttendanceSummary, error) {
	const query = `SELECT a.student_id, s.full_name AS student_name,
COUNT(*) FILTER (WHERE a.status = 'H') AS present,
COUNT(*) FILTER (WHERE a.status = 'S') AS sick,
COUNT(*) FILTER (WHERE a.status = 'I') AS excused,
COUNT(*) FILTER (WHERE a.status = 'A') AS absent
FROM attendance a
JOIN users s ON s.id = a.student_id
WHERE a.batch_id = $1 AND a.date >= $2 AND a.date <= $3
GROUP BY a.student_id, s.full_name
ORDER BY s.full_name`
	var summaries []models.AttendanceSummary
	if err := r.db.SelectContext(ctx, &summaries, query, batchID, from, to); err != nil {
		return nil, fmt.Errorf("attendance summaries: %w", err)
	}
	return summaries, nil
}
