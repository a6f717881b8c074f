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

// MembershipRepository provides persistence for batch memberships.
type MembershipRepository struct {
	db *sqlx.DB
}

// NewMembershipRepository creates the repository.
func NewMembershipRepository(db *sqlx.DB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

// List returns membership details matching the filter with a total count.
func (r *MembershipRepository) List(ctx context.Context, filter models.MembershipFilter) ([]models.MembershipDetail, int, error) {
	base := `FROM memberships m
JOIN users s ON s.id = m.student_id
JOIN batches b ON b.id = m.batch_id
JOIN courses c ON c.id = b.course_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("m.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BatchID != "" {
		where = append(where, fmt.Sprintf("m.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("m.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	whereClause := strings.Join(where, " AND ")

	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT m.id, m.student_id, m.batch_id, m.joined_at, m.left_at, m.status,
s.full_name AS student_name, b.name AS batch_name, c.name AS course_name
%s WHERE %s ORDER BY m.joined_at DESC LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var memberships []models.MembershipDetail
	if err := r.db.SelectContext(ctx, &memberships, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list memberships: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count memberships: %w", err)
	}
	return memberships, total, nil
}

// FindByID returns a membership by identifier.
func (r *MembershipRepository) FindByID(ctx context.Context, id string) (*models.Membership, error) {
	const query = `SELECT id, student_id, batch_id, joined_at, left_at, status FROM memberships WHERE id = $1`
	var membership models.Membership
	if err := r.db.GetContext(ctx, &membership, query, id); err != nil {
		return nil, err
	}
	return &membership, nil
}

// ExistsActive reports whether the student already has an active membership in the batch.
func (r *MembershipRepository) ExistsActive(ctx context.Context, studentID, batchID string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM memberships WHERE student_id = $1 AND batch_id = $2 AND status = 'ACTIVE'",
		studentID, batchID)
	if err != nil {
		return false, fmt.Errorf("check active membership: %w", err)
	}
	return count > 0, nil
}

// CountActive returns the number of active members in a batch.
func (r *MembershipRepository) CountActive(ctx context.Context, batchID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM memberships WHERE batch_id = $1 AND status = 'ACTIVE'", batchID); err != nil {
		return 0, fmt.Errorf("count active members: %w", err)
	}
	return count, nil
}

// Create inserts a new membership.
func (r *MembershipRepository) Create(ctx context.Context, membership *models.Membership) error {
	if membership.ID == "" {
		membership.ID = uuid.NewString()
	}
	if membership.JoinedAt.IsZero() {
		membership.JoinedAt = time.Now().UTC()
	}
	query := `INSERT INTO memberships (id, student_id, batch_id, joined_at, status)
VALUES (:id, :student_id, :batch_id, :joined_at, :status)`
	if _, err := r.db.NamedExecContext(ctx, query, membership); err != nil {
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

// UpdateBatch moves a membership to another batch (transfer).
func (r *MembershipRepository) UpdateBatch(ctx context.Context, id, batchID string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE memberships SET batch_id = $2 WHERE id = $1", id, batchID); err != nil {
		return fmt.Errorf("transfer membership: %w", err)
	}
	return nil
}

// UpdateStatus changes the membership lifecycle state.
func (r *MembershipRepository) UpdateStatus(ctx context.Context, id string, status models.MembershipStatus, leftAt *time.Time) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE memberships SET status = $2, left_at = $3 WHERE id = $1", id, status, leftAt); err != nil {
		return fmt.Errorf("update membership status: %w", err)
	}
	return nil
}

// ActiveBatchIDsForStudent returns the batch ids the student currently belongs to.
func (r *MembershipRepository) ActiveBatchIDsForStudent(ctx context.Context, studentID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		"SELECT batch_id FROM memberships WHERE student_id = $1 AND status = 'ACTIVE'", studentID)
	if err != nil {
		return nil, fmt.Errorf("active batch ids: %w", err)
	}
	return ids, nil
}

// ActiveStudentIDs returns the students currently in a batch.
func (r *MembershipRepository) ActiveStudentIDs(ctx context.Context, batchID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		"SELECT student_id FROM memberships WHERE batch_id = $1 AND status = 'ACTIVE'", batchID)
	if err != nil {
		return nil, fmt.Errorf("active student ids: %w", err)
	}
	return ids, nil
}
