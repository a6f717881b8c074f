package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/bimbel-api/internal/models"
)

const noticeColumns = "id, title, description, posted_by, audience, target_batch_ids, is_active, is_scheduled, scheduled_at, expires_at, is_important, created_at, updated_at"

// NoticeRepository provides persistence for notices.
type NoticeRepository struct {
	db *sqlx.DB
}

// NewNoticeRepository creates the repository.
func NewNoticeRepository(db *sqlx.DB) *NoticeRepository {
	return &NoticeRepository{db: db}
}

// List returns notices matching the visibility filter, newest first.
//
// The effective-visibility predicate is evaluated against filter.Now so one
// listing uses a single consistent cutoff. A notice is visible when it is
// active and either unscheduled or past its scheduled_at; owners named in
// IncludeScheduledFor additionally see their own pending scheduled notices.
func (r *NoticeRepository) List(ctx context.Context, filter models.NoticeFilter) ([]models.Notice, int, error) {
	now := filter.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	where := []string{}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	visible := fmt.Sprintf("(is_active = TRUE AND (is_scheduled = FALSE OR scheduled_at <= %s))", arg(now))
	if filter.IncludeScheduledFor != "" {
		visible = fmt.Sprintf("(%s OR posted_by = %s)", visible, arg(filter.IncludeScheduledFor))
	}
	where = append(where, visible)
	where = append(where, fmt.Sprintf("(expires_at IS NULL OR expires_at > %s)", arg(now)))

	switch filter.ViewerRole {
	case models.RoleStudent:
		where = append(where, fmt.Sprintf("(audience = 'ALL' OR audience = 'STUDENTS' OR (audience = 'BATCH' AND target_batch_ids && %s))", arg(pq.Array(filter.ViewerBatchIDs))))
	case models.RoleTeacher:
		audience := fmt.Sprintf("audience = 'ALL' OR audience = 'TEACHERS' OR (audience = 'BATCH' AND target_batch_ids && %s)", arg(pq.Array(filter.ViewerBatchIDs)))
		if filter.IncludeScheduledFor != "" {
			audience = fmt.Sprintf("%s OR posted_by = %s", audience, arg(filter.IncludeScheduledFor))
		}
		where = append(where, "("+audience+")")
	case models.RoleAdmin:
		// admins see every audience
	}

	if filter.OwnerID != "" {
		where = append(where, fmt.Sprintf("posted_by = %s", arg(filter.OwnerID)))
	}
	if filter.Keyword != "" {
		kw := arg("%" + filter.Keyword + "%")
		where = append(where, fmt.Sprintf("(title ILIKE %s OR description ILIKE %s)", kw, kw))
	}
	if filter.Date != nil {
		where = append(where, fmt.Sprintf("created_at::date = %s::date", arg(*filter.Date)))
	}
	if filter.Audience != "" {
		where = append(where, fmt.Sprintf("audience = %s", arg(filter.Audience)))
	}
	if filter.BatchID != "" {
		where = append(where, fmt.Sprintf("%s = ANY(target_batch_ids)", arg(filter.BatchID)))
	}
	whereClause := strings.Join(where, " AND ")

	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM notices WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d", noticeColumns, whereClause, size, offset)
	var notices []models.Notice
	if err := r.db.SelectContext(ctx, &notices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notices: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM notices WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notices: %w", err)
	}
	return notices, total, nil
}

// FindByID returns a notice by identifier.
func (r *NoticeRepository) FindByID(ctx context.Context, id string) (*models.Notice, error) {
	query := fmt.Sprintf("SELECT %s FROM notices WHERE id = $1", noticeColumns)
	var notice models.Notice
	if err := r.db.GetContext(ctx, &notice, query, id); err != nil {
		return nil, err
	}
	return &notice, nil
}

// Create inserts a new notice.
func (r *NoticeRepository) Create(ctx context.Context, notice *models.Notice) error {
	if notice.ID == "" {
		notice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = now
	}
	notice.UpdatedAt = now
	query := `INSERT INTO notices (id, title, description, posted_by, audience, target_batch_ids, is_active, is_scheduled, scheduled_at, expires_at, is_important, created_at, updated_at)
VALUES (:id, :title, :description, :posted_by, :audience, :target_batch_ids, :is_active, :is_scheduled, :scheduled_at, :expires_at, :is_important, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notice); err != nil {
		return fmt.Errorf("create notice: %w", err)
	}
	return nil
}

// Update modifies an existing notice.
func (r *NoticeRepository) Update(ctx context.Context, notice *models.Notice) error {
	notice.UpdatedAt = time.Now().UTC()
	query := `UPDATE notices SET title = :title, description = :description, audience = :audience, target_batch_ids = :target_batch_ids,
is_active = :is_active, is_scheduled = :is_scheduled, scheduled_at = :scheduled_at, expires_at = :expires_at, is_important = :is_important, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, notice); err != nil {
		return fmt.Errorf("update notice: %w", err)
	}
	return nil
}

// Delete removes a notice.
func (r *NoticeRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM notices WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete notice: %w", err)
	}
	return nil
}

// ListDue returns scheduled notices whose scheduled_at has passed the cutoff.
func (r *NoticeRepository) ListDue(ctx context.Context, cutoff time.Time) ([]models.Notice, error) {
	query := fmt.Sprintf("SELECT %s FROM notices WHERE is_scheduled = TRUE AND scheduled_at <= $1", noticeColumns)
	var notices []models.Notice
	if err := r.db.SelectContext(ctx, &notices, query, cutoff); err != nil {
		return nil, fmt.Errorf("list due notices: %w", err)
	}
	return notices, nil
}

// Publish promotes a scheduled notice to active. The is_scheduled guard makes
// the transition a compare-and-swap: a concurrent or repeated publish matches
// zero rows and reports false.
func (r *NoticeRepository) Publish(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE notices SET is_active = TRUE, is_scheduled = FALSE, updated_at = $2 WHERE id = $1 AND is_scheduled = TRUE",
		id, now)
	if err != nil {
		return false, fmt.Errorf("publish notice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("publish notice rows: %w", err)
	}
	return affected == 1, nil
}
