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

const mediaColumns = "id, batch_id, kind, title, file_path, size_bytes, mime_type, uploaded_by, created_at, updated_at"

// MediaRepository provides persistence for recordings and materials.
type MediaRepository struct {
	db *sqlx.DB
}

// NewMediaRepository creates the repository.
func NewMediaRepository(db *sqlx.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// List returns media matching the filter with a total count.
func (r *MediaRepository) List(ctx context.Context, filter models.MediaFilter) ([]models.Media, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if len(filter.BatchIDs) > 0 {
		where = append(where, fmt.Sprintf("batch_id = ANY($%d)", len(args)+1))
		args = append(args, pq.Array(filter.BatchIDs))
	}
	if filter.Kind != "" {
		where = append(where, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, filter.Kind)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	whereClause := strings.Join(where, " AND ")

	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM media WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d", mediaColumns, whereClause, size, offset)
	var media []models.Media
	if err := r.db.SelectContext(ctx, &media, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list media: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM media WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count media: %w", err)
	}
	return media, total, nil
}

// FindByID returns a media item by identifier.
func (r *MediaRepository) FindByID(ctx context.Context, id string) (*models.Media, error) {
	query := fmt.Sprintf("SELECT %s FROM media WHERE id = $1", mediaColumns)
	var item models.Media
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts a new media item.
func (r *MediaRepository) Create(ctx context.Context, item *models.Media) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	query := `INSERT INTO media (id, batch_id, kind, title, file_path, size_bytes, mime_type, uploaded_by, created_at, updated_at)
VALUES (:id, :batch_id, :kind, :title, :file_path, :size_bytes, :mime_type, :uploaded_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create media: %w", err)
	}
	return nil
}

// Delete removes a media item.
func (r *MediaRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM media WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	return nil
}
