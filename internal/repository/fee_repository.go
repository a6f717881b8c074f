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

// FeeRepository provides persistence for fee invoices.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository creates the repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// List returns invoice details matching the filter with a total count.
func (r *FeeRepository) List(ctx context.Context, filter models.FeeFilter) ([]models.FeeInvoiceDetail, int, error) {
	base := `FROM fee_invoices f
JOIN users s ON s.id = f.student_id
JOIN batches b ON b.id = f.batch_id`
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("f.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.BatchID != "" {
		where = append(where, fmt.Sprintf("f.batch_id = $%d", len(args)+1))
		args = append(args, filter.BatchID)
	}
	if filter.Period != "" {
		where = append(where, fmt.Sprintf("f.period = $%d", len(args)+1))
		args = append(args, filter.Period)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("f.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	whereClause := strings.Join(where, " AND ")

	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT f.id, f.student_id, f.batch_id, f.period, f.amount, f.status, f.paid_at, f.method, f.receipt_path, f.created_at, f.updated_at,
s.full_name AS student_name, b.name AS batch_name
%s WHERE %s ORDER BY f.period DESC, s.full_name LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var invoices []models.FeeInvoiceDetail
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fee invoices: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count fee invoices: %w", err)
	}
	return invoices, total, nil
}

// FindByID returns an invoice by identifier.
func (r *FeeRepository) FindByID(ctx context.Context, id string) (*models.FeeInvoice, error) {
	const query = `SELECT id, student_id, batch_id, period, amount, status, paid_at, method, receipt_path, created_at, updated_at
FROM fee_invoices WHERE id = $1`
	var invoice models.FeeInvoice
	if err := r.db.GetContext(ctx, &invoice, query, id); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// ExistsForPeriod reports whether an invoice already exists for (student, batch, period).
func (r *FeeRepository) ExistsForPeriod(ctx context.Context, studentID, batchID, period string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM fee_invoices WHERE student_id = $1 AND batch_id = $2 AND period = $3",
		studentID, batchID, period)
	if err != nil {
		return false, fmt.Errorf("check invoice period: %w", err)
	}
	return count > 0, nil
}

// Create inserts a new invoice.
func (r *FeeRepository) Create(ctx context.Context, invoice *models.FeeInvoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now
	query := `INSERT INTO fee_invoices (id, student_id, batch_id, period, amount, status, paid_at, method, receipt_path, created_at, updated_at)
VALUES (:id, :student_id, :batch_id, :period, :amount, :status, :paid_at, :method, :receipt_path, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("create fee invoice: %w", err)
	}
	return nil
}

// Update modifies an existing invoice.
func (r *FeeRepository) Update(ctx context.Context, invoice *models.FeeInvoice) error {
	invoice.UpdatedAt = time.Now().UTC()
	query := `UPDATE fee_invoices SET amount = :amount, status = :status, paid_at = :paid_at, method = :method, receipt_path = :receipt_path, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("update fee invoice: %w", err)
	}
	return nil
}
