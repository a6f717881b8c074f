package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
	"github.com/noah-isme/bimbel-api/pkg/export"
	"github.com/noah-isme/bimbel-api/pkg/jobs"
	"github.com/noah-isme/bimbel-api/pkg/storage"
)

// JobTypeReceipt identifies queued receipt rendering jobs.
const JobTypeReceipt = "fee_receipt"

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

type feeRepository interface {
	List(ctx context.Context, filter models.FeeFilter) ([]models.FeeInvoiceDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.FeeInvoice, error)
	ExistsForPeriod(ctx context.Context, studentID, batchID, period string) (bool, error)
	Create(ctx context.Context, invoice *models.FeeInvoice) error
	Update(ctx context.Context, invoice *models.FeeInvoice) error
}

type feeStudentSource interface {
	ActiveStudentIDs(ctx context.Context, batchID string) ([]string, error)
}

type receiptQueue interface {
	Enqueue(job jobs.Job) error
}

// ReceiptPayload is the job payload for rendering a payment receipt.
type ReceiptPayload struct {
	InvoiceID string
}

// FeeService manages monthly invoices, payments and receipt generation.
type FeeService struct {
	repo        feeRepository
	batches     scheduleBatchLookup
	courses     batchCourseLookup
	memberships feeStudentSource
	users       batchTeacherLookup
	queue       receiptQueue
	pdf         *export.PDFExporter
	files       *storage.LocalStorage
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewFeeService constructs a FeeService. The queue may be nil, in which case
// receipts are rendered synchronously.
func NewFeeService(repo feeRepository, batches scheduleBatchLookup, courses batchCourseLookup, memberships feeStudentSource, users batchTeacherLookup, files *storage.LocalStorage, validate *validator.Validate, logger *zap.Logger) *FeeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FeeService{
		repo:        repo,
		batches:     batches,
		courses:     courses,
		memberships: memberships,
		users:       users,
		pdf:         export.NewPDFExporter(),
		files:       files,
		validator:   validate,
		logger:      logger,
	}
}

// SetQueue wires the background queue used for receipt rendering.
func (s *FeeService) SetQueue(queue receiptQueue) {
	s.queue = queue
}

// List returns invoices matching the filter. Students only see their own.
func (s *FeeService) List(ctx context.Context, actor models.JWTClaims, filter models.FeeFilter) ([]models.FeeInvoiceDetail, *models.Pagination, error) {
	if actor.Role == models.RoleStudent {
		filter.StudentID = actor.UserID
	}
	invoices, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invoices")
	}
	page, size := clampPage(filter.Page, filter.PageSize)
	return invoices, models.NewPagination(page, size, total), nil
}

// GenerateInvoices creates the month's invoices for every active member of a
// batch, priced at the course's monthly fee. Students already invoiced for
// the period are skipped, so re-running a period is safe.
func (s *FeeService) GenerateInvoices(ctx context.Context, req models.GenerateInvoicesRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invoice payload")
	}
	if !periodPattern.MatchString(req.Period) {
		return 0, appErrors.Clone(appErrors.ErrValidation, "period must use the YYYY-MM format")
	}

	batch, err := s.batches.FindByID(ctx, req.BatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrValidation, "batch does not exist")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch")
	}

	course, err := s.courses.FindByID(ctx, batch.CourseID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	studentIDs, err := s.memberships.ActiveStudentIDs(ctx, req.BatchID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list members")
	}

	created := 0
	for _, studentID := range studentIDs {
		exists, err := s.repo.ExistsForPeriod(ctx, studentID, req.BatchID, req.Period)
		if err != nil {
			return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing invoice")
		}
		if exists {
			continue
		}
		invoice := &models.FeeInvoice{
			StudentID: studentID,
			BatchID:   req.BatchID,
			Period:    req.Period,
			Amount:    course.MonthlyFee,
			Status:    models.FeeStatusPending,
		}
		if err := s.repo.Create(ctx, invoice); err != nil {
			return created, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invoice")
		}
		created++
	}

	s.logger.Info("invoices generated",
		zap.String("batch_id", req.BatchID), zap.String("period", req.Period), zap.Int("created", created))
	return created, nil
}

// RecordPayment marks a pending invoice as paid and schedules receipt
// rendering in the background.
func (s *FeeService) RecordPayment(ctx context.Context, id string, req models.RecordPaymentRequest) (*models.FeeInvoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	invoice, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.FeeStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "invoice is not pending")
	}

	now := time.Now().UTC()
	invoice.Status = models.FeeStatusPaid
	invoice.PaidAt = &now
	invoice.Method = &req.Method
	if err := s.repo.Update(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	if s.queue != nil {
		job := jobs.Job{ID: uuid.NewString(), Type: JobTypeReceipt, Payload: ReceiptPayload{InvoiceID: invoice.ID}}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue receipt job", zap.String("invoice_id", invoice.ID), zap.Error(err))
		}
	} else if err := s.RenderReceipt(ctx, invoice.ID); err != nil {
		s.logger.Warn("failed to render receipt", zap.String("invoice_id", invoice.ID), zap.Error(err))
	}

	s.logger.Info("payment recorded",
		zap.String("invoice_id", invoice.ID), zap.String("method", req.Method))
	return invoice, nil
}

// Waive cancels a pending invoice without payment.
func (s *FeeService) Waive(ctx context.Context, id string) (*models.FeeInvoice, error) {
	invoice, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.FeeStatusPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "invoice is not pending")
	}
	invoice.Status = models.FeeStatusWaived
	if err := s.repo.Update(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to waive invoice")
	}
	return invoice, nil
}

// RenderReceipt produces the PDF receipt for a paid invoice and stores its
// path on the invoice. It backs the background receipt queue.
func (s *FeeService) RenderReceipt(ctx context.Context, invoiceID string) error {
	invoice, err := s.repo.FindByID(ctx, invoiceID)
	if err != nil {
		return fmt.Errorf("load invoice %s: %w", invoiceID, err)
	}
	if invoice.Status != models.FeeStatusPaid {
		return fmt.Errorf("invoice %s is not paid", invoiceID)
	}

	student, err := s.users.FindByID(ctx, invoice.StudentID)
	if err != nil {
		return fmt.Errorf("load student: %w", err)
	}
	batch, err := s.batches.FindByID(ctx, invoice.BatchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}

	paidAt := ""
	if invoice.PaidAt != nil {
		paidAt = invoice.PaidAt.Format("2006-01-02 15:04")
	}
	method := ""
	if invoice.Method != nil {
		method = *invoice.Method
	}
	dataset := export.Dataset{
		Headers: []string{"Field", "Value"},
		Rows: []map[string]string{
			{"Field": "Receipt", "Value": invoice.ID},
			{"Field": "Student", "Value": student.FullName},
			{"Field": "Batch", "Value": batch.Name},
			{"Field": "Period", "Value": invoice.Period},
			{"Field": "Amount", "Value": fmt.Sprintf("Rp %d", invoice.Amount)},
			{"Field": "Method", "Value": method},
			{"Field": "Paid At", "Value": paidAt},
		},
	}

	payload, err := s.pdf.Render(dataset, "Payment Receipt")
	if err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}

	relPath := fmt.Sprintf("receipts/%s/%s.pdf", invoice.Period, invoice.ID)
	if _, err := s.files.Save(relPath, payload); err != nil {
		return fmt.Errorf("store receipt: %w", err)
	}

	invoice.ReceiptPath = &relPath
	if err := s.repo.Update(ctx, invoice); err != nil {
		return fmt.Errorf("save receipt path: %w", err)
	}

	s.logger.Info("receipt rendered",
		zap.String("invoice_id", invoice.ID), zap.String("path", relPath))
	return nil
}

// OpenReceipt authorizes access to a paid invoice's receipt and opens the
// stored PDF. Receipts evicted by the storage cleanup are re-rendered on
// demand.
func (s *FeeService) OpenReceipt(ctx context.Context, actor models.JWTClaims, id string) (*models.FeeInvoice, io.ReadCloser, error) {
	invoice, err := s.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if actor.Role != models.RoleAdmin && invoice.StudentID != actor.UserID {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
	}
	if invoice.Status != models.FeeStatusPaid {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "invoice has no receipt")
	}

	if invoice.ReceiptPath == nil {
		if err := s.RenderReceipt(ctx, invoice.ID); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
		}
		if invoice, err = s.lookup(ctx, id); err != nil {
			return nil, nil, err
		}
	}

	file, err := s.files.Open(*invoice.ReceiptPath)
	if err != nil {
		if err := s.RenderReceipt(ctx, invoice.ID); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
		}
		if file, err = s.files.Open(*invoice.ReceiptPath); err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open receipt")
		}
	}
	return invoice, file, nil
}

// HandleReceiptJob adapts RenderReceipt to the queue's handler signature.
func (s *FeeService) HandleReceiptJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(ReceiptPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	return s.RenderReceipt(ctx, payload.InvoiceID)
}

func (s *FeeService) lookup(ctx context.Context, id string) (*models.FeeInvoice, error) {
	invoice, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	return invoice, nil
}
