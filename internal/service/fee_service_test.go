package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bimbel-api/internal/models"
	appErrors "github.com/noah-isme/bimbel-api/pkg/errors"
	"github.com/noah-isme/bimbel-api/pkg/storage"
)

type mockFeeRepo struct {
	invoices map[string]*models.FeeInvoice
}

func newMockFeeRepo() *mockFeeRepo {
	return &mockFeeRepo{invoices: map[string]*models.FeeInvoice{}}
}

func (m *mockFeeRepo) List(_ context.Context, _ models.FeeFilter) ([]models.FeeInvoiceDetail, int, error) {
	return nil, 0, nil
}

func (m *mockFeeRepo) FindByID(_ context.Context, id string) (*models.FeeInvoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return inv, nil
}

func (m *mockFeeRepo) ExistsForPeriod(_ context.Context, studentID, batchID, period string) (bool, error) {
	for _, inv := range m.invoices {
		if inv.StudentID == studentID && inv.BatchID == batchID && inv.Period == period {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockFeeRepo) Create(_ context.Context, invoice *models.FeeInvoice) error {
	if invoice.ID == "" {
		invoice.ID = invoice.StudentID + "-" + invoice.Period
	}
	m.invoices[invoice.ID] = invoice
	return nil
}

func (m *mockFeeRepo) Update(_ context.Context, invoice *models.FeeInvoice) error {
	m.invoices[invoice.ID] = invoice
	return nil
}

type mockStudentSource struct {
	students map[string][]string
}

func (m *mockStudentSource) ActiveStudentIDs(_ context.Context, batchID string) ([]string, error) {
	return m.students[batchID], nil
}

type mockCourseLookup struct {
	courses map[string]*models.Course
}

func (m *mockCourseLookup) FindByID(_ context.Context, id string) (*models.Course, error) {
	c, ok := m.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}

func newFeeFixture(t *testing.T) (*FeeService, *mockFeeRepo) {
	t.Helper()
	repo := newMockFeeRepo()
	batches := &mockBatchLookup{batches: map[string]*models.Batch{
		"b1": {ID: "b1", Name: "Matematika A", CourseID: "c1", Active: true},
	}}
	courses := &mockCourseLookup{courses: map[string]*models.Course{
		"c1": {ID: "c1", Name: "Matematika", MonthlyFee: 350000, Active: true},
	}}
	students := &mockStudentSource{students: map[string][]string{
		"b1": {"s1", "s2"},
	}}
	users := &mockUserLookup{users: map[string]*models.User{
		"s1": {ID: "s1", FullName: "Andi", Role: models.RoleStudent},
		"s2": {ID: "s2", FullName: "Budi", Role: models.RoleStudent},
	}}

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	return NewFeeService(repo, batches, courses, students, users, files, nil, nil), repo
}

func TestGenerateInvoicesForBatch(t *testing.T) {
	svc, repo := newFeeFixture(t)

	created, err := svc.GenerateInvoices(context.Background(), models.GenerateInvoicesRequest{BatchID: "b1", Period: "2026-09"})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	for _, inv := range repo.invoices {
		assert.Equal(t, int64(350000), inv.Amount)
		assert.Equal(t, models.FeeStatusPending, inv.Status)
	}
}

func TestGenerateInvoicesSkipsExisting(t *testing.T) {
	svc, _ := newFeeFixture(t)

	created, err := svc.GenerateInvoices(context.Background(), models.GenerateInvoicesRequest{BatchID: "b1", Period: "2026-09"})
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	// a second run for the same period is a no-op
	created, err = svc.GenerateInvoices(context.Background(), models.GenerateInvoicesRequest{BatchID: "b1", Period: "2026-09"})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestGenerateInvoicesRejectsBadPeriod(t *testing.T) {
	svc, _ := newFeeFixture(t)

	_, err := svc.GenerateInvoices(context.Background(), models.GenerateInvoicesRequest{BatchID: "b1", Period: "2026-13"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRecordPaymentRendersReceipt(t *testing.T) {
	svc, repo := newFeeFixture(t)

	_, err := svc.GenerateInvoices(context.Background(), models.GenerateInvoicesRequest{BatchID: "b1", Period: "2026-09"})
	require.NoError(t, err)

	// without a queue the receipt is rendered inline
	paid, err := svc.RecordPayment(context.Background(), "s1-2026-09", models.RecordPaymentRequest{Method: "CASH"})
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	stored := repo.invoices["s1-2026-09"]
	require.NotNil(t, stored.ReceiptPath)
	assert.Contains(t, *stored.ReceiptPath, "receipts/2026-09/")
}

func TestRecordPaymentRejectsNonPending(t *testing.T) {
	svc, _ := newFeeFixture(t)

	_, err := svc.GenerateInvoices(context.Background(), models.GenerateInvoicesRequest{BatchID: "b1", Period: "2026-09"})
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), "s1-2026-09", models.RecordPaymentRequest{Method: "CASH"})
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), "s1-2026-09", models.RecordPaymentRequest{Method: "CASH"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestOpenReceiptScopedToOwner(t *testing.T) {
	svc, _ := newFeeFixture(t)

	_, err := svc.GenerateInvoices(context.Background(), models.GenerateInvoicesRequest{BatchID: "b1", Period: "2026-09"})
	require.NoError(t, err)
	_, err = svc.RecordPayment(context.Background(), "s1-2026-09", models.RecordPaymentRequest{Method: "CASH"})
	require.NoError(t, err)

	invoice, file, err := svc.OpenReceipt(context.Background(), studentClaims("s1"), "s1-2026-09")
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
	assert.Equal(t, "s1-2026-09", invoice.ID)

	// another student's receipt reads as missing
	_, _, err = svc.OpenReceipt(context.Background(), studentClaims("s2"), "s1-2026-09")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestOpenReceiptRerendersEvictedFile(t *testing.T) {
	svc, repo := newFeeFixture(t)

	_, err := svc.GenerateInvoices(context.Background(), models.GenerateInvoicesRequest{BatchID: "b1", Period: "2026-09"})
	require.NoError(t, err)
	_, err = svc.RecordPayment(context.Background(), "s1-2026-09", models.RecordPaymentRequest{Method: "CASH"})
	require.NoError(t, err)

	require.NoError(t, svc.files.Delete(*repo.invoices["s1-2026-09"].ReceiptPath))

	_, file, err := svc.OpenReceipt(context.Background(), adminClaims("a1"), "s1-2026-09")
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck
}

func TestWaivePendingInvoice(t *testing.T) {
	svc, repo := newFeeFixture(t)

	_, err := svc.GenerateInvoices(context.Background(), models.GenerateInvoicesRequest{BatchID: "b1", Period: "2026-09"})
	require.NoError(t, err)

	waived, err := svc.Waive(context.Background(), "s2-2026-09")
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusWaived, waived.Status)
	assert.Nil(t, repo.invoices["s2-2026-09"].PaidAt)
}
