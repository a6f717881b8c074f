package models

import "time"

// FeeStatus represents the payment state of an invoice.
type FeeStatus string

const (
	FeeStatusPending FeeStatus = "PENDING"
	FeeStatusPaid    FeeStatus = "PAID"
	FeeStatusWaived  FeeStatus = "WAIVED"
)

// FeeInvoice represents a monthly fee owed by a student for a batch.
type FeeInvoice struct {
	ID          string     `db:"id" json:"id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	BatchID     string     `db:"batch_id" json:"batch_id"`
	Period      string     `db:"period" json:"period"`
	Amount      int64      `db:"amount" json:"amount"`
	Status      FeeStatus  `db:"status" json:"status"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	Method      *string    `db:"method" json:"method,omitempty"`
	ReceiptPath *string    `db:"receipt_path" json:"receipt_path,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// FeeInvoiceDetail enriches FeeInvoice with student and batch info.
type FeeInvoiceDetail struct {
	FeeInvoice
	StudentName string `db:"student_name" json:"student_name"`
	BatchName   string `db:"batch_name" json:"batch_name"`
}

// GenerateInvoicesRequest creates the monthly invoices for a batch.
type GenerateInvoicesRequest struct {
	BatchID string `json:"batch_id" validate:"required"`
	Period  string `json:"period" validate:"required,len=7"`
}

// RecordPaymentRequest marks an invoice as paid.
type RecordPaymentRequest struct {
	Method string `json:"method" validate:"required,oneof=CASH TRANSFER QRIS"`
}

// FeeFilter provides filters for listing invoices.
type FeeFilter struct {
	StudentID string
	BatchID   string
	Period    string
	Status    FeeStatus
	Page      int
	PageSize  int
}
