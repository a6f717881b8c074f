package models

import "time"

// MembershipStatus represents the lifecycle of a batch membership.
type MembershipStatus string

// Possible membership statuses.
const (
	MembershipStatusActive      MembershipStatus = "ACTIVE"
	MembershipStatusTransferred MembershipStatus = "TRANSFERRED"
	MembershipStatusLeft        MembershipStatus = "LEFT"
)

// Membership captures a student's registration to a batch.
type Membership struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	BatchID   string           `db:"batch_id" json:"batch_id"`
	JoinedAt  time.Time        `db:"joined_at" json:"joined_at"`
	LeftAt    *time.Time       `db:"left_at" json:"left_at,omitempty"`
	Status    MembershipStatus `db:"status" json:"status"`
}

// MembershipDetail enriches Membership with student and batch info.
type MembershipDetail struct {
	Membership
	StudentName string `db:"student_name" json:"student_name"`
	BatchName   string `db:"batch_name" json:"batch_name"`
	CourseName  string `db:"course_name" json:"course_name"`
}

// EnrollRequest registers a student into a batch.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	BatchID   string `json:"batch_id" validate:"required"`
}

// TransferRequest moves a membership to another batch.
type TransferRequest struct {
	TargetBatchID string `json:"target_batch_id" validate:"required"`
}

// MembershipFilter provides filters for listing memberships.
type MembershipFilter struct {
	StudentID string
	BatchID   string
	Status    MembershipStatus
	Page      int
	PageSize  int
}
