package models

import "time"

// Batch represents a group of students taking a course together.
type Batch struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CourseID  string    `db:"course_id" json:"course_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Capacity  int       `db:"capacity" json:"capacity"`
	StartDate time.Time `db:"start_date" json:"start_date"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BatchDetail extends Batch with course and teacher info for responses.
type BatchDetail struct {
	Batch
	CourseName  string `db:"course_name" json:"course_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// CreateBatchRequest is the payload for opening a batch.
type CreateBatchRequest struct {
	Name      string    `json:"name" validate:"required,min=1,max=100"`
	CourseID  string    `json:"course_id" validate:"required"`
	TeacherID string    `json:"teacher_id" validate:"required"`
	Capacity  int       `json:"capacity" validate:"required,gt=0"`
	StartDate time.Time `json:"start_date" validate:"required"`
}

// UpdateBatchRequest carries modifiable batch fields.
type UpdateBatchRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=100"`
	TeacherID *string `json:"teacher_id"`
	Capacity  *int    `json:"capacity" validate:"omitempty,gt=0"`
	Active    *bool   `json:"active"`
}

// BatchFilter defines filter criteria for listing batches.
type BatchFilter struct {
	CourseID  string
	TeacherID string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
}
