package models

import "time"

// Course represents a subject program offered by the center.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Level       string    `db:"level" json:"level"`
	Description string    `db:"description" json:"description"`
	MonthlyFee  int64     `db:"monthly_fee" json:"monthly_fee"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CreateCourseRequest is the payload for creating a course.
type CreateCourseRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Level       string `json:"level" validate:"required"`
	Description string `json:"description"`
	MonthlyFee  int64  `json:"monthly_fee" validate:"gte=0"`
}

// UpdateCourseRequest carries modifiable course fields.
type UpdateCourseRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Level       *string `json:"level"`
	Description *string `json:"description"`
	MonthlyFee  *int64  `json:"monthly_fee" validate:"omitempty,gte=0"`
	Active      *bool   `json:"active"`
}

// CourseFilter defines filter criteria for listing courses.
type CourseFilter struct {
	Level    string
	Active   *bool
	Search   string
	Page     int
	PageSize int
}
