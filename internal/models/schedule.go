package models

import "time"

// Schedule represents a weekly class slot for a batch.
type Schedule struct {
	ID        string    `db:"id" json:"id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	DayOfWeek string    `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	Room      string    `db:"room" json:"room"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CreateScheduleRequest is the payload for adding a weekly slot.
type CreateScheduleRequest struct {
	BatchID   string `json:"batch_id" validate:"required"`
	DayOfWeek string `json:"day_of_week" validate:"required,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY SUNDAY"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Room      string `json:"room" validate:"required"`
}

// UpdateScheduleRequest carries modifiable slot fields.
type UpdateScheduleRequest struct {
	DayOfWeek *string `json:"day_of_week" validate:"omitempty,oneof=MONDAY TUESDAY WEDNESDAY THURSDAY FRIDAY SATURDAY SUNDAY"`
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
	Room      *string `json:"room"`
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	BatchID   string
	TeacherID string
	DayOfWeek string
	Room      string
	Page      int
	PageSize  int
}

// ScheduleConflict describes an existing slot that collides with a new one.
type ScheduleConflict struct {
	ScheduleID string `json:"schedule_id"`
	BatchID    string `json:"batch_id"`
	DayOfWeek  string `json:"day_of_week"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Room       string `json:"room"`
	Dimension  string `json:"dimension"`
}

// ScheduleConflictError is returned when a slot collides with an existing one.
type ScheduleConflictError struct {
	Message   string             `json:"message"`
	Conflicts []ScheduleConflict `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
