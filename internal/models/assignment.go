package models

import "time"

// Assignment represents homework handed out to a batch.
type Assignment struct {
	ID             string     `db:"id" json:"id"`
	BatchID        string     `db:"batch_id" json:"batch_id"`
	Title          string     `db:"title" json:"title"`
	Description    string     `db:"description" json:"description"`
	DueAt          time.Time  `db:"due_at" json:"due_at"`
	AttachmentPath *string    `db:"attachment_path" json:"attachment_path,omitempty"`
	CreatedBy      string     `db:"created_by" json:"created_by"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// CreateAssignmentRequest is the payload for handing out homework. An
// attachment references a media item already uploaded to the batch.
type CreateAssignmentRequest struct {
	BatchID           string    `json:"batch_id" validate:"required"`
	Title             string    `json:"title" validate:"required,min=1,max=200"`
	Description       string    `json:"description"`
	DueAt             time.Time `json:"due_at" validate:"required"`
	AttachmentMediaID *string   `json:"attachment_media_id"`
}

// UpdateAssignmentRequest carries modifiable assignment fields.
type UpdateAssignmentRequest struct {
	Title             *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description       *string    `json:"description"`
	DueAt             *time.Time `json:"due_at"`
	AttachmentMediaID *string    `json:"attachment_media_id"`
}

// AssignmentFilter defines filter criteria for listing assignments.
type AssignmentFilter struct {
	BatchIDs  []string
	CreatedBy string
	DueBefore *time.Time
	DueAfter  *time.Time
	Page      int
	PageSize  int
}
