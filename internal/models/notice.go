package models

import (
	"time"

	"github.com/lib/pq"
)

// NoticeAudience defines who can see a notice.
type NoticeAudience string

const (
	NoticeAudienceAll      NoticeAudience = "ALL"
	NoticeAudienceTeachers NoticeAudience = "TEACHERS"
	NoticeAudienceStudents NoticeAudience = "STUDENTS"
	NoticeAudienceBatch    NoticeAudience = "BATCH"
)

// Valid returns true when the audience is a supported value.
func (a NoticeAudience) Valid() bool {
	switch a {
	case NoticeAudienceAll, NoticeAudienceTeachers, NoticeAudienceStudents, NoticeAudienceBatch:
		return true
	default:
		return false
	}
}

// Notice represents a persisted notice row.
//
// A scheduled notice is created with is_active = false and becomes active when
// the sweep promotes it after scheduled_at has passed.
type Notice struct {
	ID             string         `db:"id" json:"id"`
	Title          string         `db:"title" json:"title"`
	Description    string         `db:"description" json:"description"`
	PostedBy       string         `db:"posted_by" json:"posted_by"`
	Audience       NoticeAudience `db:"audience" json:"audience"`
	TargetBatchIDs pq.StringArray `db:"target_batch_ids" json:"target_batch_ids,omitempty"`
	IsActive       bool           `db:"is_active" json:"is_active"`
	IsScheduled    bool           `db:"is_scheduled" json:"is_scheduled"`
	ScheduledAt    *time.Time     `db:"scheduled_at" json:"scheduled_at,omitempty"`
	ExpiresAt      *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	IsImportant    bool           `db:"is_important" json:"is_important"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// CreateNoticeRequest is the payload for posting a notice.
type CreateNoticeRequest struct {
	Title          string         `json:"title" validate:"required,min=1,max=200"`
	Description    string         `json:"description" validate:"required"`
	Audience       NoticeAudience `json:"audience" validate:"required"`
	TargetBatchIDs []string       `json:"target_batch_ids"`
	ScheduledAt    *time.Time     `json:"scheduled_at"`
	ExpiresAt      *time.Time     `json:"expires_at"`
	IsImportant    bool           `json:"is_important"`
}

// UpdateNoticeRequest carries the fields a notice owner may change. Nil
// pointers leave the stored value untouched.
type UpdateNoticeRequest struct {
	Title          *string         `json:"title" validate:"omitempty,min=1,max=200"`
	Description    *string         `json:"description" validate:"omitempty,min=1"`
	Audience       *NoticeAudience `json:"audience"`
	TargetBatchIDs *[]string       `json:"target_batch_ids"`
	ScheduledAt    *time.Time      `json:"scheduled_at"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	IsImportant    *bool           `json:"is_important"`
}

// NoticeList bundles a page of notices with its pagination metadata. It is
// the unit stored in the listing cache.
type NoticeList struct {
	Items      []Notice    `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// NoticeFilter describes the predicate used to resolve notice listings.
//
// Now is the cutoff instant for the effective-visibility predicate; the
// resolver captures it once so every clause in one query agrees on "now".
type NoticeFilter struct {
	ViewerRole     UserRole
	ViewerBatchIDs []string
	// OwnerID scopes the listing to notices posted by this user.
	OwnerID string
	// IncludeScheduledFor names a user whose own not-yet-active scheduled
	// notices are included despite the visibility predicate.
	IncludeScheduledFor string
	Keyword             string
	Date                *time.Time
	Audience            NoticeAudience
	BatchID             string
	Now                 time.Time
	Page                int
	PageSize            int
}
