package models

import "time"

// MediaKind distinguishes class recordings from study materials.
type MediaKind string

const (
	MediaKindRecording MediaKind = "RECORDING"
	MediaKindMaterial  MediaKind = "MATERIAL"
)

// Valid returns true when the kind is a supported value.
func (k MediaKind) Valid() bool {
	return k == MediaKindRecording || k == MediaKindMaterial
}

// Media represents an uploaded recording or material for a batch.
type Media struct {
	ID         string    `db:"id" json:"id"`
	BatchID    string    `db:"batch_id" json:"batch_id"`
	Kind       MediaKind `db:"kind" json:"kind"`
	Title      string    `db:"title" json:"title"`
	FilePath   string    `db:"file_path" json:"-"`
	SizeBytes  int64     `db:"size_bytes" json:"size_bytes"`
	MimeType   string    `db:"mime_type" json:"mime_type"`
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// MediaDownload carries a signed download token for a media item.
type MediaDownload struct {
	Media
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// MediaFilter provides filters for listing media.
type MediaFilter struct {
	BatchIDs []string
	Kind     MediaKind
	Search   string
	Page     int
	PageSize int
}
