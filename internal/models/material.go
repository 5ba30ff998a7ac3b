package models

import "time"

// Material represents an uploaded study resource that can back quiz
// generation and retrieval. Documents are kept on local disk so their
// raw text can be re-extracted when the vector index is unavailable;
// videos are delegated to Cloudinary.
type Material struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	FileName    string    `gorm:"size:255;not null" json:"file_name"`
	FileURL     string    `gorm:"size:512" json:"file_url"`
	StoragePath string    `gorm:"size:512" json:"-"`
	MimeType    string    `gorm:"size:128" json:"mime_type"`
	Kind        string    `gorm:"size:32;not null" json:"kind"`
	SizeBytes   int64     `json:"size_bytes"`
	Checksum    string    `gorm:"size:64" json:"checksum"`
	UploaderID  uint      `gorm:"not null;index" json:"uploader_id"`
	Visibility  string    `gorm:"size:32;not null;default:global" json:"visibility"`
	IndexStatus string    `gorm:"size:32;not null;default:pending" json:"index_status"`
	IndexError  string    `gorm:"type:text" json:"index_error,omitempty"`
	ChunkCount  int       `json:"chunk_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	// MaterialKindDocument covers PDF, plain text and HTML uploads.
	MaterialKindDocument = "document"
	// MaterialKindVideo covers video uploads stored in Cloudinary.
	MaterialKindVideo = "video"
)

const (
	// VisibilityGlobal makes the material retrievable for every assessment.
	VisibilityGlobal = "global"
	// VisibilityScoped restricts the material to assessments that reference it.
	VisibilityScoped = "scoped"
)

const (
	// IndexStatusPending means the material is queued for chunking and embedding.
	IndexStatusPending = "pending"
	// IndexStatusIndexed means all chunks were embedded and upserted.
	IndexStatusIndexed = "indexed"
	// IndexStatusFailed means the pipeline aborted; the material stays usable
	// through the direct extraction fallback.
	IndexStatusFailed = "failed"
)

// IsIndexed reports whether the material's chunks are available in the vector index.
func (m Material) IsIndexed() bool {
	return m.IndexStatus == IndexStatusIndexed
}

// IsDocument reports whether the material holds extractable text.
func (m Material) IsDocument() bool {
	return m.Kind == MaterialKindDocument
}
