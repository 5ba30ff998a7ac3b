package dto

import (
	"time"

	"github.com/edugrove/examgen-api/internal/models"
)

// MaterialUploadRequest describes the multipart metadata for a material upload.
type MaterialUploadRequest struct {
	Title      string `form:"title" validate:"required,min=3"`
	Visibility string `form:"visibility" validate:"omitempty,oneof=global scoped"`
}

// MaterialFilter describes query string filters for listing materials.
type MaterialFilter struct {
	Kind        *string `query:"kind" validate:"omitempty,oneof=document video"`
	IndexStatus *string `query:"index_status" validate:"omitempty,oneof=pending indexed failed"`
}

// MaterialResponse is the serialized material returned to API clients.
type MaterialResponse struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	FileName    string    `json:"file_name"`
	FileURL     string    `json:"file_url"`
	MimeType    string    `json:"mime_type"`
	Kind        string    `json:"kind"`
	SizeBytes   int64     `json:"size_bytes"`
	Visibility  string    `json:"visibility"`
	IndexStatus string    `json:"index_status"`
	IndexError  string    `json:"index_error,omitempty"`
	ChunkCount  int       `json:"chunk_count"`
	UploaderID  uint      `json:"uploader_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewMaterialResponse converts a model into a DTO.
func NewMaterialResponse(model models.Material) MaterialResponse {
	return MaterialResponse{
		ID:          model.ID,
		Title:       model.Title,
		FileName:    model.FileName,
		FileURL:     model.FileURL,
		MimeType:    model.MimeType,
		Kind:        model.Kind,
		SizeBytes:   model.SizeBytes,
		Visibility:  model.Visibility,
		IndexStatus: model.IndexStatus,
		IndexError:  model.IndexError,
		ChunkCount:  model.ChunkCount,
		UploaderID:  model.UploaderID,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

// NewMaterialResponseSlice converts a slice of models into DTOs.
func NewMaterialResponseSlice(materials []models.Material) []MaterialResponse {
	responses := make([]MaterialResponse, 0, len(materials))
	for _, material := range materials {
		responses = append(responses, NewMaterialResponse(material))
	}

	return responses
}
