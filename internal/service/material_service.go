package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/edugrove/examgen-api/internal/dto"
	"github.com/edugrove/examgen-api/internal/models"
	"github.com/edugrove/examgen-api/internal/rag"
	"github.com/edugrove/examgen-api/internal/repository"
	"github.com/edugrove/examgen-api/pkg/extract"
)

// Material service errors.
var (
	ErrMaterialNotFound    = errors.New("material not found")
	ErrUnsupportedMaterial = errors.New("unsupported material type")
	ErrMaterialTooLarge    = errors.New("material exceeds the size limit")
)

// FileUploader pushes video assets to a remote CDN.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// DocumentStore keeps document bytes available for re-extraction.
type DocumentStore interface {
	Save(name string, reader io.Reader) (string, error)
	Read(relative string) ([]byte, error)
	Remove(relative string) error
}

// IndexEnqueuer schedules background indexing work.
type IndexEnqueuer interface {
	Enqueue(job rag.IndexJob) error
}

// VectorCleaner removes a material's vectors from the index.
type VectorCleaner interface {
	DeleteMaterial(ctx context.Context, materialID uint) error
}

// MaterialService manages study material uploads and their index lifecycle.
type MaterialService interface {
	Upload(ctx context.Context, payload dto.MaterialUploadRequest, file *multipart.FileHeader, uploaderID uint) (dto.MaterialResponse, error)
	List(ctx context.Context, filter dto.MaterialFilter, role string) ([]dto.MaterialResponse, error)
	Get(ctx context.Context, id uint) (dto.MaterialResponse, error)
	Delete(ctx context.Context, id uint) error
}

type materialService struct {
	materials repository.MaterialRepository
	documents DocumentStore
	videos    FileUploader
	indexer   IndexEnqueuer
	vectors   VectorCleaner
	validator *validator.Validate
	maxBytes  int64
	logger    zerolog.Logger
}

// NewMaterialService constructs a MaterialService instance.
func NewMaterialService(materials repository.MaterialRepository, documents DocumentStore, videos FileUploader, indexer IndexEnqueuer, vectors VectorCleaner, validate *validator.Validate, maxSizeMB int, logger zerolog.Logger) MaterialService {
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}

	return &materialService{
		materials: materials,
		documents: documents,
		videos:    videos,
		indexer:   indexer,
		vectors:   vectors,
		validator: validate,
		maxBytes:  int64(maxSizeMB) * 1024 * 1024,
		logger:    logger.With().Str("component", "material_service").Logger(),
	}
}

func (s *materialService) Upload(ctx context.Context, payload dto.MaterialUploadRequest, file *multipart.FileHeader, uploaderID uint) (dto.MaterialResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.MaterialResponse{}, err
	}

	if file == nil {
		return dto.MaterialResponse{}, fmt.Errorf("material file is required")
	}

	if file.Size > s.maxBytes {
		return dto.MaterialResponse{}, ErrMaterialTooLarge
	}

	reader, err := file.Open()
	if err != nil {
		return dto.MaterialResponse{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, s.maxBytes+1))
	if err != nil {
		return dto.MaterialResponse{}, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return dto.MaterialResponse{}, ErrMaterialTooLarge
	}

	detected := mimetype.Detect(data)
	checksum := sha256.Sum256(data)

	visibility := payload.Visibility
	if visibility == "" {
		visibility = models.VisibilityGlobal
	}

	material := models.Material{
		Title:      payload.Title,
		FileName:   file.Filename,
		MimeType:   detected.String(),
		SizeBytes:  int64(len(data)),
		Checksum:   hex.EncodeToString(checksum[:]),
		UploaderID: uploaderID,
		Visibility: visibility,
	}

	switch {
	case strings.HasPrefix(detected.String(), "video/"):
		material.Kind = models.MaterialKindVideo
		material.IndexStatus = models.IndexStatusIndexed

		url, err := s.videos.Upload(ctx, file.Filename, bytes.NewReader(data))
		if err != nil {
			return dto.MaterialResponse{}, fmt.Errorf("failed to upload video: %w", err)
		}
		material.FileURL = url

	case extract.Supported(detected.String()):
		material.Kind = models.MaterialKindDocument
		material.IndexStatus = models.IndexStatusPending

		path, err := s.documents.Save(file.Filename, bytes.NewReader(data))
		if err != nil {
			return dto.MaterialResponse{}, fmt.Errorf("failed to store document: %w", err)
		}
		material.StoragePath = path
		material.FileURL = "/uploads/" + path

	default:
		return dto.MaterialResponse{}, fmt.Errorf("%w: %s", ErrUnsupportedMaterial, detected.String())
	}

	if err := s.materials.Create(ctx, &material); err != nil {
		if material.StoragePath != "" {
			_ = s.documents.Remove(material.StoragePath)
		}
		return dto.MaterialResponse{}, err
	}

	// Extraction and embedding run on the indexing worker; the upload
	// response returns as soon as the job is queued.
	if material.IsDocument() {
		s.enqueueIndexing(ctx, material)
	}

	s.logger.Info().Uint("material_id", material.ID).Str("kind", material.Kind).Msg("material uploaded")

	return dto.NewMaterialResponse(material), nil
}

func (s *materialService) enqueueIndexing(ctx context.Context, material models.Material) {
	job := rag.IndexJob{MaterialID: material.ID, Title: material.Title, StoragePath: material.StoragePath}
	if err := s.indexer.Enqueue(job); err != nil {
		s.logger.Warn().Err(err).Uint("material_id", material.ID).Msg("indexing enqueue failed")
		if storeErr := s.materials.SetIndexOutcome(ctx, material.ID, models.IndexStatusFailed, 0, err.Error()); storeErr != nil {
			s.logger.Error().Err(storeErr).Uint("material_id", material.ID).Msg("failed to record enqueue failure")
		}
	}
}

func (s *materialService) List(ctx context.Context, filter dto.MaterialFilter, role string) ([]dto.MaterialResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	repoFilter := repository.MaterialFilter{}
	if filter.Kind != nil {
		repoFilter.Kind = *filter.Kind
	}
	if filter.IndexStatus != nil {
		repoFilter.IndexStatus = *filter.IndexStatus
	}

	materials, err := s.materials.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	// Students only see globally visible materials.
	if role != models.RoleTeacher {
		visible := materials[:0]
		for _, material := range materials {
			if material.Visibility == models.VisibilityGlobal {
				visible = append(visible, material)
			}
		}
		materials = visible
	}

	return dto.NewMaterialResponseSlice(materials), nil
}

func (s *materialService) Get(ctx context.Context, id uint) (dto.MaterialResponse, error) {
	material, err := s.materials.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MaterialResponse{}, ErrMaterialNotFound
		}
		return dto.MaterialResponse{}, err
	}

	return dto.NewMaterialResponse(material), nil
}

func (s *materialService) Delete(ctx context.Context, id uint) error {
	material, err := s.materials.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMaterialNotFound
		}
		return err
	}

	if err := s.materials.Delete(ctx, id); err != nil {
		return err
	}

	if material.StoragePath != "" {
		if err := s.documents.Remove(material.StoragePath); err != nil {
			s.logger.Warn().Err(err).Uint("material_id", id).Msg("failed to remove stored file")
		}
	}

	// Vector cleanup is best effort: orphaned vectors are filtered out
	// by material scoping at query time.
	if s.vectors != nil && material.IsDocument() {
		if err := s.vectors.DeleteMaterial(ctx, id); err != nil {
			s.logger.Warn().Err(err).Uint("material_id", id).Msg("failed to delete vectors")
		}
	}

	s.logger.Info().Uint("material_id", id).Msg("material deleted")

	return nil
}
