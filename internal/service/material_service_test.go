package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/edugrove/examgen-api/internal/dto"
	"github.com/edugrove/examgen-api/internal/models"
	"github.com/edugrove/examgen-api/internal/rag"
	"github.com/edugrove/examgen-api/internal/repository"
)

type memoryMaterialRepo struct {
	materials map[uint]models.Material
	nextID    uint
}

func newMemoryMaterialRepo() *memoryMaterialRepo {
	return &memoryMaterialRepo{materials: make(map[uint]models.Material), nextID: 1}
}

func (m *memoryMaterialRepo) List(ctx context.Context, filter repository.MaterialFilter) ([]models.Material, error) {
	results := make([]models.Material, 0, len(m.materials))
	for _, material := range m.materials {
		if filter.Kind != "" && material.Kind != filter.Kind {
			continue
		}
		if filter.IndexStatus != "" && material.IndexStatus != filter.IndexStatus {
			continue
		}
		if filter.UploaderID != nil && material.UploaderID != *filter.UploaderID {
			continue
		}
		results = append(results, material)
	}
	return results, nil
}

func (m *memoryMaterialRepo) GetByID(ctx context.Context, id uint) (models.Material, error) {
	material, ok := m.materials[id]
	if !ok {
		return models.Material{}, gorm.ErrRecordNotFound
	}
	return material, nil
}

func (m *memoryMaterialRepo) GetByIDs(ctx context.Context, ids []uint) ([]models.Material, error) {
	results := make([]models.Material, 0, len(ids))
	for _, id := range ids {
		if material, ok := m.materials[id]; ok {
			results = append(results, material)
		}
	}
	return results, nil
}

func (m *memoryMaterialRepo) ListGlobalDocuments(ctx context.Context) ([]models.Material, error) {
	results := make([]models.Material, 0, len(m.materials))
	for _, material := range m.materials {
		if material.Kind == models.MaterialKindDocument && material.Visibility == models.VisibilityGlobal {
			results = append(results, material)
		}
	}
	return results, nil
}

func (m *memoryMaterialRepo) Create(ctx context.Context, material *models.Material) error {
	material.ID = m.nextID
	m.materials[m.nextID] = *material
	m.nextID++
	return nil
}

func (m *memoryMaterialRepo) Update(ctx context.Context, material *models.Material) error {
	if _, ok := m.materials[material.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	m.materials[material.ID] = *material
	return nil
}

func (m *memoryMaterialRepo) SetIndexOutcome(ctx context.Context, id uint, status string, chunkCount int, indexError string) error {
	material, ok := m.materials[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	material.IndexStatus = status
	material.ChunkCount = chunkCount
	material.IndexError = indexError
	m.materials[id] = material
	return nil
}

func (m *memoryMaterialRepo) Delete(ctx context.Context, id uint) error {
	if _, ok := m.materials[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.materials, id)
	return nil
}

type memoryDocStore struct {
	files map[string][]byte
	seq   int
}

func newMemoryDocStore() *memoryDocStore {
	return &memoryDocStore{files: make(map[string][]byte)}
}

func (m *memoryDocStore) Save(name string, reader io.Reader) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	m.seq++
	path := name
	if _, exists := m.files[path]; exists {
		path = name + "-dup"
	}
	m.files[path] = data
	return path, nil
}

func (m *memoryDocStore) Read(relative string) ([]byte, error) {
	data, ok := m.files[relative]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (m *memoryDocStore) Remove(relative string) error {
	delete(m.files, relative)
	return nil
}

type stubUploader struct {
	url   string
	err   error
	calls int
}

func (s *stubUploader) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if s.url == "" {
		return "https://cdn.example/" + name, nil
	}
	return s.url, nil
}

type stubEnqueuer struct {
	jobs []rag.IndexJob
	err  error
}

func (s *stubEnqueuer) Enqueue(job rag.IndexJob) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

type stubCleaner struct {
	deleted []uint
	err     error
}

func (s *stubCleaner) DeleteMaterial(ctx context.Context, materialID uint) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, materialID)
	return nil
}

func newTestFileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))

	return req.MultipartForm.File["file"][0]
}

func newMaterialServiceForTest(repo *memoryMaterialRepo, docs *memoryDocStore, uploader *stubUploader, enqueuer *stubEnqueuer, cleaner *stubCleaner) MaterialService {
	validate := validator.New(validator.WithRequiredStructEnabled())
	return NewMaterialService(repo, docs, uploader, enqueuer, cleaner, validate, 25, zerolog.Nop())
}

func TestMaterialUploadDocumentEnqueuesIndexing(t *testing.T) {
	repo := newMemoryMaterialRepo()
	docs := newMemoryDocStore()
	enqueuer := &stubEnqueuer{}
	svc := newMaterialServiceForTest(repo, docs, &stubUploader{}, enqueuer, &stubCleaner{})

	content := []byte(strings.Repeat("Photosynthesis converts light into chemical energy. ", 10))
	file := newTestFileHeader(t, "notes.txt", content)

	response, err := svc.Upload(context.Background(), dto.MaterialUploadRequest{Title: "Biology Notes"}, file, 11)
	require.NoError(t, err)
	require.Equal(t, models.MaterialKindDocument, response.Kind)
	require.Equal(t, models.IndexStatusPending, response.IndexStatus)
	require.Equal(t, models.VisibilityGlobal, response.Visibility)
	require.Equal(t, uint(11), response.UploaderID)

	stored, err := repo.GetByID(context.Background(), response.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.StoragePath)

	// The job carries only the storage path; extraction runs on the
	// indexing worker, not in the upload request.
	require.Len(t, enqueuer.jobs, 1)
	require.Equal(t, response.ID, enqueuer.jobs[0].MaterialID)
	require.Equal(t, stored.StoragePath, enqueuer.jobs[0].StoragePath)
}

func TestMaterialUploadEnqueueFailureMarksFailed(t *testing.T) {
	repo := newMemoryMaterialRepo()
	svc := newMaterialServiceForTest(repo, newMemoryDocStore(), &stubUploader{}, &stubEnqueuer{err: rag.ErrQueueFull}, &stubCleaner{})

	content := []byte(strings.Repeat("Cell division happens in phases. ", 10))
	file := newTestFileHeader(t, "mitosis.txt", content)

	response, err := svc.Upload(context.Background(), dto.MaterialUploadRequest{Title: "Mitosis"}, file, 1)
	require.NoError(t, err, "upload must succeed even when indexing cannot start")

	stored, err := repo.GetByID(context.Background(), response.ID)
	require.NoError(t, err)
	require.Equal(t, models.IndexStatusFailed, stored.IndexStatus)
	require.NotEmpty(t, stored.IndexError)
}

func TestMaterialUploadRejectsUnsupportedType(t *testing.T) {
	svc := newMaterialServiceForTest(newMemoryMaterialRepo(), newMemoryDocStore(), &stubUploader{}, &stubEnqueuer{}, &stubCleaner{})

	file := newTestFileHeader(t, "archive.bin", []byte{0x00, 0x01, 0x02, 0x03, 0xff, 0xfe})

	_, err := svc.Upload(context.Background(), dto.MaterialUploadRequest{Title: "Binary blob"}, file, 1)
	require.ErrorIs(t, err, ErrUnsupportedMaterial)
}

func TestMaterialListScopesVisibilityForStudents(t *testing.T) {
	repo := newMemoryMaterialRepo()
	require.NoError(t, repo.Create(context.Background(), &models.Material{Title: "Global", Kind: models.MaterialKindDocument, Visibility: models.VisibilityGlobal}))
	require.NoError(t, repo.Create(context.Background(), &models.Material{Title: "Scoped", Kind: models.MaterialKindDocument, Visibility: models.VisibilityScoped}))

	svc := newMaterialServiceForTest(repo, newMemoryDocStore(), &stubUploader{}, &stubEnqueuer{}, &stubCleaner{})

	asTeacher, err := svc.List(context.Background(), dto.MaterialFilter{}, models.RoleTeacher)
	require.NoError(t, err)
	require.Len(t, asTeacher, 2)

	asStudent, err := svc.List(context.Background(), dto.MaterialFilter{}, models.RoleStudent)
	require.NoError(t, err)
	require.Len(t, asStudent, 1)
	require.Equal(t, "Global", asStudent[0].Title)
}

func TestMaterialDeleteCleansUpVectorsAndFile(t *testing.T) {
	repo := newMemoryMaterialRepo()
	docs := newMemoryDocStore()
	cleaner := &stubCleaner{}

	path, err := docs.Save("old.txt", strings.NewReader("stale"))
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &models.Material{
		Title:       "Old notes",
		Kind:        models.MaterialKindDocument,
		StoragePath: path,
	}))

	svc := newMaterialServiceForTest(repo, docs, &stubUploader{}, &stubEnqueuer{}, cleaner)

	require.NoError(t, svc.Delete(context.Background(), 1))
	require.Equal(t, []uint{1}, cleaner.deleted)
	_, err = docs.Read(path)
	require.Error(t, err)

	require.ErrorIs(t, svc.Delete(context.Background(), 1), ErrMaterialNotFound)
}

func TestMaterialDeleteToleratesVectorFailure(t *testing.T) {
	repo := newMemoryMaterialRepo()
	require.NoError(t, repo.Create(context.Background(), &models.Material{Title: "Notes", Kind: models.MaterialKindDocument}))

	svc := newMaterialServiceForTest(repo, newMemoryDocStore(), &stubUploader{}, &stubEnqueuer{}, &stubCleaner{err: errors.New("index down")})

	require.NoError(t, svc.Delete(context.Background(), 1))
	_, err := repo.GetByID(context.Background(), 1)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
