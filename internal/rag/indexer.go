package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/edugrove/examgen-api/internal/models"
	"github.com/edugrove/examgen-api/pkg/ai"
	"github.com/edugrove/examgen-api/pkg/extract"
)

// NATS subjects announcing indexing outcomes.
const (
	SubjectMaterialIndexed     = "material.indexed"
	SubjectMaterialIndexFailed = "material.index_failed"
)

// ErrQueueFull is returned when the indexing queue cannot accept more work.
var ErrQueueFull = fmt.Errorf("indexing queue is full")

var (
	indexJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "examgen",
		Subsystem: "indexing",
		Name:      "jobs_total",
		Help:      "Indexing jobs by outcome",
	}, []string{"outcome"})

	indexDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "examgen",
		Subsystem: "indexing",
		Name:      "job_duration_seconds",
		Help:      "Duration of indexing jobs",
	})
)

// IndexJob is one stored material waiting to be read, extracted,
// chunked, embedded and upserted. The job carries the storage path so
// the heavy extraction work happens on the worker, not in the upload
// request.
type IndexJob struct {
	MaterialID  uint
	Title       string
	StoragePath string
}

// DocumentReader loads stored document bytes by storage path.
type DocumentReader interface {
	Read(relative string) ([]byte, error)
}

// OutcomeStore records the final indexing state of a material.
type OutcomeStore interface {
	SetIndexOutcome(ctx context.Context, id uint, status string, chunkCount int, indexError string) error
}

// EventPublisher fans indexing lifecycle events out to interested
// consumers. *nats.Conn satisfies it.
type EventPublisher interface {
	Publish(subject string, data []byte) error
}

// Indexer runs the chunk-embed-upsert pipeline on a background worker.
// Uploads return immediately; a failed job marks its material failed
// without affecting other queued jobs.
type Indexer struct {
	documents DocumentReader
	embedder  ai.Embedder
	index     VectorIndex
	store     OutcomeStore
	events    EventPublisher
	chunkSize int
	jobs      chan IndexJob
	tracer    trace.Tracer
	logger    zerolog.Logger
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewIndexer builds the pipeline with a bounded queue.
func NewIndexer(documents DocumentReader, embedder ai.Embedder, index VectorIndex, store OutcomeStore, events EventPublisher, chunkSize, queueSize int, logger zerolog.Logger) *Indexer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	return &Indexer{
		documents: documents,
		embedder:  embedder,
		index:     index,
		store:     store,
		events:    events,
		chunkSize: chunkSize,
		jobs:      make(chan IndexJob, queueSize),
		tracer:    otel.Tracer("github.com/edugrove/examgen-api/internal/rag/indexer"),
		logger:    logger.With().Str("component", "indexer").Logger(),
	}
}

// Start launches the worker. It drains until Close is called or the
// context is cancelled.
func (ix *Indexer) Start(ctx context.Context) {
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-ix.jobs:
				if !ok {
					return
				}
				ix.process(ctx, job)
			}
		}
	}()
}

// Enqueue schedules a material for indexing without blocking the caller.
func (ix *Indexer) Enqueue(job IndexJob) error {
	select {
	case ix.jobs <- job:
		return nil
	default:
		indexJobs.WithLabelValues("rejected").Inc()
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for the queue to drain.
func (ix *Indexer) Close() {
	ix.closeOnce.Do(func() {
		close(ix.jobs)
	})
	ix.wg.Wait()
}

func (ix *Indexer) process(parent context.Context, job IndexJob) {
	ctx, span := ix.tracer.Start(parent, "indexer.process", trace.WithAttributes(
		attribute.Int("material_id", int(job.MaterialID)),
	))
	defer span.End()

	start := time.Now()
	chunkCount, err := ix.run(ctx, job)
	indexDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		indexJobs.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ix.logger.Error().Err(err).Uint("material_id", job.MaterialID).Msg("indexing failed")

		if storeErr := ix.store.SetIndexOutcome(ctx, job.MaterialID, models.IndexStatusFailed, 0, err.Error()); storeErr != nil {
			ix.logger.Error().Err(storeErr).Uint("material_id", job.MaterialID).Msg("failed to record indexing failure")
		}
		ix.publish(SubjectMaterialIndexFailed, job.MaterialID, 0, err.Error())
		return
	}

	indexJobs.WithLabelValues("indexed").Inc()
	ix.logger.Info().Uint("material_id", job.MaterialID).Int("chunks", chunkCount).Msg("material indexed")

	if storeErr := ix.store.SetIndexOutcome(ctx, job.MaterialID, models.IndexStatusIndexed, chunkCount, ""); storeErr != nil {
		ix.logger.Error().Err(storeErr).Uint("material_id", job.MaterialID).Msg("failed to record indexing success")
	}
	ix.publish(SubjectMaterialIndexed, job.MaterialID, chunkCount, "")
}

func (ix *Indexer) run(ctx context.Context, job IndexJob) (int, error) {
	data, err := ix.documents.Read(job.StoragePath)
	if err != nil {
		return 0, fmt.Errorf("read document: %w", err)
	}

	text, err := extract.Text(data)
	if err != nil {
		return 0, fmt.Errorf("extract text: %w", err)
	}

	chunks := Chunk(text, ix.chunkSize)
	// A blank document indexes as zero chunks. The material stays valid
	// and queryable-but-contextless; the condition shows up in the logs
	// and in the stored chunk count rather than as a job failure.
	if len(chunks) == 0 {
		ix.logger.Warn().Uint("material_id", job.MaterialID).Msg("no extractable text, indexing zero chunks")
		return 0, nil
	}

	vectors, err := ix.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	documents := make([]Document, len(chunks))
	for i, chunk := range chunks {
		documents[i] = Document{
			ID:         ChunkID(job.MaterialID, i),
			Text:       chunk,
			MaterialID: job.MaterialID,
			Title:      job.Title,
			Position:   i,
		}
	}

	if err := ix.index.Upsert(ctx, documents, vectors); err != nil {
		return 0, fmt.Errorf("upsert vectors: %w", err)
	}

	return len(chunks), nil
}

func (ix *Indexer) publish(subject string, materialID uint, chunks int, reason string) {
	if ix.events == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"material_id": materialID,
		"chunks":      chunks,
		"reason":      reason,
		"at":          time.Now().UTC(),
	})
	if err != nil {
		return
	}

	if err := ix.events.Publish(subject, payload); err != nil {
		ix.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish indexing event")
	}
}
