package rag

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edugrove/examgen-api/pkg/ai"
)

// MinUsableContext is the shortest retrieved context worth grounding a
// generation on. Anything shorter triggers the direct extraction fallback.
const MinUsableContext = 50

// Retriever embeds a query and pulls the nearest chunks from the index.
type Retriever struct {
	embedder ai.Embedder
	index    VectorIndex
	topK     int
	logger   zerolog.Logger
}

// NewRetriever wires the retriever with its default result count.
func NewRetriever(embedder ai.Embedder, index VectorIndex, topK int, logger zerolog.Logger) *Retriever {
	if topK <= 0 {
		topK = 20
	}

	return &Retriever{
		embedder: embedder,
		index:    index,
		topK:     topK,
		logger:   logger.With().Str("component", "retriever").Logger(),
	}
}

// Context retrieves the chunks most relevant to the query and joins
// their texts with blank lines. Retrieval is best effort: every failure
// is logged and collapses to an empty context so callers can fall back
// to direct extraction instead of failing the request.
func (r *Retriever) Context(ctx context.Context, query string, materialIDs []uint) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil || len(vectors) == 0 {
		r.logger.Warn().Err(err).Msg("query embedding failed")
		return ""
	}

	matches, err := r.index.Query(ctx, vectors[0], r.topK, materialIDs)
	if err != nil {
		r.logger.Warn().Err(err).Msg("vector query failed")
		return ""
	}

	texts := make([]string, 0, len(matches))
	for _, match := range matches {
		if match.Text != "" {
			texts = append(texts, match.Text)
		}
	}

	return strings.Join(texts, "\n\n")
}

// Usable reports whether a retrieved context is long enough to ground
// a generation.
func Usable(context string) bool {
	return len(strings.TrimSpace(context)) > MinUsableContext
}
