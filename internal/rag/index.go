package rag

import (
	"context"
	"fmt"

	"github.com/edugrove/examgen-api/pkg/pinecone"
)

// Document is one chunk headed for the vector index.
type Document struct {
	ID         string
	Text       string
	MaterialID uint
	Title      string
	Position   int
}

// Match is one retrieved chunk with its similarity score.
type Match struct {
	ID         string
	Score      float64
	Text       string
	MaterialID uint
}

// VectorIndex abstracts the vector database so services and tests do
// not depend on Pinecone directly.
type VectorIndex interface {
	Upsert(ctx context.Context, documents []Document, vectors [][]float32) error
	Query(ctx context.Context, vector []float32, topK int, materialIDs []uint) ([]Match, error)
	DeleteMaterial(ctx context.Context, materialID uint) error
}

type pineconeIndex struct {
	client pinecone.Client
}

// NewPineconeIndex adapts a Pinecone client to the VectorIndex port.
// The index is described up front and its dimension compared against
// the embedding dimension: a mismatch is a configuration error that
// would otherwise fail on every upsert, so startup refuses it.
func NewPineconeIndex(ctx context.Context, client pinecone.Client, dimension int) (VectorIndex, error) {
	description, err := client.DescribeIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("describe index: %w", err)
	}
	if description.Dimension != dimension {
		return nil, fmt.Errorf("index %q has dimension %d, embeddings are configured for %d", description.Name, description.Dimension, dimension)
	}

	return &pineconeIndex{client: client}, nil
}

func (p *pineconeIndex) Upsert(ctx context.Context, documents []Document, vectors [][]float32) error {
	if len(documents) != len(vectors) {
		return fmt.Errorf("document and vector counts differ: %d vs %d", len(documents), len(vectors))
	}

	payload := make([]pinecone.Vector, len(documents))
	for i, doc := range documents {
		payload[i] = pinecone.Vector{
			ID:     doc.ID,
			Values: vectors[i],
			Metadata: map[string]any{
				"text":        doc.Text,
				"material_id": float64(doc.MaterialID),
				"title":       doc.Title,
				"position":    float64(doc.Position),
			},
		}
	}

	return p.client.Upsert(ctx, payload)
}

func (p *pineconeIndex) Query(ctx context.Context, vector []float32, topK int, materialIDs []uint) ([]Match, error) {
	request := pinecone.QueryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
	}

	if len(materialIDs) > 0 {
		ids := make([]any, len(materialIDs))
		for i, id := range materialIDs {
			ids[i] = float64(id)
		}
		request.Filter = map[string]any{"material_id": map[string]any{"$in": ids}}
	}

	response, err := p.client.Query(ctx, request)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(response.Matches))
	for _, m := range response.Matches {
		match := Match{ID: m.ID, Score: m.Score}
		if text, ok := m.Metadata["text"].(string); ok {
			match.Text = text
		}
		if id, ok := m.Metadata["material_id"].(float64); ok {
			match.MaterialID = uint(id)
		}
		matches = append(matches, match)
	}

	return matches, nil
}

func (p *pineconeIndex) DeleteMaterial(ctx context.Context, materialID uint) error {
	return p.client.DeleteByFilter(ctx, map[string]any{
		"material_id": map[string]any{"$eq": float64(materialID)},
	})
}
