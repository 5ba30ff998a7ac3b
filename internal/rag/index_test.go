package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edugrove/examgen-api/pkg/pinecone"
)

type stubPineconeClient struct {
	description *pinecone.IndexDescription
	err         error
}

func (s *stubPineconeClient) DescribeIndex(ctx context.Context) (*pinecone.IndexDescription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.description, nil
}

func (s *stubPineconeClient) Upsert(ctx context.Context, vectors []pinecone.Vector) error {
	return nil
}

func (s *stubPineconeClient) Query(ctx context.Context, req pinecone.QueryRequest) (*pinecone.QueryResponse, error) {
	return &pinecone.QueryResponse{}, nil
}

func (s *stubPineconeClient) DeleteByFilter(ctx context.Context, filter map[string]any) error {
	return nil
}

func TestNewPineconeIndexAcceptsMatchingDimension(t *testing.T) {
	client := &stubPineconeClient{description: &pinecone.IndexDescription{
		Name:      "examgen",
		Host:      "examgen-abc123.svc.pinecone.io",
		Dimension: 1536,
	}}

	index, err := NewPineconeIndex(context.Background(), client, 1536)
	require.NoError(t, err)
	require.NotNil(t, index)
}

func TestNewPineconeIndexRejectsDimensionMismatch(t *testing.T) {
	client := &stubPineconeClient{description: &pinecone.IndexDescription{
		Name:      "examgen",
		Host:      "examgen-abc123.svc.pinecone.io",
		Dimension: 768,
	}}

	_, err := NewPineconeIndex(context.Background(), client, 1536)
	require.Error(t, err)
	require.Contains(t, err.Error(), "dimension")
}

func TestNewPineconeIndexDescribeFailure(t *testing.T) {
	client := &stubPineconeClient{err: errors.New("control plane unreachable")}

	_, err := NewPineconeIndex(context.Background(), client, 1536)
	require.Error(t, err)
	require.Contains(t, err.Error(), "control plane unreachable")
}
