package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/constants"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/tracing"
)

var searchTracer = otel.Tracer("resume-agent-go/processor/search")

// SearchHit is one match of a semantic search, flattened from the vector
// store payload.
type SearchHit struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
}

// SearchService embeds a query and runs a tenant-scoped similarity search
// over the indexed document chunks.
type SearchService struct {
	embedder     embedding.Embedder
	vectors      storage.VectorStore
	defaultLimit int
}

// SearchOption customizes a SearchService.
type SearchOption func(*SearchService)

// WithDefaultSearchLimit sets the result count used when a query gives none.
func WithDefaultSearchLimit(limit int) SearchOption {
	return func(s *SearchService) {
		if limit > 0 {
			s.defaultLimit = limit
		}
	}
}

// NewSearchService wires the search dependencies.
func NewSearchService(embedder embedding.Embedder, vectors storage.VectorStore, opts ...SearchOption) (*SearchService, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	s := &SearchService{
		embedder:     embedder,
		vectors:      vectors,
		defaultLimit: constants.DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Search returns the tenant's most similar chunks for the query text.
func (s *SearchService) Search(ctx context.Context, tenantID, query string, limit int) ([]SearchHit, error) {
	ctx, span := searchTracer.Start(ctx, "SearchService.Search",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("search.query", tracing.SafeDocumentContent(query)),
		attribute.Int("search.limit", limit),
	)

	if strings.TrimSpace(query) == "" {
		err := fmt.Errorf("search query must not be empty")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}

	vectors, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		err := fmt.Errorf("expected 1 query embedding, got %d", len(vectors))
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return nil, err
	}

	results, err := s.vectors.SearchChunks(ctx, tenantID, vectors[0], limit)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	hits := make([]SearchHit, 0, len(results))
	for _, result := range results {
		hit := SearchHit{Score: result.Score}
		if v, ok := result.Payload["source_id"].(string); ok {
			hit.DocumentID = v
		}
		if v, ok := result.Payload["content"].(string); ok {
			hit.Content = v
		}
		if v, ok := result.Payload["chunk_index"].(float64); ok {
			hit.ChunkIndex = int(v)
		}
		hits = append(hits, hit)
	}

	span.SetAttributes(attribute.Int("search.results.count", len(hits)))
	span.SetStatus(codes.Ok, "")
	return hits, nil
}
