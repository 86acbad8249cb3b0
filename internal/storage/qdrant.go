package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/constants"
	applog "resume-agent-go/internal/logger"
	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/tracing"
)

var qdrantTracer = otel.Tracer("resume-agent-go/storage/qdrant")

// maxPayloadContentLength bounds the chunk text carried in point payloads.
// Full text lives in object storage.
const maxPayloadContentLength = 1000

// QdrantPointIDNamespace is the UUIDv5 namespace for chunk point IDs. The
// same tenant, source and chunk index always map to the same point, which
// makes re-indexing idempotent.
var QdrantPointIDNamespace = uuid.Must(uuid.FromString("6e9a2f41-8c17-4d02-b5aa-41c0de5b9f37"))

// ChunkPointID derives the deterministic point ID of one chunk.
func ChunkPointID(tenantID, sourceID string, chunkIndex int) string {
	return uuid.NewV5(QdrantPointIDNamespace, fmt.Sprintf("%s:%s:%d", tenantID, sourceID, chunkIndex)).String()
}

// VectorStore is the vector database surface the indexer and search path
// depend on.
type VectorStore interface {
	UpsertChunkVectors(ctx context.Context, tenantID, sourceID string, chunks []parser.TextChunk, embeddings [][]float64) ([]string, error)
	SearchChunks(ctx context.Context, tenantID string, queryVector []float64, limit int) ([]SearchResult, error)
	DeleteSource(ctx context.Context, tenantID, sourceID string) error
}

var _ VectorStore = (*Qdrant)(nil)

// Qdrant talks to the Qdrant HTTP API.
type Qdrant struct {
	endpoint       string
	collectionName string
	vectorSize     int
	distanceMetric string
	apiKey         string
	httpClient     *http.Client
}

// SearchResult is one scored vector hit.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// QdrantOption customizes the client.
type QdrantOption func(*Qdrant)

func WithDistanceMetric(metric string) QdrantOption {
	return func(q *Qdrant) {
		q.distanceMetric = metric
	}
}

func WithHTTPTimeout(timeout time.Duration) QdrantOption {
	return func(q *Qdrant) {
		q.httpClient = &http.Client{Timeout: timeout}
	}
}

// NewQdrant creates the client and makes sure the collection exists.
func NewQdrant(cfg *config.QdrantConfig, opts ...QdrantOption) (*Qdrant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant config cannot be nil")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:6333"
	}
	collectionName := cfg.Collection
	if collectionName == "" {
		collectionName = "document_chunks"
	}
	vectorSize := cfg.Dimension
	if vectorSize <= 0 {
		vectorSize = constants.DefaultVectorDims
	}

	q := &Qdrant{
		endpoint:       endpoint,
		collectionName: collectionName,
		vectorSize:     vectorSize,
		distanceMetric: "Cosine",
		apiKey:         cfg.APIKey,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.ensureCollectionExists(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure collection %q exists: %w", collectionName, err)
	}

	applog.Info().
		Str("endpoint", endpoint).
		Str("collection", collectionName).
		Int("dimension", vectorSize).
		Msg("connected to Qdrant")
	return q, nil
}

func (q *Qdrant) ensureCollectionExists(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.EnsureCollectionExists",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "check_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
	)

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}

	err := q.doRequest(ctx, http.MethodGet, "/collections/"+q.collectionName, nil, &info)
	if err != nil {
		var apiErr *qdrantAPIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			span.AddEvent("collection_not_found")
			return q.createCollection(ctx)
		}
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	existingSize := info.Result.Config.Params.Vectors.Size
	existingDistance := info.Result.Config.Params.Vectors.Distance
	if existingSize != q.vectorSize || existingDistance != q.distanceMetric {
		applog.Warn().
			Int("existing_size", existingSize).
			Str("existing_distance", existingDistance).
			Int("configured_size", q.vectorSize).
			Str("configured_distance", q.distanceMetric).
			Msg("existing Qdrant collection does not match configuration")
		span.AddEvent("collection_config_mismatch", trace.WithAttributes(
			attribute.Int("expected_vector_size", q.vectorSize),
			attribute.String("expected_distance", q.distanceMetric),
		))
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (q *Qdrant) createCollection(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CreateCollection",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "create_collection"),
		attribute.String("db.collection", q.collectionName),
		attribute.Int("db.vector_size", q.vectorSize),
		attribute.String("db.vector.distance", q.distanceMetric),
	)

	body := map[string]any{
		"vectors": map[string]any{
			"size":     q.vectorSize,
			"distance": q.distanceMetric,
		},
		"optimizers_config": map[string]any{
			"default_segment_number": 2,
		},
	}

	if err := q.doRequest(ctx, http.MethodPut, "/collections/"+q.collectionName, body, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	span.SetStatus(codes.Ok, "")
	applog.Info().Str("collection", q.collectionName).Int("dimension", q.vectorSize).Msg("created Qdrant collection")
	return nil
}

// UpsertChunkVectors writes one point per chunk. Point IDs are derived from
// (tenant, source, index), so re-running the indexer overwrites instead of
// duplicating.
func (q *Qdrant) UpsertChunkVectors(ctx context.Context, tenantID, sourceID string, chunks []parser.TextChunk, embeddings [][]float64) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.UpsertChunkVectors",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "upsert_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("tenant.id", tenantID),
		attribute.String("source.id", sourceID),
		attribute.Int("vectors.count", len(embeddings)),
	)

	if len(chunks) != len(embeddings) {
		err := fmt.Errorf("chunk count (%d) does not match embedding count (%d)", len(chunks), len(embeddings))
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	if len(embeddings) == 0 {
		span.SetStatus(codes.Ok, "no vectors to store")
		return []string{}, nil
	}

	points := make([]any, 0, len(chunks))
	ids := make([]string, 0, len(chunks))
	for i, embedding := range embeddings {
		if len(embedding) != q.vectorSize {
			err := fmt.Errorf("embedding dimension (%d) does not match collection dimension (%d)", len(embedding), q.vectorSize)
			tracing.RecordError(span, err, tracing.ErrorTypeValidation)
			return nil, err
		}

		chunk := chunks[i]
		pointID := ChunkPointID(tenantID, sourceID, chunk.Index)
		ids = append(ids, pointID)

		points = append(points, map[string]any{
			"id":     pointID,
			"vector": embedding,
			"payload": map[string]any{
				"tenant_id":   tenantID,
				"source_id":   sourceID,
				"chunk_index": chunk.Index,
				"content":     tracing.TruncateString(chunk.Text, maxPayloadContentLength),
			},
		})
	}

	var resp struct {
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}
	err := q.doRequest(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", q.collectionName),
		map[string]any{"points": points}, &resp)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("qdrant.response_status", resp.Status),
		attribute.Float64("qdrant.response_time", resp.Time),
	)
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// SearchChunks runs a similarity search restricted to one tenant. The
// tenant filter is mandatory; cross-tenant hits must be impossible.
func (q *Qdrant) SearchChunks(ctx context.Context, tenantID string, queryVector []float64, limit int) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.SearchChunks",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "search_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("tenant.id", tenantID),
		attribute.Int("search.limit", limit),
		attribute.Int("query_vector.size", len(queryVector)),
	)

	if tenantID == "" {
		err := fmt.Errorf("tenant id is required for vector search")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	if len(queryVector) != q.vectorSize {
		err := fmt.Errorf("query vector dimension (%d) does not match collection dimension (%d)", len(queryVector), q.vectorSize)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	if limit <= 0 {
		limit = constants.DefaultSearchLimit
	}

	searchReq := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   "tenant_id",
					"match": map[string]any{"value": tenantID},
				},
			},
		},
	}

	var result struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
		Status string  `json:"status"`
		Time   float64 `json:"time"`
	}
	err := q.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/search", q.collectionName),
		searchReq, &result)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return nil, err
	}

	hits := make([]SearchResult, 0, len(result.Result))
	for _, point := range result.Result {
		hits = append(hits, SearchResult{
			ID:      point.ID,
			Score:   point.Score,
			Payload: point.Payload,
		})
	}

	span.SetAttributes(
		attribute.Int("search.results.count", len(hits)),
		attribute.String("qdrant.response_status", result.Status),
	)
	span.SetStatus(codes.Ok, "")
	return hits, nil
}

// DeleteSource removes every point of one document within a tenant.
func (q *Qdrant) DeleteSource(ctx context.Context, tenantID, sourceID string) error {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.DeleteSource",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "delete_points"),
		attribute.String("db.collection", q.collectionName),
		attribute.String("tenant.id", tenantID),
		attribute.String("source.id", sourceID),
	)

	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "tenant_id", "match": map[string]any{"value": tenantID}},
				{"key": "source_id", "match": map[string]any{"value": sourceID}},
			},
		},
	}

	if err := q.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collectionName),
		body, nil); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CountPoints returns the exact number of points in the collection.
func (q *Qdrant) CountPoints(ctx context.Context) (int64, error) {
	ctx, span := qdrantTracer.Start(ctx, "Qdrant.CountPoints",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", "count_points"),
		attribute.String("db.collection", q.collectionName),
	)

	var result struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	err := q.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/count", q.collectionName),
		map[string]any{"exact": true}, &result)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return 0, err
	}

	span.SetStatus(codes.Ok, "")
	return result.Result.Count, nil
}

// qdrantAPIError carries the HTTP status of a failed Qdrant call.
type qdrantAPIError struct {
	StatusCode int
	Body       string
}

func (e *qdrantAPIError) Error() string {
	return fmt.Sprintf("qdrant API error: status=%d, body=%s", e.StatusCode, e.Body)
}

func (q *Qdrant) doRequest(ctx context.Context, method, path string, body any, result any) error {
	ctx, span := qdrantTracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("net.peer.name", q.endpoint),
		attribute.String("db.system", "qdrant"),
		attribute.String("db.operation", path),
	)

	var req *http.Request
	var err error
	if body != nil {
		jsonBody, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			tracing.RecordError(span, marshalErr, tracing.ErrorTypeVectorDB)
			return marshalErr
		}
		req, err = http.NewRequestWithContext(ctx, method, q.endpoint+path, bytes.NewBuffer(jsonBody))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
			span.SetAttributes(attribute.Int("http.request.body.size", len(jsonBody)))
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, q.endpoint+path, nil)
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return err
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := q.httpClient.Do(req)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeHTTP)
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &qdrantAPIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		tracing.RecordHTTPError(span, apiErr, resp.StatusCode)
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
			return err
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
