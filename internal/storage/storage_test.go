package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/parser"
)

func jsonDecode(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

func TestChunkPointIDIsDeterministic(t *testing.T) {
	a := ChunkPointID("tenant-a", "doc-1", 0)
	b := ChunkPointID("tenant-a", "doc-1", 0)
	assert.Equal(t, a, b, "same tenant, source and index must map to the same point")

	assert.NotEqual(t, a, ChunkPointID("tenant-a", "doc-1", 1))
	assert.NotEqual(t, a, ChunkPointID("tenant-a", "doc-2", 0))
	assert.NotEqual(t, a, ChunkPointID("tenant-b", "doc-1", 0))
}

func TestSplitObjectPath(t *testing.T) {
	bucket, key, err := splitObjectPath("originals/abc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "originals", bucket)
	assert.Equal(t, "abc.pdf", key)

	// Keys may themselves contain slashes.
	bucket, key, err = splitObjectPath("parsed-text/tenant-a/abc.txt")
	require.NoError(t, err)
	assert.Equal(t, "parsed-text", bucket)
	assert.Equal(t, "tenant-a/abc.txt", key)

	for _, bad := range []string{"", "no-slash", "/leading", "trailing/"} {
		_, _, err := splitObjectPath(bad)
		assert.Error(t, err, "path %q", bad)
	}
}

func newQdrantTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Qdrant) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	q := &Qdrant{
		endpoint:       srv.URL,
		collectionName: "document_chunks",
		vectorSize:     3,
		distanceMetric: "Cosine",
		httpClient:     srv.Client(),
	}
	return srv, q
}

func TestQdrantSearchChunksRequiresTenant(t *testing.T) {
	_, q := newQdrantTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s %s", r.Method, r.URL.Path)
	})

	_, err := q.SearchChunks(context.Background(), "", []float64{1, 2, 3}, 5)
	assert.ErrorContains(t, err, "tenant id is required")
}

func TestQdrantSearchChunksSendsTenantFilter(t *testing.T) {
	var gotBody map[string]any
	_, q := newQdrantTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/collections/document_chunks/points/search", r.URL.Path)
		require.NoError(t, jsonDecode(r.Body, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result": [{"id": "p1", "score": 0.91, "payload": {"tenant_id": "tenant-a", "content": "go developer"}}], "status": "ok"}`))
	})

	hits, err := q.SearchChunks(context.Background(), "tenant-a", []float64{1, 2, 3}, 5)
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "p1", hits[0].ID)
	assert.InDelta(t, 0.91, float64(hits[0].Score), 1e-6)

	filter, ok := gotBody["filter"].(map[string]any)
	require.True(t, ok, "every search request must carry a filter")
	must, ok := filter["must"].([]any)
	require.True(t, ok)
	require.Len(t, must, 1)
	cond := must[0].(map[string]any)
	assert.Equal(t, "tenant_id", cond["key"])
	assert.Equal(t, map[string]any{"value": "tenant-a"}, cond["match"])
}

func TestQdrantSearchChunksDimensionMismatch(t *testing.T) {
	_, q := newQdrantTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s %s", r.Method, r.URL.Path)
	})

	_, err := q.SearchChunks(context.Background(), "tenant-a", []float64{1, 2}, 5)
	assert.ErrorContains(t, err, "dimension")
}

func TestQdrantUpsertChunkVectors(t *testing.T) {
	var gotBody map[string]any
	_, q := newQdrantTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/document_chunks/points", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		require.NoError(t, jsonDecode(r.Body, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok", "time": 0.001}`))
	})

	chunks := []parser.TextChunk{
		{Index: 0, Offset: 0, Text: "first chunk"},
		{Index: 1, Offset: 800, Text: "second chunk"},
	}
	embeddings := [][]float64{{1, 0, 0}, {0, 1, 0}}

	ids, err := q.UpsertChunkVectors(context.Background(), "tenant-a", "doc-1", chunks, embeddings)
	require.NoError(t, err)

	require.Len(t, ids, 2)
	assert.Equal(t, ChunkPointID("tenant-a", "doc-1", 0), ids[0])
	assert.Equal(t, ChunkPointID("tenant-a", "doc-1", 1), ids[1])

	points, ok := gotBody["points"].([]any)
	require.True(t, ok)
	require.Len(t, points, 2)
	payload := points[0].(map[string]any)["payload"].(map[string]any)
	assert.Equal(t, "tenant-a", payload["tenant_id"])
	assert.Equal(t, "doc-1", payload["source_id"])
	assert.Equal(t, "first chunk", payload["content"])
}

func TestQdrantUpsertChunkVectorsCountMismatch(t *testing.T) {
	_, q := newQdrantTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected, got %s %s", r.Method, r.URL.Path)
	})

	_, err := q.UpsertChunkVectors(context.Background(), "tenant-a", "doc-1",
		[]parser.TextChunk{{Index: 0, Text: "one"}}, [][]float64{{1, 0, 0}, {0, 1, 0}})
	assert.ErrorContains(t, err, "does not match")
}

func TestNewStorageRequiresConfig(t *testing.T) {
	_, err := NewStorage(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewStorageWithNothingConfigured(t *testing.T) {
	s, err := NewStorage(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, s.MinIO)
	assert.Nil(t, s.MySQL)
	assert.Nil(t, s.Redis)
	assert.Nil(t, s.Qdrant)
	assert.Nil(t, s.RabbitMQ)
}
