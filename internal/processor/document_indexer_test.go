package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/pipeline"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/storage/models"
)

// testEmbedder returns one deterministic vector per input text.
type testEmbedder struct {
	Dimensions int
	Err        error

	ReceivedTexts [][]string
}

func newTestEmbedder(dims int) *testEmbedder {
	return &testEmbedder{Dimensions: dims}
}

func (f *testEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	f.ReceivedTexts = append(f.ReceivedTexts, texts)
	if f.Err != nil {
		return nil, f.Err
	}
	vectors := make([][]float64, len(texts))
	for i := range texts {
		vec := make([]float64, f.Dimensions)
		for d := range vec {
			vec[d] = float64(len(texts[i])+i+d) / 100
		}
		vectors[i] = vec
	}
	return vectors, nil
}

var _ embedding.Embedder = (*testEmbedder)(nil)

// fakeObjects is an in-memory ObjectStorage.
type fakeObjects struct {
	Files      map[string][]byte
	ParsedText map[string]string
	GetErr     error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{
		Files:      make(map[string][]byte),
		ParsedText: make(map[string]string),
	}
}

func (f *fakeObjects) UploadDocument(ctx context.Context, documentID, fileExt string, reader io.Reader, fileSize int64) (string, string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", "", err
	}
	path := "originals/" + documentID + fileExt
	f.Files[path] = data
	return path, "d41d8cd98f00b204e9800998ecf8427e", nil
}

func (f *fakeObjects) UploadParsedText(ctx context.Context, documentID, text string) (string, error) {
	path := "parsed-text/" + documentID + ".txt"
	f.ParsedText[path] = text
	return path, nil
}

func (f *fakeObjects) GetDocument(ctx context.Context, objectPath string) ([]byte, error) {
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	data, ok := f.Files[objectPath]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectPath)
	}
	return data, nil
}

func (f *fakeObjects) GetParsedText(ctx context.Context, objectPath string) (string, error) {
	return f.ParsedText[objectPath], nil
}

func (f *fakeObjects) GetPresignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	return "https://example.com/" + objectPath, nil
}

func (f *fakeObjects) DeleteObject(ctx context.Context, objectPath string) error {
	delete(f.Files, objectPath)
	return nil
}

var _ storage.ObjectStorage = (*fakeObjects)(nil)

// fakeVectorStore records upserts.
type fakeVectorStore struct {
	UpsertErr error

	UpsertedTenant string
	UpsertedSource string
	UpsertedChunks []parser.TextChunk
	SearchResults  []storage.SearchResult
	SearchTenant   string
	SearchVector   []float64
	SearchLimit    int
}

func (f *fakeVectorStore) UpsertChunkVectors(ctx context.Context, tenantID, sourceID string, chunks []parser.TextChunk, embeddings [][]float64) ([]string, error) {
	if f.UpsertErr != nil {
		return nil, f.UpsertErr
	}
	f.UpsertedTenant = tenantID
	f.UpsertedSource = sourceID
	f.UpsertedChunks = chunks
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = storage.ChunkPointID(tenantID, sourceID, chunks[i].Index)
	}
	return ids, nil
}

func (f *fakeVectorStore) SearchChunks(ctx context.Context, tenantID string, queryVector []float64, limit int) ([]storage.SearchResult, error) {
	f.SearchTenant = tenantID
	f.SearchVector = queryVector
	f.SearchLimit = limit
	return f.SearchResults, nil
}

func (f *fakeVectorStore) DeleteSource(ctx context.Context, tenantID, sourceID string) error {
	return nil
}

var _ storage.VectorStore = (*fakeVectorStore)(nil)

// fakeDocumentStore tracks status transitions.
type fakeDocumentStore struct {
	Statuses    map[string]string
	ParsedPaths map[string]string
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{
		Statuses:    make(map[string]string),
		ParsedPaths: make(map[string]string),
	}
}

func (f *fakeDocumentStore) UpdateDocumentStatus(ctx context.Context, documentID, status string) error {
	f.Statuses[documentID] = status
	return nil
}

func (f *fakeDocumentStore) UpdateDocumentParsedPath(ctx context.Context, documentID, parsedPath string) error {
	f.ParsedPaths[documentID] = parsedPath
	return nil
}

var _ DocumentStore = (*fakeDocumentStore)(nil)

// capturingActivity stores audit entries.
type capturingActivity struct {
	Entries []pipeline.ActivityEntry
}

func (c *capturingActivity) RecordActivity(ctx context.Context, entry pipeline.ActivityEntry) error {
	c.Entries = append(c.Entries, entry)
	return nil
}

type indexerFixture struct {
	indexer  *DocumentIndexer
	objects  *fakeObjects
	vectors  *fakeVectorStore
	docs     *fakeDocumentStore
	activity *capturingActivity
	embedder *testEmbedder
}

func newIndexerFixture(t *testing.T) *indexerFixture {
	t.Helper()

	objects := newFakeObjects()
	vectors := &fakeVectorStore{}
	docs := newFakeDocumentStore()
	activity := &capturingActivity{}
	embedder := newTestEmbedder(3)

	chunker, err := parser.NewChunker(20, 4)
	require.NoError(t, err)

	indexer, err := NewDocumentIndexer(
		chunker,
		embedder,
		vectors,
		objects,
		docs,
		nil,
		WithActivityLogger(activity),
		WithHandleTimeout(5*time.Second),
	)
	require.NoError(t, err)

	return &indexerFixture{
		indexer:  indexer,
		objects:  objects,
		vectors:  vectors,
		docs:     docs,
		activity: activity,
		embedder: embedder,
	}
}

func uploadedMessage(f *indexerFixture, content string) storage.DocumentUploadedMessage {
	path := "originals/doc-1.txt"
	f.objects.Files[path] = []byte(content)
	return storage.DocumentUploadedMessage{
		DocumentID:      "doc-1",
		TenantID:        "tenant-a",
		FileName:        "notes.txt",
		OriginalPathOSS: path,
		UploadedAt:      time.Now(),
	}
}

func TestIndexDocument(t *testing.T) {
	f := newIndexerFixture(t)
	msg := uploadedMessage(f, "go engineer with kubernetes experience")

	err := f.indexer.IndexDocument(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "tenant-a", f.vectors.UpsertedTenant)
	assert.Equal(t, "doc-1", f.vectors.UpsertedSource)
	assert.NotEmpty(t, f.vectors.UpsertedChunks)
	assert.Equal(t, models.DocumentStatusIndexed, f.docs.Statuses["doc-1"])
	assert.Contains(t, f.objects.ParsedText, "parsed-text/doc-1.txt")
	assert.Equal(t, "parsed-text/doc-1.txt", f.docs.ParsedPaths["doc-1"])

	require.Len(t, f.activity.Entries, 1)
	assert.Equal(t, "document_indexed", f.activity.Entries[0].Type)
	assert.Equal(t, "tenant-a", f.activity.Entries[0].TenantID)
}

func TestHandleDeliverySuccessAcks(t *testing.T) {
	f := newIndexerFixture(t)
	msg := uploadedMessage(f, "some document body")

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.Equal(t, storage.ConsumeAck, f.indexer.HandleDelivery(body))
}

func TestHandleDeliveryUndecodableBodyIsDropped(t *testing.T) {
	f := newIndexerFixture(t)
	assert.Equal(t, storage.ConsumeDrop, f.indexer.HandleDelivery([]byte("not json")))
}

func TestHandleDeliveryMissingIDsIsDropped(t *testing.T) {
	f := newIndexerFixture(t)
	body, err := json.Marshal(storage.DocumentUploadedMessage{FileName: "x.txt"})
	require.NoError(t, err)

	assert.Equal(t, storage.ConsumeDrop, f.indexer.HandleDelivery(body))
}

func TestHandleDeliveryEmptyDocumentIsDropped(t *testing.T) {
	f := newIndexerFixture(t)
	msg := uploadedMessage(f, "   \n  ")

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.Equal(t, storage.ConsumeDrop, f.indexer.HandleDelivery(body))
	assert.Equal(t, models.DocumentStatusIndexFailed, f.docs.Statuses["doc-1"])
}

func TestHandleDeliveryTransientFailureRetries(t *testing.T) {
	f := newIndexerFixture(t)
	msg := uploadedMessage(f, "some document body")
	f.objects.GetErr = errors.New("connection refused")

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.Equal(t, storage.ConsumeRetry, f.indexer.HandleDelivery(body))
	assert.NotEqual(t, models.DocumentStatusIndexFailed, f.docs.Statuses["doc-1"])
}

func TestSearchService(t *testing.T) {
	vectors := &fakeVectorStore{
		SearchResults: []storage.SearchResult{
			{
				ID:    "p1",
				Score: 0.87,
				Payload: map[string]any{
					"source_id":   "doc-1",
					"chunk_index": float64(2),
					"content":     "kubernetes operator experience",
					"tenant_id":   "tenant-a",
				},
			},
		},
	}
	svc, err := NewSearchService(newTestEmbedder(3), vectors)
	require.NoError(t, err)

	hits, err := svc.Search(context.Background(), "tenant-a", "kubernetes", 5)
	require.NoError(t, err)

	assert.Equal(t, "tenant-a", vectors.SearchTenant)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocumentID)
	assert.Equal(t, 2, hits[0].ChunkIndex)
	assert.Equal(t, "kubernetes operator experience", hits[0].Content)
	assert.InDelta(t, 0.87, float64(hits[0].Score), 1e-6)
}

func TestSearchServiceDefaultLimit(t *testing.T) {
	vectors := &fakeVectorStore{}
	svc, err := NewSearchService(newTestEmbedder(3), vectors, WithDefaultSearchLimit(25))
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "tenant-a", "kubernetes", 0)
	require.NoError(t, err)
	assert.Equal(t, 25, vectors.SearchLimit, "zero limit falls back to the configured default")

	_, err = svc.Search(context.Background(), "tenant-a", "kubernetes", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, vectors.SearchLimit, "an explicit limit wins")
}

func TestSearchServiceRejectsEmptyQuery(t *testing.T) {
	svc, err := NewSearchService(newTestEmbedder(3), &fakeVectorStore{})
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "tenant-a", "   ", 5)
	assert.ErrorContains(t, err, "must not be empty")
}
