package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/pipeline"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/storage/models"
	"resume-agent-go/internal/tracing"
)

var indexerTracer = otel.Tracer("resume-agent-go/processor/indexer")

// errPermanent marks failures that retrying cannot fix. The consumer drops
// the message instead of requeueing it.
var errPermanent = errors.New("permanent indexing failure")

// DocumentStore is the relational surface the indexer needs.
type DocumentStore interface {
	UpdateDocumentStatus(ctx context.Context, documentID, status string) error
	UpdateDocumentParsedPath(ctx context.Context, documentID, parsedPath string) error
}

// TextExtractor turns raw file bytes into plain text.
type TextExtractor interface {
	ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, error)
}

// DocumentIndexer consumes uploaded-document messages and turns each file
// into searchable chunk vectors. It runs entirely off the request path.
type DocumentIndexer struct {
	chunker   *parser.Chunker
	embedder  embedding.Embedder
	vectors   storage.VectorStore
	objects   storage.ObjectStorage
	documents DocumentStore
	extractor TextExtractor
	activity  pipeline.ActivityLogger

	// handleTimeout bounds the processing of a single message.
	handleTimeout time.Duration
}

// IndexerOption customizes a DocumentIndexer.
type IndexerOption func(*DocumentIndexer)

// WithActivityLogger wires the audit log sink.
func WithActivityLogger(activity pipeline.ActivityLogger) IndexerOption {
	return func(d *DocumentIndexer) {
		d.activity = activity
	}
}

// WithHandleTimeout bounds per-message processing time.
func WithHandleTimeout(timeout time.Duration) IndexerOption {
	return func(d *DocumentIndexer) {
		d.handleTimeout = timeout
	}
}

// NewDocumentIndexer wires the indexing dependencies.
func NewDocumentIndexer(
	chunker *parser.Chunker,
	embedder embedding.Embedder,
	vectors storage.VectorStore,
	objects storage.ObjectStorage,
	documents DocumentStore,
	extractor TextExtractor,
	opts ...IndexerOption,
) (*DocumentIndexer, error) {
	if chunker == nil {
		return nil, fmt.Errorf("chunker cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if objects == nil {
		return nil, fmt.Errorf("object storage cannot be nil")
	}
	if documents == nil {
		return nil, fmt.Errorf("document store cannot be nil")
	}

	d := &DocumentIndexer{
		chunker:       chunker,
		embedder:      embedder,
		vectors:       vectors,
		objects:       objects,
		documents:     documents,
		extractor:     extractor,
		handleTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// HandleDelivery adapts IndexDocument to the broker consumer contract.
// Undecodable or permanently failing messages are dropped so they cannot
// poison the queue; transient failures are requeued.
func (d *DocumentIndexer) HandleDelivery(body []byte) storage.ConsumeResult {
	var msg storage.DocumentUploadedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		logger.Error().Err(err).Msg("dropping undecodable document message")
		return storage.ConsumeDrop
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.handleTimeout)
	defer cancel()

	if err := d.IndexDocument(ctx, msg); err != nil {
		if errors.Is(err, errPermanent) {
			logger.Error().
				Err(err).
				Str("document_id", msg.DocumentID).
				Str("tenant_id", msg.TenantID).
				Msg("dropping document after permanent indexing failure")
			d.markFailed(msg.DocumentID)
			return storage.ConsumeDrop
		}
		logger.Warn().
			Err(err).
			Str("document_id", msg.DocumentID).
			Str("tenant_id", msg.TenantID).
			Msg("indexing failed, message will be retried")
		return storage.ConsumeRetry
	}
	return storage.ConsumeAck
}

// IndexDocument downloads the original, extracts its text, chunks and
// embeds it and writes the vectors. Wrap errors in errPermanent when a
// retry cannot possibly succeed.
func (d *DocumentIndexer) IndexDocument(ctx context.Context, msg storage.DocumentUploadedMessage) error {
	ctx, span := indexerTracer.Start(ctx, "DocumentIndexer.IndexDocument",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	span.SetAttributes(
		attribute.String("document.id", msg.DocumentID),
		attribute.String("tenant.id", msg.TenantID),
		attribute.String("document.file_name", tracing.SafeAttributeValue("file_name", msg.FileName, tracing.DefaultMaxLength)),
	)

	if msg.DocumentID == "" || msg.TenantID == "" {
		err := fmt.Errorf("%w: message missing document or tenant id", errPermanent)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return err
	}

	start := time.Now()

	data, err := d.objects.GetDocument(ctx, msg.OriginalPathOSS)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return fmt.Errorf("failed to download original %s: %w", msg.OriginalPathOSS, err)
	}

	text, err := d.extractText(ctx, msg, data)
	if err != nil {
		// A file whose text cannot be extracted will fail on every retry.
		err = fmt.Errorf("%w: text extraction: %v", errPermanent, err)
		tracing.RecordError(span, err, tracing.ErrorTypeParse)
		return err
	}
	if strings.TrimSpace(text) == "" {
		err := fmt.Errorf("%w: document %s contains no extractable text", errPermanent, msg.DocumentID)
		tracing.RecordError(span, err, tracing.ErrorTypeParse)
		return err
	}

	parsedPath, err := d.objects.UploadParsedText(ctx, msg.DocumentID, text)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return fmt.Errorf("failed to store parsed text: %w", err)
	}
	if err := d.documents.UpdateDocumentParsedPath(ctx, msg.DocumentID, parsedPath); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("document_id", msg.DocumentID).Msg("failed to record parsed text path")
	}

	chunks := d.chunker.Chunk(text)
	if len(chunks) == 0 {
		err := fmt.Errorf("%w: document %s produced no chunks", errPermanent, msg.DocumentID)
		tracing.RecordError(span, err, tracing.ErrorTypeParse)
		return err
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	embeddings, err := d.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeProvider)
		return fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}

	ids, err := d.vectors.UpsertChunkVectors(ctx, msg.TenantID, msg.DocumentID, chunks, embeddings)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("failed to store chunk vectors: %w", err)
	}

	if err := d.documents.UpdateDocumentStatus(ctx, msg.DocumentID, models.DocumentStatusIndexed); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("document_id", msg.DocumentID).Msg("failed to mark document indexed")
	}

	d.recordActivity(ctx, msg, len(ids))

	span.SetAttributes(
		attribute.Int("chunks.count", len(chunks)),
		attribute.Int("vectors.count", len(ids)),
	)
	span.SetStatus(codes.Ok, "")

	logger.Ctx(ctx).Info().
		Str("document_id", msg.DocumentID).
		Str("tenant_id", msg.TenantID).
		Int("chunks", len(chunks)).
		Dur("took", time.Since(start)).
		Msg("document indexed")
	return nil
}

// extractText picks the extraction strategy by file extension. Plain text
// passes through; PDFs go through the parser.
func (d *DocumentIndexer) extractText(ctx context.Context, msg storage.DocumentUploadedMessage, data []byte) (string, error) {
	name := strings.ToLower(msg.FileName)
	switch {
	case strings.HasSuffix(name, ".txt"), strings.HasSuffix(name, ".md"):
		return string(data), nil
	case strings.HasSuffix(name, ".pdf"):
		if d.extractor == nil {
			return "", fmt.Errorf("no PDF extractor configured")
		}
		return d.extractor.ExtractTextFromBytes(ctx, data, msg.FileName)
	default:
		// Unknown formats are treated as UTF-8 text.
		return string(data), nil
	}
}

func (d *DocumentIndexer) markFailed(documentID string) {
	if documentID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.documents.UpdateDocumentStatus(ctx, documentID, models.DocumentStatusIndexFailed); err != nil {
		logger.Warn().Err(err).Str("document_id", documentID).Msg("failed to mark document as failed")
	}
}

// recordActivity appends the audit entry. Best-effort only.
func (d *DocumentIndexer) recordActivity(ctx context.Context, msg storage.DocumentUploadedMessage, vectorCount int) {
	if d.activity == nil {
		return
	}
	entry := pipeline.ActivityEntry{
		TenantID: msg.TenantID,
		Type:     "document_indexed",
		Subject:  tracing.TruncateString(msg.FileName, tracing.MaxDocumentLength),
		Score:    vectorCount,
	}
	if err := d.activity.RecordActivity(ctx, entry); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("document_id", msg.DocumentID).Msg("failed to record indexing activity")
	}
}
