package handler

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/storage/models"
)

// maxUploadBytes caps a single document upload.
const maxUploadBytes = 20 << 20

// DocumentHandler ingests uploaded documents. The upload path only stores
// the original and enqueues the indexing work; chunking and embedding run
// on the consumer side.
type DocumentHandler struct {
	cfg     *config.Config
	storage *storage.Storage
}

// NewDocumentHandler wires storage and config.
func NewDocumentHandler(cfg *config.Config, st *storage.Storage) *DocumentHandler {
	return &DocumentHandler{cfg: cfg, storage: st}
}

// DocumentUploadResponse is the upload reply.
type DocumentUploadResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	RawFileMD5 string `json:"raw_file_md5"`
}

// Upload accepts a multipart document, stores the original, records the
// metadata row and publishes the indexing message.
func (h *DocumentHandler) Upload(ctx context.Context, c *app.RequestContext) {
	if h.storage == nil || h.storage.MinIO == nil || h.storage.MySQL == nil {
		c.JSON(consts.StatusServiceUnavailable, errorResponse{Error: "document storage is not configured"})
		return
	}

	tenantID := tenantFrom(c)
	if tenantID == "" {
		c.JSON(consts.StatusUnauthorized, errorResponse{Error: "missing tenant identity"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "file field is required"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(consts.StatusRequestEntityTooLarge, errorResponse{Error: "file exceeds the upload limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: "failed to open uploaded file"})
		return
	}
	defer file.Close()

	fileBytes, err := io.ReadAll(file)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: "failed to read uploaded file"})
		return
	}

	sum := md5.Sum(fileBytes)
	md5Hex := hex.EncodeToString(sum[:])

	// Redis is the dedup guard. When it is down the upload proceeds; a
	// duplicate file costs storage, losing uploads costs data.
	if h.storage.Redis != nil {
		duplicate, err := h.storage.Redis.CheckAndMarkFileMD5(ctx, tenantID, md5Hex)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("md5", md5Hex).Msg("file dedup check failed, continuing")
		} else if duplicate {
			logger.Ctx(ctx).Info().
				Str("tenant_id", tenantID).
				Str("md5", md5Hex).
				Str("filename", fileHeader.Filename).
				Msg("duplicate upload skipped")
			c.JSON(consts.StatusConflict, DocumentUploadResponse{
				Status:     models.DocumentStatusDuplicate,
				RawFileMD5: md5Hex,
			})
			return
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: "failed to allocate document id"})
		return
	}
	documentID := id.String()
	ext := filepath.Ext(fileHeader.Filename)

	objectPath, _, err := h.storage.MinIO.UploadDocument(ctx, documentID, ext, bytes.NewReader(fileBytes), fileHeader.Size)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: fmt.Sprintf("failed to store document: %v", err)})
		return
	}

	doc := &models.Document{
		DocumentID:      documentID,
		TenantID:        tenantID,
		FileName:        fileHeader.Filename,
		RawFileMD5:      md5Hex,
		OriginalPathOSS: objectPath,
		Status:          models.DocumentStatusUploaded,
	}
	if err := h.storage.MySQL.CreateDocument(ctx, doc); err != nil {
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: fmt.Sprintf("failed to record document: %v", err)})
		return
	}

	status := models.DocumentStatusUploaded
	if h.storage.RabbitMQ != nil {
		msg := storage.DocumentUploadedMessage{
			DocumentID:      documentID,
			TenantID:        tenantID,
			FileName:        fileHeader.Filename,
			OriginalPathOSS: objectPath,
			RawFileMD5:      md5Hex,
			UploadedAt:      time.Now().UTC(),
		}
		err := h.storage.RabbitMQ.PublishJSON(ctx, h.cfg.RabbitMQ.DocumentExchange, h.cfg.RabbitMQ.UploadedRoutingKey, msg, true)
		if err != nil {
			// The row stays UPLOADED so a later repair pass can re-enqueue it.
			logger.Ctx(ctx).Error().Err(err).Str("document_id", documentID).Msg("failed to publish indexing message")
		} else {
			status = models.DocumentStatusQueued
			if err := h.storage.MySQL.UpdateDocumentStatus(ctx, documentID, status); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("document_id", documentID).Msg("failed to mark document queued")
			}
		}
	}

	c.JSON(consts.StatusOK, DocumentUploadResponse{
		DocumentID: documentID,
		Status:     status,
		RawFileMD5: md5Hex,
	})
}

// List returns the tenant's recent documents, newest first.
func (h *DocumentHandler) List(ctx context.Context, c *app.RequestContext) {
	if h.storage == nil || h.storage.MySQL == nil {
		c.JSON(consts.StatusServiceUnavailable, errorResponse{Error: "document storage is not configured"})
		return
	}

	tenantID := tenantFrom(c)
	if tenantID == "" {
		c.JSON(consts.StatusUnauthorized, errorResponse{Error: "missing tenant identity"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	docs, err := h.storage.MySQL.ListDocuments(ctx, tenantID, limit)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: "failed to list documents"})
		return
	}

	c.JSON(consts.StatusOK, map[string]any{"documents": docs})
}

// Get returns one document row by id, scoped to the tenant.
func (h *DocumentHandler) Get(ctx context.Context, c *app.RequestContext) {
	doc, ok := h.loadDocument(ctx, c)
	if !ok {
		return
	}
	c.JSON(consts.StatusOK, doc)
}

// Text returns the extracted plain text of an indexed document.
func (h *DocumentHandler) Text(ctx context.Context, c *app.RequestContext) {
	doc, ok := h.loadDocument(ctx, c)
	if !ok {
		return
	}
	if h.storage.MinIO == nil {
		c.JSON(consts.StatusServiceUnavailable, errorResponse{Error: "object storage is not configured"})
		return
	}
	if doc.ParsedTextPathOSS == "" {
		c.JSON(consts.StatusNotFound, errorResponse{Error: "document has no extracted text yet"})
		return
	}

	text, err := h.storage.MinIO.GetParsedText(ctx, doc.ParsedTextPathOSS)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: "failed to load extracted text"})
		return
	}

	c.JSON(consts.StatusOK, map[string]any{
		"document_id": doc.DocumentID,
		"text":        text,
	})
}

// downloadURLExpiry bounds how long a presigned link stays usable.
const downloadURLExpiry = 15 * time.Minute

// Download returns a presigned URL for the original uploaded object.
func (h *DocumentHandler) Download(ctx context.Context, c *app.RequestContext) {
	doc, ok := h.loadDocument(ctx, c)
	if !ok {
		return
	}
	if h.storage.MinIO == nil {
		c.JSON(consts.StatusServiceUnavailable, errorResponse{Error: "object storage is not configured"})
		return
	}

	url, err := h.storage.MinIO.GetPresignedURL(ctx, doc.OriginalPathOSS, downloadURLExpiry)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: "failed to sign download url"})
		return
	}

	c.JSON(consts.StatusOK, map[string]any{
		"document_id":        doc.DocumentID,
		"url":                url,
		"expires_in_seconds": int(downloadURLExpiry.Seconds()),
	})
}

// Delete removes a document and its derived artifacts. Vector deletion must
// succeed before anything else is touched; orphaned points would outlive the
// row and keep surfacing in search.
func (h *DocumentHandler) Delete(ctx context.Context, c *app.RequestContext) {
	doc, ok := h.loadDocument(ctx, c)
	if !ok {
		return
	}
	tenantID := tenantFrom(c)

	if h.storage.Qdrant != nil {
		if err := h.storage.Qdrant.DeleteSource(ctx, tenantID, doc.DocumentID); err != nil {
			c.JSON(consts.StatusInternalServerError, errorResponse{Error: "failed to delete document vectors"})
			return
		}
	}

	// Object cleanup is best-effort. A leaked blob costs storage; a failed
	// delete request costs the caller a retry of everything above.
	if h.storage.MinIO != nil {
		if err := h.storage.MinIO.DeleteObject(ctx, doc.OriginalPathOSS); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("path", doc.OriginalPathOSS).Msg("failed to delete original object")
		}
		if doc.ParsedTextPathOSS != "" {
			if err := h.storage.MinIO.DeleteObject(ctx, doc.ParsedTextPathOSS); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("path", doc.ParsedTextPathOSS).Msg("failed to delete parsed text object")
			}
		}
	}

	if err := h.storage.MySQL.DeleteDocument(ctx, tenantID, doc.DocumentID); err != nil {
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: "failed to delete document record"})
		return
	}

	// Release the dedup slot so the same file can be uploaded again.
	if h.storage.Redis != nil && doc.RawFileMD5 != "" {
		if err := h.storage.Redis.ForgetFileMD5(ctx, tenantID, doc.RawFileMD5); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("md5", doc.RawFileMD5).Msg("failed to release dedup entry")
		}
	}

	c.JSON(consts.StatusOK, map[string]any{
		"document_id": doc.DocumentID,
		"status":      "DELETED",
	})
}

// loadDocument runs the shared guards for the per-document routes and
// resolves the row. A false return means a response was already written.
func (h *DocumentHandler) loadDocument(ctx context.Context, c *app.RequestContext) (*models.Document, bool) {
	if h.storage == nil || h.storage.MySQL == nil {
		c.JSON(consts.StatusServiceUnavailable, errorResponse{Error: "document storage is not configured"})
		return nil, false
	}

	tenantID := tenantFrom(c)
	if tenantID == "" {
		c.JSON(consts.StatusUnauthorized, errorResponse{Error: "missing tenant identity"})
		return nil, false
	}

	documentID := c.Param("document_id")
	if documentID == "" {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "document_id is required"})
		return nil, false
	}

	doc, err := h.storage.MySQL.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, errorResponse{Error: "document not found"})
			return nil, false
		}
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: "failed to load document"})
		return nil, false
	}
	return doc, true
}
