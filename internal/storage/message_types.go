package storage

import "time"

// DocumentUploadedMessage is published after an upload has been persisted.
// The indexing consumer picks it up asynchronously; the upload request never
// waits for chunking or embedding.
type DocumentUploadedMessage struct {
	DocumentID      string    `json:"document_id"`
	TenantID        string    `json:"tenant_id"`
	FileName        string    `json:"file_name"`
	OriginalPathOSS string    `json:"original_path_oss"`
	RawFileMD5      string    `json:"raw_file_md5,omitempty"`
	UploadedAt      time.Time `json:"uploaded_at"`
}
