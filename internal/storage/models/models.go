package models

import (
	"time"

	"gorm.io/datatypes"
)

// Document describes one uploaded source file and where its artifacts live.
type Document struct {
	DocumentID        string         `gorm:"type:char(36);primaryKey"`
	TenantID          string         `gorm:"type:varchar(64);not null;index:idx_documents_tenant"`
	FileName          string         `gorm:"type:varchar(255)"`
	RawFileMD5        string         `gorm:"type:char(32);index:idx_documents_raw_md5"`
	OriginalPathOSS   string         `gorm:"type:varchar(1024)"`
	ParsedTextPathOSS string         `gorm:"type:varchar(1024)"`
	Status            string         `gorm:"type:varchar(50);default:'UPLOADED';index:idx_documents_status"`
	Detail            datatypes.JSON `gorm:"type:json"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Document) TableName() string {
	return "documents"
}

// Document processing statuses.
const (
	DocumentStatusUploaded    = "UPLOADED"
	DocumentStatusQueued      = "QUEUED"
	DocumentStatusIndexed     = "INDEXED"
	DocumentStatusIndexFailed = "INDEX_FAILED"
	DocumentStatusDuplicate   = "DUPLICATE"
)

// ActivityRecord is one row of the per-tenant audit trail. Every pipeline
// run and document ingestion appends one.
type ActivityRecord struct {
	ActivityID string    `gorm:"type:char(36);primaryKey"`
	TenantID   string    `gorm:"type:varchar(64);not null;index:idx_activity_tenant"`
	Type       string    `gorm:"type:varchar(50);not null"`
	Subject    string    `gorm:"type:varchar(512)"`
	Score      int       `gorm:"type:int;default:0"`
	Decision   string    `gorm:"type:varchar(20)"`
	CreatedAt  time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_activity_created_at"`
}

func (ActivityRecord) TableName() string {
	return "activity_records"
}
