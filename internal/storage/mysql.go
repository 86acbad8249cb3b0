package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"resume-agent-go/internal/config"
	applog "resume-agent-go/internal/logger"
	"resume-agent-go/internal/pipeline"
	"resume-agent-go/internal/storage/models"
	"resume-agent-go/internal/tracing"
)

var mysqlTracer = otel.Tracer("resume-agent-go/storage/mysql")

// GormTracingPlugin registers OpenTelemetry spans around every GORM
// operation via callbacks.
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer: mysqlTracer,
		dbName: dbName,
	}
}

func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize hooks before/after callbacks for every CRUD verb.
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		newCtx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, tableName),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		)
		db.Statement.Context = context.WithValue(newCtx, gormSpanKey{}, span)
	}
}

type gormSpanKey struct{}

func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(gormSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		if sql := db.Statement.SQL.String(); sql != "" {
			span.SetAttributes(attribute.String("db.statement", tracing.SafeSQL(sql)))
		}

		switch {
		case db.Error == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(db.Error, gorm.ErrRecordNotFound):
			// Not found is a normal outcome, not a database failure.
			span.SetAttributes(attribute.String("error.type", "record_not_found"))
			span.SetStatus(codes.Ok, "record not found")
		default:
			tracing.RecordError(span, db.Error, tracing.ErrorTypeDB)
		}
	}
}

// MySQL wraps the GORM connection and the relational operations of the
// document and activity tables.
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

var _ pipeline.ActivityLogger = (*MySQL)(nil)

// NewMySQL connects, installs tracing and migrates the schema.
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql config cannot be nil")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel gormlogger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = gormlogger.Silent
	case 2:
		logLevel = gormlogger.Error
	case 3:
		logLevel = gormlogger.Warn
	default:
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("failed to register tracing plugin: %w", err)
	}

	m := &MySQL{db: db, cfg: cfg}
	if err := m.autoMigrateSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	applog.Info().Str("database", cfg.Database).Msg("connected to MySQL and migrated schema")
	return m, nil
}

func (m *MySQL) autoMigrateSchema() error {
	silent := m.db.Session(&gorm.Session{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	return silent.AutoMigrate(
		&models.Document{},
		&models.ActivityRecord{},
	)
}

// DB exposes the raw GORM handle.
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateDocument inserts the metadata row of a freshly uploaded file.
func (m *MySQL) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.DocumentID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("failed to generate document id: %w", err)
		}
		doc.DocumentID = id.String()
	}
	if err := m.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("failed to insert document %s: %w", doc.DocumentID, err)
	}
	return nil
}

// GetDocument loads one document row scoped to its tenant.
func (m *MySQL) GetDocument(ctx context.Context, tenantID, documentID string) (*models.Document, error) {
	var doc models.Document
	err := m.db.WithContext(ctx).
		Where("tenant_id = ? AND document_id = ?", tenantID, documentID).
		First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes one document row scoped to its tenant.
func (m *MySQL) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	result := m.db.WithContext(ctx).
		Where("tenant_id = ? AND document_id = ?", tenantID, documentID).
		Delete(&models.Document{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateDocumentStatus moves a document through its processing lifecycle.
func (m *MySQL) UpdateDocumentStatus(ctx context.Context, documentID, status string) error {
	result := m.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("document_id = ?", documentID).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update document %s status: %w", documentID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateDocumentParsedPath records where the extracted text was stored.
func (m *MySQL) UpdateDocumentParsedPath(ctx context.Context, documentID, parsedPath string) error {
	return m.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("document_id = ?", documentID).
		Update("parsed_text_path_oss", parsedPath).Error
}

// ListDocuments returns a tenant's documents, newest first.
func (m *MySQL) ListDocuments(ctx context.Context, tenantID string, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	var docs []models.Document
	err := m.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&docs).Error
	return docs, err
}

// RecordActivity appends one audit row.
func (m *MySQL) RecordActivity(ctx context.Context, entry pipeline.ActivityEntry) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("failed to generate activity id: %w", err)
	}
	record := models.ActivityRecord{
		ActivityID: id.String(),
		TenantID:   entry.TenantID,
		Type:       entry.Type,
		Subject:    entry.Subject,
		Score:      entry.Score,
		Decision:   entry.Decision,
	}
	if err := m.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert activity record: %w", err)
	}
	return nil
}

// ListRecentActivity returns a tenant's latest audit entries, newest first.
func (m *MySQL) ListRecentActivity(ctx context.Context, tenantID string, limit int) ([]models.ActivityRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []models.ActivityRecord
	err := m.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
