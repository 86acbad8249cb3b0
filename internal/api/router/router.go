package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"resume-agent-go/internal/api/handler"
)

// maxTenantIDLength matches the tenant_id column width.
const maxTenantIDLength = 64

// RegisterRoutes mounts the API surface. Everything under /api/v1 requires
// a tenant identity; /health does not.
func RegisterRoutes(
	h *server.Hertz,
	analysis *handler.AnalysisHandler,
	documents *handler.DocumentHandler,
	search *handler.SearchHandler,
	activity *handler.ActivityHandler,
) {
	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]any{"status": "ok"})
	})

	api := h.Group("/api/v1")
	api.Use(TenantAuth())

	api.POST("/analyze/quality", analysis.AnalyzeQuality)
	api.POST("/analyze/gap", analysis.AnalyzeGap)
	api.POST("/analyze/screen", analysis.AnalyzeScreen)
	api.POST("/generate/resume", analysis.GenerateResume)
	api.POST("/linkedin/resume", analysis.LinkedInResume)

	api.POST("/documents", documents.Upload)
	api.GET("/documents", documents.List)
	api.GET("/documents/:document_id", documents.Get)
	api.GET("/documents/:document_id/text", documents.Text)
	api.GET("/documents/:document_id/download", documents.Download)
	api.DELETE("/documents/:document_id", documents.Delete)
	api.POST("/search", search.Search)
	api.GET("/activity", activity.List)
}

// TenantAuth extracts the tenant identity from the X-Tenant-ID header and
// stores it on the request context under handler.TenantContextKey.
func TenantAuth() app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+handler.TenantHeader, ""),
		keyauth.WithContextKey(handler.TenantContextKey),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, tenantID string) (bool, error) {
			return tenantID != "" && len(tenantID) <= maxTenantIDLength, nil
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, map[string]any{
				"error": "missing or invalid " + handler.TenantHeader + " header",
			})
		}),
	)
}
