package handler

import (
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"resume-agent-go/internal/llm"
	"resume-agent-go/internal/pipeline"
)

// Header and context-key names shared by the middleware and the handlers.
const (
	TenantHeader     = "X-Tenant-ID"
	TenantContextKey = "tenant_id"

	// Per-request model overrides. Either may be absent; configured
	// defaults fill the gaps.
	ModelKeyHeader  = "X-LLM-Key"
	ModelNameHeader = "X-LLM-Model"
)

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// tenantFrom returns the tenant the auth middleware stored on the request.
func tenantFrom(c *app.RequestContext) string {
	if v, ok := c.Get(TenantContextKey); ok {
		if tenant, ok := v.(string); ok {
			return tenant
		}
	}
	return ""
}

// runOptionsFrom collects the per-request pipeline options: the tenant and
// any model override headers.
func runOptionsFrom(c *app.RequestContext) []pipeline.RunOption {
	opts := []pipeline.RunOption{pipeline.WithTenant(tenantFrom(c))}

	override := llm.ModelConfig{
		APIKey: string(c.GetHeader(ModelKeyHeader)),
		Model:  string(c.GetHeader(ModelNameHeader)),
	}
	if override.APIKey != "" || override.Model != "" {
		opts = append(opts, pipeline.WithModelOverride(override))
	}
	return opts
}

// statusForRunError maps the two configuration errors that cross the
// pipeline boundary onto HTTP statuses. Everything else the stages absorb
// into fallback state, so any other error here is an internal one.
func statusForRunError(err error) int {
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		return consts.StatusUnauthorized
	case errors.Is(err, pipeline.ErrUnknownTask):
		return consts.StatusBadRequest
	default:
		return consts.StatusInternalServerError
	}
}
