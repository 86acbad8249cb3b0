package handler

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"resume-agent-go/internal/processor"
)

// SearchHandler answers tenant-scoped similarity queries over the indexed
// document chunks.
type SearchHandler struct {
	search *processor.SearchService
}

// NewSearchHandler wires the search service. A nil service disables the
// endpoint with 503 instead of panicking.
func NewSearchHandler(search *processor.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Search embeds the query and returns the nearest chunks for the tenant.
func (h *SearchHandler) Search(ctx context.Context, c *app.RequestContext) {
	if h.search == nil {
		c.JSON(consts.StatusServiceUnavailable, errorResponse{Error: "search is not configured"})
		return
	}

	tenantID := tenantFrom(c)
	if tenantID == "" {
		c.JSON(consts.StatusUnauthorized, errorResponse{Error: "missing tenant identity"})
		return
	}

	var req searchRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	hits, err := h.search.Search(ctx, tenantID, req.Query, req.Limit)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: "search failed"})
		return
	}

	c.JSON(consts.StatusOK, map[string]any{"hits": hits})
}
