package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"resume-agent-go/internal/storage"
)

// ActivityHandler serves the append-only activity log.
type ActivityHandler struct {
	store *storage.MySQL
}

// NewActivityHandler wires the relational store.
func NewActivityHandler(store *storage.MySQL) *ActivityHandler {
	return &ActivityHandler{store: store}
}

// List returns the tenant's most recent activity, newest first.
func (h *ActivityHandler) List(ctx context.Context, c *app.RequestContext) {
	if h.store == nil {
		c.JSON(consts.StatusServiceUnavailable, errorResponse{Error: "activity log is not configured"})
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

	entries, err := h.store.ListRecentActivity(ctx, tenantID, limit)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, errorResponse{Error: "failed to list activity"})
		return
	}

	c.JSON(consts.StatusOK, map[string]any{"activity": entries})
}
