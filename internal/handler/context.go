package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/anishgillella/serene-sub003/internal/errors"
	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

// ContextHandler serves context builds, reindexing and session lifecycle
type ContextHandler struct {
	service interfaces.ContextService
}

func NewContextHandler(service interfaces.ContextService) *ContextHandler {
	return &ContextHandler{service: service}
}

// BuildContext assembles prompt context for one mediation turn
func (h *ContextHandler) BuildContext(c *gin.Context) {
	ctx := c.Request.Context()

	var req types.ContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warnf(ctx, "[ContextHandler] Invalid request body: %v", err)
		c.Error(apperrors.NewBadRequestError("invalid request body").WithDetails(err.Error()))
		return
	}

	assembled, err := h.service.Build(ctx, &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": assembled})
}

// ReindexConflict rebuilds the index entries of one conflict
func (h *ContextHandler) ReindexConflict(c *gin.Context) {
	conflictID := c.Param("id")
	if conflictID == "" {
		c.Error(apperrors.NewBadRequestError("conflict id is required"))
		return
	}

	count, err := h.service.Reindex(c.Request.Context(), conflictID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"conflict_id": conflictID, "chunks": count},
	})
}

// EndSession drops everything cached for a mediation session
func (h *ContextHandler) EndSession(c *gin.Context) {
	if err := h.service.EndSession(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
