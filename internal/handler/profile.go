package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/anishgillella/serene-sub003/internal/errors"
	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

type ProfileHandler struct {
	service interfaces.ProfileService
}

func NewProfileHandler(service interfaces.ProfileService) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// UploadProfiles ingests the "files" parts of a multipart upload as partner
// profiles of the relationship in the path. When only some files land the
// response is 207 with the landed documents in data and the failures in
// error.details.
func (h *ProfileHandler) UploadProfiles(c *gin.Context) {
	ctx := c.Request.Context()
	relationshipID := c.Param("id")

	form, err := c.MultipartForm()
	if err != nil {
		logger.Warnf(ctx, "[ProfileHandler] Failed to parse multipart form: %v", err)
		c.Error(apperrors.NewBadRequestError("invalid multipart form").WithDetails(err.Error()))
		return
	}
	files := form.File["files"]
	partnerID := c.PostForm("partner_id")

	logger.Infof(ctx, "[ProfileHandler] Received %d profile files for relationship %s", len(files), relationshipID)
	docs, err := h.service.Ingest(ctx, relationshipID, partnerID, files)
	if err != nil && len(docs) > 0 {
		appErr := apperrors.FromError(err)
		logger.Warnf(ctx, "[ProfileHandler] Partial upload for relationship %s: %d landed, %v",
			relationshipID, len(docs), err)
		c.JSON(http.StatusMultiStatus, gin.H{"success": false, "data": docs, "error": appErr})
		return
	}
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": docs})
}
