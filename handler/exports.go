package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/recorpproduction-prog/camcapprod/service"
)

type ExportHandler struct {
	log *service.ExportLog
}

func NewExportHandler(log *service.ExportLog) *ExportHandler {
	return &ExportHandler{log: log}
}

// List returns the export history, newest first
func (h *ExportHandler) List(c *gin.Context) {
	entries, err := h.log.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exports": entries})
}

// Clear drops the export history to free local storage
func (h *ExportHandler) Clear(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := h.log.Count(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.log.Clear(ctx); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Export history cleared", "cleared": n})
}
