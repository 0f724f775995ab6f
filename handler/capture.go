package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/recorpproduction-prog/camcapprod/capture"
)

const maxFrameBytes = 10 << 20

// CaptureHandler accepts camera frames from the operator capture page
type CaptureHandler struct {
	capturer *capture.Capturer
	maxWidth int
}

func NewCaptureHandler(capturer *capture.Capturer, maxWidth int) *CaptureHandler {
	return &CaptureHandler{capturer: capturer, maxWidth: maxWidth}
}

type frameRequest struct {
	Image string `json:"image" binding:"required"`
}

type frameResponse struct {
	capture.Result
	Error string `json:"error,omitempty"`
}

// Frame runs one frame through the capture gate. The frame is either a
// multipart "frame" file or a JSON {"image": "data:..."} body.
func (h *CaptureHandler) Frame(c *gin.Context) {
	data, err := h.readFrame(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	frame, err := capture.DecodeFrame(data, h.maxWidth)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.capturer.Process(c.Request.Context(), frame)
	resp := frameResponse{Result: result}
	if result.Err != nil {
		resp.Error = result.Err.Error()
		status := http.StatusBadGateway
		if result.Decision == "" {
			status = http.StatusBadRequest
		}
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CaptureHandler) readFrame(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("frame")
		if err != nil {
			return nil, errors.New("no frame provided")
		}
		if fh.Size > maxFrameBytes {
			return nil, errors.New("frame too large")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.New("failed to read frame")
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxFrameBytes))
	}

	var req frameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, errors.New("no frame provided")
	}
	data, _, err := capture.ParseDataURI(req.Image)
	if err != nil {
		return nil, err
	}
	return data, nil
}
