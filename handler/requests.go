package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/recorpproduction-prog/camcapprod/middleware"
	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/service"
)

type RequestHandler struct {
	requests *service.RequestService
}

func NewRequestHandler(requests *service.RequestService) *RequestHandler {
	return &RequestHandler{requests: requests}
}

func (h *RequestHandler) List(c *gin.Context) {
	reqs, err := h.requests.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

type newRequest struct {
	Title       string `json:"title"`
	Department  string `json:"department"`
	Submitter   string `json:"submitter"`
	Priority    int    `json:"priority"`
	Description string `json:"description"`
}

// Create files a new SOP request. The submitter defaults to the signed-in user.
func (h *RequestHandler) Create(c *gin.Context) {
	var body newRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if strings.TrimSpace(body.Submitter) == "" {
		body.Submitter = middleware.GetDisplayName(c)
	}

	req, err := h.requests.Create(c.Request.Context(), model.Request{
		Title:       body.Title,
		Department:  body.Department,
		Submitter:   body.Submitter,
		Priority:    body.Priority,
		Description: body.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// Start opens a Draft SOP from the request
func (h *RequestHandler) Start(c *gin.Context) {
	req, result, err := h.requests.Start(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"request": req,
		"record":  result.Record,
		"backend": result.Backend,
	}
	if result.RemoteErr != nil {
		resp["warnings"] = []string{"saved locally only, remote backend failed: " + result.RemoteErr.Error()}
	}
	c.JSON(http.StatusCreated, resp)
}
