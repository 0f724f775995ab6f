package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/recorpproduction-prog/camcapprod/middleware"
	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/service"
)

// SOPHandler serves the SOP register, editor and review actions
type SOPHandler struct {
	records  *service.SyncService
	workflow *service.Workflow
	now      func() time.Time
}

func NewSOPHandler(records *service.SyncService, workflow *service.Workflow) *SOPHandler {
	return &SOPHandler{records: records, workflow: workflow, now: time.Now}
}

// List returns the register, optionally filtered by ?filter=<expression>
func (h *SOPHandler) List(c *gin.Context) {
	rows, err := h.records.Register(c.Request.Context(), c.Query("filter"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sops": rows})
}

// Get returns one record
func (h *SOPHandler) Get(c *gin.Context) {
	sop, err := h.records.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sop)
}

type createRequest struct {
	Department string `json:"department" binding:"required"`
	Title      string `json:"title"`
}

// Create starts a blank Draft with the next id for the department
func (h *SOPHandler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Department is required"})
		return
	}
	dept := strings.ToUpper(strings.TrimSpace(req.Department))
	if dept == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Department is required"})
		return
	}

	author := middleware.GetDisplayName(c)
	var out *service.Outcome
	_, err := h.records.Allocate(c.Request.Context(), dept, h.now(), func(ctx context.Context, id string) error {
		sop := model.NewSOP(author)
		sop.Meta.SOPID = id
		sop.Meta.Department = dept
		sop.Meta.Title = strings.TrimSpace(req.Title)

		var err error
		out, err = h.workflow.Autosave(ctx, sop)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// bindRecord reads the record body and ties it to the path id
func bindRecord(c *gin.Context) (*model.SOP, bool) {
	var sop model.SOP
	if err := c.ShouldBindJSON(&sop); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid record: " + err.Error()})
		return nil, false
	}
	id := c.Param("id")
	if sop.Meta == nil {
		sop.Meta = &model.Meta{}
	}
	if sop.Meta.SOPID != "" && sop.Meta.SOPID != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Record id %s does not match %s", sop.Meta.SOPID, id)})
		return nil, false
	}
	sop.Meta.SOPID = id
	return &sop, true
}

// Autosave persists edits without changing status
func (h *SOPHandler) Autosave(c *gin.Context) {
	sop, ok := bindRecord(c)
	if !ok {
		return
	}
	out, err := h.workflow.Autosave(c.Request.Context(), sop)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Submit sends the record for review
func (h *SOPHandler) Submit(c *gin.Context) {
	sop, ok := bindRecord(c)
	if !ok {
		return
	}
	out, err := h.workflow.Submit(c.Request.Context(), sop)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// bindReview reads a review, defaulting the reviewer to the signed-in user
func bindReview(c *gin.Context, review *service.Review) bool {
	if err := c.ShouldBindJSON(review); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid review"})
		return false
	}
	if strings.TrimSpace(review.Reviewer) == "" {
		review.Reviewer = middleware.GetDisplayName(c)
	}
	return true
}

// Approve approves a record under review
func (h *SOPHandler) Approve(c *gin.Context) {
	var review service.Review
	if !bindReview(c, &review) {
		return
	}
	out, err := h.workflow.Approve(c.Request.Context(), c.Param("id"), review)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type rejectRequest struct {
	service.Review
	ConfirmEmpty bool `json:"confirmEmpty"`
}

// Reject returns a record under review to Draft. Empty comments need
// confirmEmpty.
func (h *SOPHandler) Reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid review"})
		return
	}
	if strings.TrimSpace(req.Reviewer) == "" {
		req.Reviewer = middleware.GetDisplayName(c)
	}
	out, err := h.workflow.Reject(c.Request.Context(), c.Param("id"), req.Review, req.ConfirmEmpty)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type exportRequest struct {
	PreserveStatus bool   `json:"preserveStatus"`
	Recipient      string `json:"recipient"`
}

// Export renders the PDF. ?format=pdf streams the document, otherwise the
// outcome is returned as JSON.
func (h *SOPHandler) Export(c *gin.Context) {
	var req exportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid export options"})
			return
		}
	}
	out, err := h.workflow.Export(c.Request.Context(), c.Param("id"), service.ExportOptions{
		PreserveStatus: req.PreserveStatus,
		Recipient:      req.Recipient,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("format") == "pdf" {
		if len(out.Warnings) > 0 {
			c.Header("X-Export-Warnings", strings.Join(out.Warnings, "; "))
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, out.Record.ID()))
		c.Data(http.StatusOK, "application/pdf", out.PDF)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Delete removes a record everywhere. Unknown ids succeed.
func (h *SOPHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	out, err := h.workflow.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"message": "SOP deleted", "id": id}
	if len(out.Warnings) > 0 {
		resp["warnings"] = out.Warnings
	}
	c.JSON(http.StatusOK, resp)
}

// Review returns the records waiting for review, oldest first
func (h *SOPHandler) Review(c *gin.Context) {
	rows, err := h.records.ReviewQueue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sops": rows})
}

// Sequence previews the next id for ?department= on ?date= (today by default)
func (h *SOPHandler) Sequence(c *gin.Context) {
	dept := strings.ToUpper(strings.TrimSpace(c.Query("department")))
	if dept == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Department is required"})
		return
	}
	date := h.now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(model.DateLayout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	ctx := c.Request.Context()
	seq, err := h.records.NextSequence(ctx, dept, date.Year(), date.Month())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"department": dept,
		"sequence":   seq,
		"sopId":      model.FormatSOPID(dept, date, seq),
	})
}
