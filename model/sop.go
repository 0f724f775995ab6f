package model

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an SOP
type Status string

// SOP status constants
const (
	StatusDraft       Status = "Draft"
	StatusUnderReview Status = "Under Review"
	StatusApproved    Status = "Approved"
)

// Meta holds the header fields of an SOP
type Meta struct {
	Title          string `json:"title"`
	SOPID          string `json:"sopId"`
	Department     string `json:"department"`
	Version        string `json:"version"`
	Author         string `json:"author"`
	Status         Status `json:"status"`
	EffectiveDate  string `json:"effectiveDate"`
	ReviewDate     string `json:"reviewDate"`
	Reviewer       string `json:"reviewer"`
	ReviewComments string `json:"reviewComments"`
}

// Safety groups the hazard information of an SOP
type Safety struct {
	Warnings []string `json:"warnings"`
	PPE      []string `json:"ppe"`
	Notes    string   `json:"notes"`
}

// Step is a single numbered instruction. Images are data URIs.
type Step struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	SafetyNote  string   `json:"safetyNote"`
	Images      []string `json:"images"`
}

// SOP is a Standard Operating Procedure record, keyed by Meta.SOPID
type SOP struct {
	Meta        *Meta     `json:"meta"`
	Description string    `json:"description"`
	Safety      Safety    `json:"safety"`
	Tools       []string  `json:"tools"`
	Materials   []string  `json:"materials"`
	Steps       []Step    `json:"steps"`
	SavedAt     time.Time `json:"savedAt,omitzero"`
}

// NewSOP returns a blank draft with a single empty step
func NewSOP(author string) *SOP {
	return &SOP{
		Meta: &Meta{
			Version: "1.0",
			Author:  author,
			Status:  StatusDraft,
		},
		Safety:    Safety{Warnings: []string{}, PPE: []string{}},
		Tools:     []string{},
		Materials: []string{},
		Steps:     []Step{{ID: uuid.New().String(), Images: []string{}}},
	}
}

// ID returns the record key, empty when meta is missing
func (s *SOP) ID() string {
	if s == nil || s.Meta == nil {
		return ""
	}
	return s.Meta.SOPID
}

// Valid reports whether the record can be surfaced by a read path
func (s *SOP) Valid() bool {
	return s != nil && s.Meta != nil
}

// Clone returns a deep copy
func (s *SOP) Clone() *SOP {
	if s == nil {
		return nil
	}
	out := *s
	if s.Meta != nil {
		m := *s.Meta
		out.Meta = &m
	}
	out.Safety.Warnings = slices.Clone(s.Safety.Warnings)
	out.Safety.PPE = slices.Clone(s.Safety.PPE)
	out.Tools = slices.Clone(s.Tools)
	out.Materials = slices.Clone(s.Materials)
	if s.Steps != nil {
		out.Steps = make([]Step, len(s.Steps))
		for i, st := range s.Steps {
			st.Images = slices.Clone(st.Images)
			out.Steps[i] = st
		}
	}
	return &out
}

// Compact strips the blank placeholders the editor keeps in list fields
// and removes duplicate PPE entries.
func (s *SOP) Compact() {
	s.Tools = dropBlank(s.Tools)
	s.Materials = dropBlank(s.Materials)
	s.Safety.Warnings = dropBlank(s.Safety.Warnings)

	seen := make(map[string]bool, len(s.Safety.PPE))
	ppe := make([]string, 0, len(s.Safety.PPE))
	for _, p := range dropBlank(s.Safety.PPE) {
		if seen[p] {
			continue
		}
		seen[p] = true
		ppe = append(ppe, p)
	}
	s.Safety.PPE = ppe
}

func dropBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// FormatSOPID builds a DEPT-YYYY-MM-DD-NNN reference
func FormatSOPID(dept string, date time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", strings.ToUpper(dept), date.Format("2006-01-02"), seq)
}

// FallbackSOPID is used when a record reaches storage without a reference
func FallbackSOPID(t time.Time) string {
	return fmt.Sprintf("sop-%d", t.UnixMilli())
}

// DateLayout is the form date format used by effective and review dates
const DateLayout = "2006-01-02"
