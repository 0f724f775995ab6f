package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewSOP(t *testing.T) {
	sop := NewSOP("alice")

	if sop.Meta == nil {
		t.Fatal("Expected meta to be set")
	}
	if sop.Meta.Status != StatusDraft {
		t.Errorf("Expected status '%s', got '%s'", StatusDraft, sop.Meta.Status)
	}
	if sop.Meta.Author != "alice" {
		t.Errorf("Expected author 'alice', got '%s'", sop.Meta.Author)
	}
	if len(sop.Steps) != 1 || sop.Steps[0].ID == "" {
		t.Errorf("Expected one step with an id, got %+v", sop.Steps)
	}
}

func TestSOPStatusConstants(t *testing.T) {
	statuses := []Status{StatusDraft, StatusUnderReview, StatusApproved}
	expected := []string{"Draft", "Under Review", "Approved"}

	for i, status := range statuses {
		if string(status) != expected[i] {
			t.Errorf("Expected '%s', got '%s'", expected[i], status)
		}
	}
}

func TestSOPJSONFieldNames(t *testing.T) {
	raw := `{"meta":{"title":"Line clean","sopId":"PROD-2024-01-05-001","status":"Under Review"},
		"safety":{"warnings":["hot"],"ppe":["gloves"],"notes":""},
		"steps":[{"id":"s1","title":"Stop line","safetyNote":"lockout","images":["data:image/png;base64,AA=="]}],
		"savedAt":"2024-01-05T10:00:00Z"}`

	var sop SOP
	if err := json.Unmarshal([]byte(raw), &sop); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if sop.ID() != "PROD-2024-01-05-001" {
		t.Errorf("Expected sopId, got '%s'", sop.ID())
	}
	if sop.Meta.Status != StatusUnderReview {
		t.Errorf("Expected status Under Review, got '%s'", sop.Meta.Status)
	}
	if sop.Steps[0].SafetyNote != "lockout" {
		t.Errorf("Expected safetyNote 'lockout', got '%s'", sop.Steps[0].SafetyNote)
	}
	if !sop.SavedAt.Equal(time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected savedAt %v", sop.SavedAt)
	}
}

func TestSOPWithoutMetaIsInvalid(t *testing.T) {
	var sop SOP
	if err := json.Unmarshal([]byte(`{"description":"orphan"}`), &sop); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if sop.Valid() {
		t.Error("Expected record without meta to be invalid")
	}
	if sop.ID() != "" {
		t.Errorf("Expected empty id, got '%s'", sop.ID())
	}
}

func TestCompact(t *testing.T) {
	sop := &SOP{
		Meta:      &Meta{},
		Tools:     []string{"wrench", "", "  ", "torch"},
		Materials: []string{""},
		Safety: Safety{
			Warnings: []string{"", "sharp"},
			PPE:      []string{"gloves", "", "goggles", "gloves"},
		},
	}

	sop.Compact()

	if len(sop.Tools) != 2 || sop.Tools[0] != "wrench" || sop.Tools[1] != "torch" {
		t.Errorf("Unexpected tools %v", sop.Tools)
	}
	if len(sop.Materials) != 0 {
		t.Errorf("Expected no materials, got %v", sop.Materials)
	}
	if len(sop.Safety.Warnings) != 1 {
		t.Errorf("Expected one warning, got %v", sop.Safety.Warnings)
	}
	if len(sop.Safety.PPE) != 2 || sop.Safety.PPE[0] != "gloves" || sop.Safety.PPE[1] != "goggles" {
		t.Errorf("Unexpected ppe %v", sop.Safety.PPE)
	}
}

func TestClone(t *testing.T) {
	orig := NewSOP("bob")
	orig.Tools = append(orig.Tools, "hammer")
	orig.Steps[0].Images = append(orig.Steps[0].Images, "data:image/png;base64,AA==")

	cp := orig.Clone()
	cp.Meta.Title = "changed"
	cp.Tools[0] = "saw"
	cp.Steps[0].Images[0] = "x"

	if orig.Meta.Title == "changed" {
		t.Error("Clone shares meta with original")
	}
	if orig.Tools[0] != "hammer" {
		t.Error("Clone shares tools with original")
	}
	if orig.Steps[0].Images[0] == "x" {
		t.Error("Clone shares step images with original")
	}
}

func TestFormatSOPID(t *testing.T) {
	date := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	if got := FormatSOPID("prod", date, 3); got != "PROD-2024-01-05-003" {
		t.Errorf("Expected PROD-2024-01-05-003, got %s", got)
	}
	if got := FallbackSOPID(time.UnixMilli(1700000000000)); got != "sop-1700000000000" {
		t.Errorf("Unexpected fallback id %s", got)
	}
}
