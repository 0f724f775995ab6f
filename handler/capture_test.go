package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/recorpproduction-prog/camcapprod/capture"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	subs []capture.Submission
	err  error
}

func (s *recordingSubmitter) Submit(_ context.Context, sub capture.Submission) (*capture.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	if s.err != nil {
		return nil, s.err
	}
	return &capture.Receipt{Success: true, RecordID: "T-1"}, nil
}

func (s *recordingSubmitter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func framePNG(t *testing.T, textured bool, seed uint64) []byte {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(128)
			if textured {
				v = uint8(rng.IntN(256))
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode frame: %v", err)
	}
	return buf.Bytes()
}

func dataURI(data []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func newCaptureRouter(sub capture.Submitter) *gin.Engine {
	h := NewCaptureHandler(capture.NewCapturer(capture.NewGate(capture.DefaultGateConfig()), sub), 1280)
	router := gin.New()
	router.POST("/capture/frames", h.Frame)
	return router
}

func TestCaptureFrameJSON(t *testing.T) {
	sub := &recordingSubmitter{}
	router := newCaptureRouter(sub)
	frame := dataURI(framePNG(t, true, 1))

	w := doJSON(t, router, "POST", "/capture/frames", gin.H{"image": frame})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Decision capture.Decision `json:"decision"`
		Receipt  *capture.Receipt `json:"receipt"`
	}
	decode(t, w, &resp)
	if resp.Decision != capture.DecisionCapture || resp.Receipt == nil || resp.Receipt.RecordID != "T-1" {
		t.Errorf("Unexpected response %s", w.Body.String())
	}

	w = doJSON(t, router, "POST", "/capture/frames", gin.H{"image": frame})
	decode(t, w, &resp)
	if resp.Decision != capture.DecisionDuplicate {
		t.Errorf("Expected duplicate, got %s", resp.Decision)
	}

	w = doJSON(t, router, "POST", "/capture/frames", gin.H{"image": dataURI(framePNG(t, false, 0))})
	decode(t, w, &resp)
	if resp.Decision != capture.DecisionBlurry {
		t.Errorf("Expected blurry, got %s", resp.Decision)
	}

	if sub.count() != 1 {
		t.Errorf("Expected 1 submission, got %d", sub.count())
	}
}

func TestCaptureFrameMultipart(t *testing.T) {
	sub := &recordingSubmitter{}
	router := newCaptureRouter(sub)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("frame", "frame.png")
	part.Write(framePNG(t, true, 2))
	mw.Close()

	req := httptest.NewRequest("POST", "/capture/frames", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if sub.count() != 1 {
		t.Errorf("Expected 1 submission, got %d", sub.count())
	}
}

func TestCaptureFrameErrors(t *testing.T) {
	sub := &recordingSubmitter{err: errors.New("ingestion down")}
	router := newCaptureRouter(sub)

	tests := []struct {
		name           string
		body           any
		expectedStatus int
	}{
		{"missing image", gin.H{}, http.StatusBadRequest},
		{"not a data uri", gin.H{"image": "hello"}, http.StatusBadRequest},
		{"undecodable image", gin.H{"image": "data:image/png;base64,aGVsbG8="}, http.StatusBadRequest},
		{"submission failure", gin.H{"image": dataURI(framePNG(t, true, 3))}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/capture/frames", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}
