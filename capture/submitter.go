package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Submission is an accepted frame on its way to OCR.
type Submission struct {
	Image     string    `json:"image"`
	Timestamp time.Time `json:"timestamp"`
	FrameHash string    `json:"frameHash"`
}

// Receipt is the ingestion service's answer.
type Receipt struct {
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	RecordID   string            `json:"recordId,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	Confidence map[string]string `json:"confidence,omitempty"`
}

// Submitter hands a frame to the OCR and ticket ingestion pipeline.
type Submitter interface {
	Submit(ctx context.Context, s Submission) (*Receipt, error)
}

// HTTPSubmitter posts submissions as JSON to an ingestion endpoint.
type HTTPSubmitter struct {
	url        string
	httpClient *http.Client
}

func NewHTTPSubmitter(url string, timeout time.Duration) *HTTPSubmitter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPSubmitter{url: url, httpClient: &http.Client{Timeout: timeout}}
}

func (s *HTTPSubmitter) Submit(ctx context.Context, sub Submission) (*Receipt, error) {
	if s.url == "" {
		return nil, errors.New("ingestion url not configured")
	}
	jsonData, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var receipt Receipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w, status: %d", err, resp.StatusCode)
	}
	if resp.StatusCode >= 300 || !receipt.Success {
		msg := receipt.Error
		if msg == "" {
			msg = "submission failed"
		}
		return &receipt, errors.New(msg)
	}
	receipt.Confidence = ParseConfidence(receipt.Notes)
	return &receipt, nil
}

// FormatHash renders a frame hash the way the capture page reports it.
func FormatHash(h int32) string {
	return strconv.FormatInt(int64(h), 10)
}

var confidencePattern = regexp.MustCompile(`Confidence:\s*([^|]+)`)

// ParseConfidence extracts "Confidence: field:level, field:level" from OCR
// notes. Sections after a "|" are ignored.
func ParseConfidence(notes string) map[string]string {
	out := make(map[string]string)
	m := confidencePattern.FindStringSubmatch(notes)
	if m == nil {
		return out
	}
	for _, pair := range strings.Split(m[1], ",") {
		parts := strings.Split(pair, ":")
		if len(parts) < 2 {
			continue
		}
		field := strings.TrimSpace(parts[0])
		level := strings.TrimSpace(parts[1])
		if field != "" && level != "" {
			out[field] = level
		}
	}
	return out
}
