package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/recorpproduction-prog/camcapprod/model"
)

// SharedAPIConfig points at the shared SOP backend staff use without setup.
type SharedAPIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SharedAPI talks to the shared SOP HTTP backend.
type SharedAPI struct {
	mu         sync.RWMutex
	config     SharedAPIConfig
	httpClient *http.Client
}

type sharedAPIError struct {
	Error string `json:"error"`
}

type usersEnvelope struct {
	Users []model.User `json:"users"`
}

func NewSharedAPI(cfg SharedAPIConfig) *SharedAPI {
	s := &SharedAPI{httpClient: &http.Client{}}
	s.Configure(cfg)
	return s
}

// Configure replaces the configuration, e.g. from the settings screen.
func (s *SharedAPI) Configure(cfg SharedAPIConfig) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
}

func (s *SharedAPI) Config() SharedAPIConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *SharedAPI) Kind() Kind { return KindSharedAPI }

func (s *SharedAPI) IsAvailable() bool {
	return s.Config().BaseURL != ""
}

func (s *SharedAPI) LoadAll(ctx context.Context) (Records, error) {
	body, status, err := s.do(ctx, http.MethodGet, "/sops", nil)
	if status == http.StatusNotFound {
		return Records{}, nil
	}
	if err != nil {
		return nil, newError(KindSharedAPI, "load", status, err)
	}

	var envelope map[string]json.RawMessage
	if len(bytes.TrimSpace(body)) == 0 {
		return Records{}, nil
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		if json.Valid(body) {
			// valid JSON that is not an object carries no records
			return Records{}, nil
		}
		return nil, newError(KindSharedAPI, "load", status, fmt.Errorf("failed to parse response: %w", err))
	}
	if inner, ok := envelope["sops"]; ok {
		var sops map[string]json.RawMessage
		if err := json.Unmarshal(inner, &sops); err != nil {
			// sops present but not a mapping
			return Records{}, nil
		}
		envelope = sops
	}
	return decodeRecords(envelope), nil
}

func (s *SharedAPI) Save(ctx context.Context, sop *model.SOP) error {
	stamp(sop)
	data, err := json.Marshal(sop)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, status, err := s.do(ctx, http.MethodPost, "/sops", data); err != nil {
		return newError(KindSharedAPI, "save", status, err)
	}
	return nil
}

func (s *SharedAPI) Delete(ctx context.Context, sopID string) error {
	_, status, err := s.do(ctx, http.MethodDelete, "/sops/"+url.PathEscape(sopID), nil)
	if status == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return newError(KindSharedAPI, "delete", status, err)
	}
	return nil
}

// ListUsers returns the registered users. A missing users list is empty.
func (s *SharedAPI) ListUsers(ctx context.Context) ([]model.User, error) {
	body, status, err := s.do(ctx, http.MethodGet, "/users", nil)
	if status == http.StatusNotFound {
		return []model.User{}, nil
	}
	if err != nil {
		return nil, newError(KindSharedAPI, "list users", status, err)
	}
	var env usersEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Users == nil {
		return []model.User{}, nil
	}
	return env.Users, nil
}

// SaveUsers replaces the registered user list.
func (s *SharedAPI) SaveUsers(ctx context.Context, users []model.User) error {
	if users == nil {
		users = []model.User{}
	}
	data, err := json.Marshal(usersEnvelope{Users: users})
	if err != nil {
		return fmt.Errorf("failed to marshal users: %w", err)
	}
	if _, status, err := s.do(ctx, http.MethodPost, "/users", data); err != nil {
		return newError(KindSharedAPI, "save users", status, err)
	}
	return nil
}

// do sends one request under the configured timeout. A non-OK response is
// returned as an error carrying the body's error message when present.
func (s *SharedAPI) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	cfg := s.Config()
	if cfg.BaseURL == "" {
		return nil, 0, ErrConfiguration
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.BaseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, 0, fmt.Errorf("request timed out: %w", context.DeadlineExceeded)
		}
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr sharedAPIError
		msg := http.StatusText(resp.StatusCode)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return body, resp.StatusCode, errors.New(msg)
	}
	return body, resp.StatusCode, nil
}
