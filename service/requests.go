package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/pkg/logger"
	"github.com/recorpproduction-prog/camcapprod/storage/kv"
)

// RequestsKey is the kv key holding SOP requests.
const RequestsKey = "sopRequests"

var (
	ErrRequestNotFound = errors.New("request not found")
	ErrRequestStarted  = errors.New("request already in progress")
	ErrInvalidRequest  = errors.New("invalid request")
)

// RequestService keeps requests for new SOPs in the local state store.
type RequestService struct {
	store   kv.Store
	records *SyncService
	mu      sync.Mutex
	now     func() time.Time
}

func NewRequestService(store kv.Store, records *SyncService) *RequestService {
	return &RequestService{store: store, records: records, now: time.Now}
}

// List returns requests, most urgent first, then oldest first.
func (s *RequestService) List(ctx context.Context) ([]model.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqs, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reqs, func(i, j int) bool {
		if reqs[i].Priority != reqs[j].Priority {
			return reqs[i].Priority > reqs[j].Priority
		}
		return reqs[i].SubmittedAt.Before(reqs[j].SubmittedAt)
	})
	return reqs, nil
}

// Create validates and stores a new Pending request.
func (s *RequestService) Create(ctx context.Context, req model.Request) (*model.Request, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Department = strings.ToUpper(strings.TrimSpace(req.Department))
	req.Submitter = strings.TrimSpace(req.Submitter)
	switch {
	case req.Title == "":
		return nil, fmt.Errorf("%w: title required", ErrInvalidRequest)
	case req.Department == "":
		return nil, fmt.Errorf("%w: department required", ErrInvalidRequest)
	case req.Submitter == "":
		return nil, fmt.Errorf("%w: submitter required", ErrInvalidRequest)
	}
	if req.Priority == 0 {
		req.Priority = 3
	}
	if req.Priority < 1 || req.Priority > 5 {
		return nil, fmt.Errorf("%w: priority must be between 1 and 5", ErrInvalidRequest)
	}
	req.ID = uuid.New().String()
	req.Status = model.RequestPending
	req.SubmittedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	reqs, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	reqs = append(reqs, req)
	if err := s.write(ctx, reqs); err != nil {
		return nil, err
	}
	logger.Info(ctx, "sop request created", "request_id", req.ID, "department", req.Department)
	return &req, nil
}

// Start creates a Draft SOP prefilled from the request and marks the request
// In Progress.
func (s *RequestService) Start(ctx context.Context, id string) (*model.Request, *SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqs, err := s.read(ctx)
	if err != nil {
		return nil, nil, err
	}
	idx := -1
	for i := range reqs {
		if reqs[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	req := reqs[idx]
	if req.Status == model.RequestInProgress {
		return nil, nil, fmt.Errorf("%w: %s", ErrRequestStarted, id)
	}

	var result *SaveResult
	sopID, err := s.records.Allocate(ctx, req.Department, s.now(), func(ctx context.Context, id string) error {
		sop := model.NewSOP(req.Submitter)
		sop.Meta.SOPID = id
		sop.Meta.Title = req.Title
		sop.Meta.Department = req.Department
		sop.Description = req.Description

		var err error
		result, err = s.records.Save(ctx, sop)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	reqs[idx].Status = model.RequestInProgress
	if err := s.write(ctx, reqs); err != nil {
		return nil, nil, err
	}
	logger.Info(logger.WithSOP(ctx, sopID), "sop started from request", "request_id", id)
	return &reqs[idx], result, nil
}

func (s *RequestService) read(ctx context.Context) ([]model.Request, error) {
	data, ok, err := s.store.Get(ctx, RequestsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read requests: %w", err)
	}
	if !ok || len(data) == 0 {
		return []model.Request{}, nil
	}
	var reqs []model.Request
	if err := json.Unmarshal(data, &reqs); err != nil {
		return []model.Request{}, nil
	}
	return reqs, nil
}

func (s *RequestService) write(ctx context.Context, reqs []model.Request) error {
	data, err := json.Marshal(reqs)
	if err != nil {
		return fmt.Errorf("failed to marshal requests: %w", err)
	}
	if err := s.store.Put(ctx, RequestsKey, data); err != nil {
		return fmt.Errorf("failed to write requests: %w", err)
	}
	return nil
}
