package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/recorpproduction-prog/camcapprod/model"
)

func newTestRequests(t *testing.T) (*RequestService, *testEnv) {
	t.Helper()
	env := newTestEnv(t, nil)
	svc := NewRequestService(env.store, env.sync)
	svc.now = func() time.Time { return time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC) }
	return svc, env
}

func TestRequestCreate(t *testing.T) {
	svc, _ := newTestRequests(t)

	req, err := svc.Create(context.Background(), model.Request{
		Title:      "Pallet wrap",
		Department: "prod",
		Submitter:  "bob",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if req.ID == "" {
		t.Error("Expected id")
	}
	if req.Status != model.RequestPending {
		t.Errorf("Expected Pending, got %s", req.Status)
	}
	if req.Department != "PROD" || req.Priority != 3 {
		t.Errorf("Unexpected request %+v", req)
	}
}

func TestRequestCreateValidation(t *testing.T) {
	svc, _ := newTestRequests(t)

	tests := []struct {
		name string
		req  model.Request
	}{
		{"no title", model.Request{Department: "PROD", Submitter: "bob"}},
		{"no department", model.Request{Title: "x", Submitter: "bob"}},
		{"no submitter", model.Request{Title: "x", Department: "PROD"}},
		{"priority too high", model.Request{Title: "x", Department: "PROD", Submitter: "bob", Priority: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tt.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestRequestListOrder(t *testing.T) {
	svc, _ := newTestRequests(t)
	ctx := context.Background()

	svc.Create(ctx, model.Request{Title: "low", Department: "PROD", Submitter: "bob", Priority: 1})
	svc.Create(ctx, model.Request{Title: "urgent", Department: "PROD", Submitter: "bob", Priority: 5})
	svc.Create(ctx, model.Request{Title: "normal", Department: "PROD", Submitter: "bob"})

	reqs, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(reqs) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(reqs))
	}
	if reqs[0].Title != "urgent" || reqs[2].Title != "low" {
		t.Errorf("Unexpected order %s, %s, %s", reqs[0].Title, reqs[1].Title, reqs[2].Title)
	}
}

func TestRequestStart(t *testing.T) {
	svc, env := newTestRequests(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, model.Request{
		Title:       "Pallet wrap",
		Department:  "PROD",
		Submitter:   "bob",
		Description: "Wrap pallets before dispatch",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	started, res, err := svc.Start(ctx, req.ID)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if started.Status != model.RequestInProgress {
		t.Errorf("Expected In Progress, got %s", started.Status)
	}
	sop := res.Record
	if sop.ID() != "PROD-2024-01-09-001" {
		t.Errorf("Expected PROD-2024-01-09-001, got %s", sop.ID())
	}
	if sop.Meta.Status != model.StatusDraft || sop.Meta.Author != "bob" || sop.Meta.Title != "Pallet wrap" {
		t.Errorf("Unexpected draft %+v", sop.Meta)
	}
	if sop.Description != "Wrap pallets before dispatch" {
		t.Errorf("Expected description to be copied, got %q", sop.Description)
	}
	if _, err := env.sync.Get(ctx, sop.ID()); err != nil {
		t.Errorf("Expected draft to be persisted: %v", err)
	}

	if _, _, err := svc.Start(ctx, req.ID); !errors.Is(err, ErrRequestStarted) {
		t.Errorf("Expected ErrRequestStarted, got %v", err)
	}
	if _, _, err := svc.Start(ctx, "missing"); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("Expected ErrRequestNotFound, got %v", err)
	}
}
