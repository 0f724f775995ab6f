package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/pkg/logger"
	"github.com/recorpproduction-prog/camcapprod/pkg/metrics"
	"github.com/recorpproduction-prog/camcapprod/storage"
)

// ErrSOPNotFound is returned when no backend holds the requested record.
var ErrSOPNotFound = errors.New("sop not found")

// SyncService owns every read and write of SOP records. Reads go through
// LoadMerged; writes go to the active remote first and always to the local
// cache.
type SyncService struct {
	selector *storage.Selector
	local    *storage.Local
	now      func() time.Time

	allocMu sync.Mutex
	allocs  map[string]*sync.Mutex // DEPT-YYYY-MM -> allocation lock
}

func NewSyncService(selector *storage.Selector, local *storage.Local) *SyncService {
	return &SyncService{
		selector: selector,
		local:    local,
		now:      time.Now,
		allocs:   make(map[string]*sync.Mutex),
	}
}

// Active returns the current remote backend, nil in local-only mode.
func (s *SyncService) Active() storage.Adapter {
	if s.selector == nil {
		return nil
	}
	return s.selector.Active()
}

// LoadMerged returns remote records overlaid on the local cache. A remote
// failure is only returned when nothing at all could be assembled.
func (s *SyncService) LoadMerged(ctx context.Context) (storage.Records, error) {
	localRecords, localErr := s.local.LoadAll(ctx)

	remote := s.Active()
	if remote == nil {
		if localErr != nil {
			metrics.MergeOutcomes.WithLabelValues("failed").Inc()
			return nil, localErr
		}
		metrics.MergeOutcomes.WithLabelValues("local_only").Inc()
		return localRecords, nil
	}

	merged, remoteErr := remote.LoadAll(ctx)
	metrics.BackendOps.WithLabelValues(string(remote.Kind()), "load", metrics.Result(remoteErr)).Inc()
	if remoteErr != nil || merged == nil {
		merged = make(storage.Records)
	}
	for id, sop := range localRecords {
		if _, ok := merged[id]; !ok {
			merged[id] = sop
		}
	}

	if remoteErr != nil {
		if len(merged) == 0 {
			metrics.MergeOutcomes.WithLabelValues("failed").Inc()
			return nil, remoteErr
		}
		logger.Warn(ctx, "remote load failed, serving local cache",
			"backend", remote.Kind(),
			"error", remoteErr,
			"records", len(merged),
		)
		metrics.MergeOutcomes.WithLabelValues("degraded").Inc()
		return merged, nil
	}
	if localErr != nil {
		logger.Warn(ctx, "local cache unreadable", "error", localErr)
	}
	metrics.MergeOutcomes.WithLabelValues("remote").Inc()
	return merged, nil
}

// Get returns one record from the merged view.
func (s *SyncService) Get(ctx context.Context, id string) (*model.SOP, error) {
	records, err := s.LoadMerged(ctx)
	if err != nil {
		return nil, err
	}
	sop, ok := records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSOPNotFound, id)
	}
	return sop, nil
}

// SaveResult describes where a save landed. RemoteErr is a warning: the
// record is safe in the local cache even when it is set.
type SaveResult struct {
	Record    *model.SOP
	Backend   storage.Kind
	RemoteErr error
}

// Save writes the record to the active remote, then to the local cache
// regardless of the remote outcome. Only a local failure is returned as an
// error; it wraps storage.ErrQuotaExceeded when the cache is full.
func (s *SyncService) Save(ctx context.Context, sop *model.SOP) (*SaveResult, error) {
	if sop.Meta == nil {
		sop.Meta = &model.Meta{}
	}
	if sop.Meta.SOPID == "" {
		sop.Meta.SOPID = model.FallbackSOPID(s.now())
	}
	ctx = logger.WithSOP(ctx, sop.Meta.SOPID)

	result := &SaveResult{Record: sop, Backend: storage.KindLocal}
	remote := s.Active()
	if remote != nil {
		result.Backend = remote.Kind()
		result.RemoteErr = remote.Save(ctx, sop)
		metrics.BackendOps.WithLabelValues(string(remote.Kind()), "save", metrics.Result(result.RemoteErr)).Inc()
	}

	var err error
	if remote != nil && result.RemoteErr == nil {
		err = s.local.Put(ctx, sop)
	} else {
		err = s.local.Save(ctx, sop)
	}
	metrics.BackendOps.WithLabelValues(string(storage.KindLocal), "save", metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to save locally: %w", err)
	}

	if result.RemoteErr != nil {
		result.Backend = storage.KindLocal
		logger.Warn(ctx, "remote save failed, kept local copy", "error", result.RemoteErr)
	} else {
		logger.Debug(ctx, "sop saved", "backend", result.Backend)
	}
	return result, nil
}

// Delete removes the record from the active remote and then the local cache.
// Deleting an unknown id succeeds. When the remote delete fails the local
// copy is kept and the error returned.
func (s *SyncService) Delete(ctx context.Context, id string) error {
	ctx = logger.WithSOP(ctx, id)
	if remote := s.Active(); remote != nil {
		err := remote.Delete(ctx, id)
		if storage.IsNotFound(err) {
			err = nil
		}
		metrics.BackendOps.WithLabelValues(string(remote.Kind()), "delete", metrics.Result(err)).Inc()
		if err != nil {
			return fmt.Errorf("failed to delete remotely: %w", err)
		}
	}
	if err := s.local.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete locally: %w", err)
	}
	logger.Info(ctx, "sop deleted")
	return nil
}
