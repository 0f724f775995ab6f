package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/recorpproduction-prog/camcapprod/model"
)

// NextSequence returns the next free sequence number for a department and
// month: one more than the highest DEPT-YYYY-MM-DD-NNN suffix in the merged
// record set, or 1. Keys with missing segments or a non-numeric suffix are
// ignored.
func (s *SyncService) NextSequence(ctx context.Context, dept string, year int, month time.Month) (int, error) {
	records, err := s.LoadMerged(ctx)
	if err != nil {
		return 0, err
	}
	prefix := fmt.Sprintf("%s-%04d-%02d-", strings.ToUpper(dept), year, int(month))

	highest := 0
	for id := range records {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		// the remainder must be exactly DD-NNN
		day, seq, ok := strings.Cut(id[len(prefix):], "-")
		if !ok || day == "" || seq == "" || strings.Contains(seq, "-") {
			continue
		}
		n, err := strconv.Atoi(seq)
		if err != nil || n < 0 {
			continue
		}
		highest = max(highest, n)
	}
	return highest + 1, nil
}

// NextSOPID composes the next DEPT-YYYY-MM-DD-NNN reference for date.
func (s *SyncService) NextSOPID(ctx context.Context, dept string, date time.Time) (string, error) {
	seq, err := s.NextSequence(ctx, dept, date.Year(), date.Month())
	if err != nil {
		return "", err
	}
	return model.FormatSOPID(dept, date, seq), nil
}

// Allocate picks the next id for dept and date and calls create with it
// while holding that department's lock for the month. create must persist
// the record before returning so the next caller sees the id as taken.
func (s *SyncService) Allocate(ctx context.Context, dept string, date time.Time, create func(ctx context.Context, id string) error) (string, error) {
	lock := s.allocLock(fmt.Sprintf("%s-%04d-%02d", strings.ToUpper(dept), date.Year(), int(date.Month())))
	lock.Lock()
	defer lock.Unlock()

	id, err := s.NextSOPID(ctx, dept, date)
	if err != nil {
		return "", err
	}
	if err := create(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SyncService) allocLock(key string) *sync.Mutex {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()
	lock, ok := s.allocs[key]
	if !ok {
		lock = &sync.Mutex{}
		s.allocs[key] = lock
	}
	return lock
}
