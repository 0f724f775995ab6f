package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/storage/kv"
)

// ExportsKey is the kv key holding export metadata.
const ExportsKey = "exportMeta"

// ExportLog records PDF exports in the local state store. It keeps only the
// most recent entries and never stores record bodies.
type ExportLog struct {
	store      kv.Store
	mu         sync.Mutex
	maxEntries int // Maximum entries to keep, 0 = unlimited
}

func NewExportLog(store kv.Store, maxEntries int) *ExportLog {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &ExportLog{store: store, maxEntries: maxEntries}
}

// Append adds an entry, dropping the oldest ones past the limit.
func (l *ExportLog) Append(ctx context.Context, entry model.ExportEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	entries = l.cleanupIfNeeded(entries)
	return l.write(ctx, entries)
}

// List returns entries newest first.
func (l *ExportLog) List(ctx context.Context) ([]model.ExportEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ExportedAt.After(entries[j].ExportedAt)
	})
	return entries, nil
}

// Clear removes all export metadata, freeing local storage.
func (l *ExportLog) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Delete(ctx, ExportsKey)
}

// Count returns the number of entries kept
func (l *ExportLog) Count(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := l.read(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// cleanupIfNeeded removes the oldest entries past maxEntries
// Must be called with lock held
func (l *ExportLog) cleanupIfNeeded(entries []model.ExportEntry) []model.ExportEntry {
	if l.maxEntries <= 0 || len(entries) <= l.maxEntries {
		return entries
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ExportedAt.Before(entries[j].ExportedAt)
	})

	removeCount := len(entries) - l.maxEntries
	for i := 0; i < removeCount; i++ {
		slog.Debug("auto-cleaning old export entry",
			"sop_id", entries[i].SOPID,
			"exported_at", entries[i].ExportedAt,
		)
	}
	return entries[removeCount:]
}

func (l *ExportLog) read(ctx context.Context) ([]model.ExportEntry, error) {
	data, ok, err := l.store.Get(ctx, ExportsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read export log: %w", err)
	}
	if !ok || len(data) == 0 {
		return []model.ExportEntry{}, nil
	}
	var entries []model.ExportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return []model.ExportEntry{}, nil
	}
	return entries, nil
}

func (l *ExportLog) write(ctx context.Context, entries []model.ExportEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal export log: %w", err)
	}
	if err := l.store.Put(ctx, ExportsKey, data); err != nil {
		return fmt.Errorf("failed to write export log: %w", err)
	}
	return nil
}
