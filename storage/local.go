package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/storage/kv"
)

// RecordsKey is the kv key holding the local record map.
const RecordsKey = "sopRecords"

// Local is the local cache. The whole record map lives under one key and
// every write is a read-modify-write of that map.
type Local struct {
	store kv.Store
	mu    sync.Mutex
}

func NewLocal(store kv.Store) *Local {
	return &Local{store: store}
}

func (l *Local) Kind() Kind        { return KindLocal }
func (l *Local) IsAvailable() bool { return true }

func (l *Local) LoadAll(ctx context.Context) (Records, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	raw, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	return decodeRecords(raw), nil
}

// Save stamps the record and writes it.
func (l *Local) Save(ctx context.Context, sop *model.SOP) error {
	stamp(sop)
	return l.Put(ctx, sop)
}

// Put writes the record as is, keeping the savedAt set by a remote backend.
func (l *Local) Put(ctx context.Context, sop *model.SOP) error {
	if sop.ID() == "" {
		return newError(KindLocal, "put", 0, fmt.Errorf("record has no sopId"))
	}
	data, err := json.Marshal(sop)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	raw, err := l.read(ctx)
	if err != nil {
		return err
	}
	raw[sop.ID()] = data
	return l.write(ctx, raw)
}

func (l *Local) Delete(ctx context.Context, sopID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	raw, err := l.read(ctx)
	if err != nil {
		return err
	}
	if _, ok := raw[sopID]; !ok {
		return nil
	}
	delete(raw, sopID)
	return l.write(ctx, raw)
}

func (l *Local) read(ctx context.Context) (map[string]json.RawMessage, error) {
	data, ok, err := l.store.Get(ctx, RecordsKey)
	if err != nil {
		return nil, newError(KindLocal, "read", 0, err)
	}
	raw := make(map[string]json.RawMessage)
	if !ok || len(data) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		// corrupt cache reads as empty
		return make(map[string]json.RawMessage), nil
	}
	return raw, nil
}

func (l *Local) write(ctx context.Context, raw map[string]json.RawMessage) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	if err := l.store.Put(ctx, RecordsKey, data); err != nil {
		return newError(KindLocal, "write", 0, err)
	}
	return nil
}
