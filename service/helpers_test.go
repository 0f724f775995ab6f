package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/storage"
	"github.com/recorpproduction-prog/camcapprod/storage/kv"
)

var errRemoteDown = errors.New("remote down")

// fakeRemote is an in-memory remote backend storing records as JSON.
type fakeRemote struct {
	mu        sync.Mutex
	records   map[string][]byte
	available bool
	loadErr   error
	saveErr   error
	deleteErr error
	block     bool
	saves     int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{records: make(map[string][]byte), available: true}
}

func (f *fakeRemote) Kind() storage.Kind { return storage.KindGitHub }

func (f *fakeRemote) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeRemote) LoadAll(ctx context.Context) (storage.Records, error) {
	f.mu.Lock()
	block, loadErr := f.block, f.loadErr
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if loadErr != nil {
		return nil, loadErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(storage.Records, len(f.records))
	for id, data := range f.records {
		var sop model.SOP
		if err := json.Unmarshal(data, &sop); err != nil {
			return nil, err
		}
		out[id] = &sop
	}
	return out, nil
}

func (f *fakeRemote) Save(ctx context.Context, sop *model.SOP) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	sop.SavedAt = time.Now().UTC()
	data, err := json.Marshal(sop)
	if err != nil {
		return err
	}
	f.records[sop.ID()] = data
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, sopID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.records, sopID)
	return nil
}

func (f *fakeRemote) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[id]
	return ok
}

type testEnv struct {
	store  kv.Store
	local  *storage.Local
	remote *fakeRemote
	sync   *SyncService
}

// newTestEnv wires a SyncService over an in-memory cache. A nil remote
// means local-only mode.
func newTestEnv(t *testing.T, remote *fakeRemote) *testEnv {
	t.Helper()
	store := kv.NewMemory()
	local := storage.NewLocal(store)
	var selector *storage.Selector
	if remote != nil {
		selector = storage.NewSelector(nil, nil, remote)
	} else {
		selector = storage.NewSelector(nil, nil)
	}
	return &testEnv{store: store, local: local, remote: remote, sync: NewSyncService(selector, local)}
}

func testSOP(id, title string) *model.SOP {
	sop := model.NewSOP("alice")
	sop.Meta.SOPID = id
	sop.Meta.Title = title
	sop.Meta.Department = "PROD"
	sop.Description = "Clean the filler head between runs"
	sop.Tools = []string{"wrench", "torch"}
	sop.Safety.PPE = []string{"gloves"}
	sop.Steps[0].Title = "Stop the line"
	return sop
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	return string(data)
}
