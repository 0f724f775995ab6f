package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/recorpproduction-prog/camcapprod/storage/kv"
)

type fakeGists struct {
	mu     sync.Mutex
	gists  map[string]map[string]string // gist id -> filename -> content
	nextID int
}

func newFakeGists() *fakeGists {
	return &fakeGists{gists: make(map[string]map[string]string)}
}

type gistBody struct {
	Description string `json:"description"`
	Public      *bool  `json:"public"`
	Files       map[string]struct {
		Content string `json:"content"`
	} `json:"files"`
}

func (f *fakeGists) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/gists"), "/")
	switch {
	case r.Method == http.MethodPost && id == "":
		var body gistBody
		json.NewDecoder(r.Body).Decode(&body)
		f.nextID++
		gid := fmt.Sprintf("g%d", f.nextID)
		files := make(map[string]string)
		for name, file := range body.Files {
			files[name] = file.Content
		}
		f.gists[gid] = files
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"id":%q}`, gid)
	case id == "":
		w.WriteHeader(http.StatusNotFound)
	default:
		files, ok := f.gists[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
			return
		}
		switch r.Method {
		case http.MethodGet:
			out := map[string]any{}
			for name, content := range files {
				out[name] = map[string]string{"filename": name, "content": content}
			}
			json.NewEncoder(w).Encode(map[string]any{"id": id, "files": out})
		case http.MethodPatch:
			var body gistBody
			json.NewDecoder(r.Body).Decode(&body)
			for name, file := range body.Files {
				files[name] = file.Content
			}
			fmt.Fprintf(w, `{"id":%q}`, id)
		case http.MethodDelete:
			delete(f.gists, id)
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func TestGistSaveLoadDelete(t *testing.T) {
	fake := newFakeGists()
	ts := httptest.NewServer(fake)
	defer ts.Close()
	ctx := context.Background()
	state := kv.NewMemory()

	g, err := NewGist(GistConfig{Token: "ghp", BaseURL: ts.URL}, state)
	if err != nil {
		t.Fatalf("NewGist failed: %v", err)
	}

	sop := testSOP("PROD-2024-01-05-001", "Line clean")
	if err := g.Save(ctx, sop); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	sop.Meta.Title = "Line clean v2"
	if err := g.Save(ctx, sop); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}
	if len(fake.gists) != 1 {
		t.Fatalf("Expected the second save to edit the same gist, got %d gists", len(fake.gists))
	}

	ids, _ := g.GistIDs(ctx)
	if ids["PROD-2024-01-05-001"] != "g1" {
		t.Errorf("Expected persisted gist id g1, got %v", ids)
	}
	if raw, ok, _ := state.Get(ctx, GistMapKey); !ok || !strings.Contains(string(raw), "g1") {
		t.Errorf("Expected gist map in local state, got %s", raw)
	}

	records, err := g.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if got := records["PROD-2024-01-05-001"]; got == nil || got.Meta.Title != "Line clean v2" {
		t.Errorf("Unexpected records %+v", records)
	}

	if err := g.Delete(ctx, "PROD-2024-01-05-001"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := g.Delete(ctx, "PROD-2024-01-05-001"); err != nil {
		t.Fatalf("Second delete failed: %v", err)
	}
	if len(fake.gists) != 0 {
		t.Errorf("Expected gist removed, got %d", len(fake.gists))
	}
}

func TestGistLoadForgetsVanishedGists(t *testing.T) {
	ts := httptest.NewServer(newFakeGists())
	defer ts.Close()
	ctx := context.Background()
	state := kv.NewMemory()
	_ = state.Put(ctx, GistMapKey, []byte(`{"OLD-1":"gone"}`))

	g, _ := NewGist(GistConfig{Token: "ghp", BaseURL: ts.URL}, state)
	records, err := g.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
	ids, _ := g.GistIDs(ctx)
	if len(ids) != 0 {
		t.Errorf("Expected stale mapping dropped, got %v", ids)
	}
}
