package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/storage"
)

type fakeUsersAPI struct {
	mu    sync.Mutex
	users []model.User
	gets  int
	fail  bool
}

func (f *fakeUsersAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.URL.Path != "/users" {
		http.NotFound(w, r)
		return
	}
	if f.fail {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"database offline"}`))
		return
	}
	switch r.Method {
	case http.MethodGet:
		f.gets++
		json.NewEncoder(w).Encode(map[string]any{"users": f.users})
	case http.MethodPost:
		var body struct {
			Users []model.User `json:"users"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.users = body.Users
		w.Write([]byte(`{"success":true}`))
	}
}

func TestUserDirectoryStatic(t *testing.T) {
	d := NewUserDirectory(nil, []model.User{{Name: "Alice Smith", Email: "alice@example.com", Role: model.RoleAuthor}})
	ctx := context.Background()

	u, ok := d.FindByName(ctx, "  alice smith ")
	if !ok || u.Email != "alice@example.com" {
		t.Errorf("Expected alice, got %+v (%v)", u, ok)
	}
	if _, ok := d.FindByName(ctx, "nobody"); ok {
		t.Error("Expected no match")
	}

	if err := d.Register(ctx, model.User{Name: "Bob", Role: model.RoleReviewer}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	users, _ := d.List(ctx)
	if len(users) != 2 {
		t.Errorf("Expected 2 users, got %d", len(users))
	}
	if err := d.Register(ctx, model.User{Name: "", Role: model.RoleAuthor}); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("Expected ErrInvalidUser, got %v", err)
	}
}

func TestUserDirectorySharedAPI(t *testing.T) {
	api := &fakeUsersAPI{users: []model.User{{Name: "Alice", Email: "alice@example.com", Role: model.RoleAuthor}}}
	server := httptest.NewServer(api)
	defer server.Close()

	shared := storage.NewSharedAPI(storage.SharedAPIConfig{BaseURL: server.URL})
	d := NewUserDirectory(shared, []model.User{{Name: "Static", Role: model.RoleAdmin}})
	ctx := context.Background()

	users, err := d.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(users) != 1 || users[0].Name != "Alice" {
		t.Errorf("Expected shared API users, got %+v", users)
	}
	d.List(ctx)
	api.mu.Lock()
	gets := api.gets
	api.mu.Unlock()
	if gets != 1 {
		t.Errorf("Expected cached list, got %d fetches", gets)
	}

	if err := d.Register(ctx, model.User{Name: "Bob", Email: "bob@example.com", Role: model.RoleReviewer}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	api.mu.Lock()
	posted := len(api.users)
	api.fail = true
	api.mu.Unlock()
	if posted != 2 {
		t.Errorf("Expected 2 users posted, got %d", posted)
	}

	d.Invalidate()
	users, err = d.List(ctx)
	if err != nil {
		t.Fatalf("Expected cached list on failure, got %v", err)
	}
	if len(users) != 2 {
		t.Errorf("Expected cached 2 users, got %d", len(users))
	}
}

func TestUserDirectorySharedAPIFailureWithoutCache(t *testing.T) {
	server := httptest.NewServer(&fakeUsersAPI{fail: true})
	defer server.Close()

	d := NewUserDirectory(storage.NewSharedAPI(storage.SharedAPIConfig{BaseURL: server.URL}), nil)
	if _, err := d.List(context.Background()); err == nil {
		t.Error("Expected error")
	}
}

func TestUserDirectoryConcurrentRegister(t *testing.T) {
	api := &fakeUsersAPI{users: []model.User{}}
	server := httptest.NewServer(api)
	defer server.Close()

	for name, shared := range map[string]*storage.SharedAPI{
		"static":     nil,
		"shared api": storage.NewSharedAPI(storage.SharedAPIConfig{BaseURL: server.URL}),
	} {
		t.Run(name, func(t *testing.T) {
			d := NewUserDirectory(shared, nil)
			ctx := context.Background()

			const n = 20
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					user := model.User{Name: fmt.Sprintf("user-%02d", i), Role: model.RoleAuthor}
					if err := d.Register(ctx, user); err != nil {
						t.Errorf("Register failed: %v", err)
					}
				}(i)
			}
			wg.Wait()

			users, err := d.List(ctx)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(users) != n {
				t.Errorf("Expected %d users, got %d", n, len(users))
			}
		})
	}
}
