package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/storage"
)

func TestSettingsSharedAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sops":
			w.Write([]byte(`{"sops":{}}`))
		case "/users":
			w.Write([]byte(`{"users":[{"name":"Remote","role":"author"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	shared := storage.NewSharedAPI(storage.SharedAPIConfig{})
	s := newTestStack(t, nil, shared)
	h := NewSettingsHandler(Backends{SharedAPI: shared}, s.users, s.conn)
	users := NewUserHandler(s.users)

	router := gin.New()
	router.PUT("/settings/:backend", h.Update)
	router.GET("/users", users.List)

	var list struct {
		Users []model.User `json:"users"`
	}
	decode(t, doJSON(t, router, "GET", "/users", nil), &list)
	if len(list.Users) != 2 {
		t.Fatalf("Expected configured users before setup, got %d", len(list.Users))
	}

	w := doJSON(t, router, "PUT", "/settings/shared-api", gin.H{"baseUrl": server.URL + "/"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Connection connectionBody `json:"connection"`
	}
	decode(t, w, &resp)
	if resp.Connection.Backend != storage.KindSharedAPI || !resp.Connection.Reachable {
		t.Errorf("Expected reachable shared API, got %+v", resp.Connection)
	}

	decode(t, doJSON(t, router, "GET", "/users", nil), &list)
	if len(list.Users) != 1 || list.Users[0].Name != "Remote" {
		t.Errorf("Expected users from the shared API, got %+v", list.Users)
	}
}

func TestSettingsUnknownBackend(t *testing.T) {
	s := newTestStack(t, nil, nil)
	h := NewSettingsHandler(Backends{}, s.users, s.conn)
	router := gin.New()
	router.PUT("/settings/:backend", h.Update)

	for _, backend := range []string{"dropbox", "gist", "github"} {
		if w := doJSON(t, router, "PUT", "/settings/"+backend, gin.H{"token": "x"}); w.Code != http.StatusNotFound {
			t.Errorf("%s: Expected status 404, got %d", backend, w.Code)
		}
	}
}

func TestSettingsGitHub(t *testing.T) {
	s := newTestStack(t, nil, nil)
	repo, err := storage.NewGitHubRepo(storage.GitHubConfig{BaseURL: "http://127.0.0.1:1/"})
	if err != nil {
		t.Fatalf("NewGitHubRepo failed: %v", err)
	}
	s.selector.SetFallbacks(repo)

	h := NewSettingsHandler(Backends{GitHub: repo}, s.users, s.conn)
	router := gin.New()
	router.PUT("/settings/:backend", h.Update)

	w := doJSON(t, router, "PUT", "/settings/github", gin.H{"token": "t", "owner": "acme", "repo": "sops"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	cfg := repo.Config()
	if cfg.Owner != "acme" || cfg.Branch != "main" || cfg.BaseURL != "http://127.0.0.1:1/" {
		t.Errorf("Unexpected config %+v", cfg)
	}

	var resp struct {
		Connection connectionBody `json:"connection"`
	}
	decode(t, w, &resp)
	if resp.Connection.Backend != storage.KindGitHub || !resp.Connection.Banner {
		t.Errorf("Expected unreachable github backend, got %+v", resp.Connection)
	}
}
