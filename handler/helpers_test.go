package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/recorpproduction-prog/camcapprod/model"
	"github.com/recorpproduction-prog/camcapprod/service"
	"github.com/recorpproduction-prog/camcapprod/storage"
	"github.com/recorpproduction-prog/camcapprod/storage/kv"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubRenderer struct{}

func (stubRenderer) Render(sop *model.SOP) ([]byte, error) {
	return []byte("%PDF-1.4 " + sop.ID()), nil
}

type stubMailer struct {
	mu   sync.Mutex
	sent []service.Email
}

func (m *stubMailer) Send(_ context.Context, email service.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

// testStack is the service graph behind the handlers, local-only unless a
// remote is passed.
type testStack struct {
	store    kv.Store
	local    *storage.Local
	selector *storage.Selector
	records  *service.SyncService
	workflow *service.Workflow
	exports  *service.ExportLog
	users    *service.UserDirectory
	requests *service.RequestService
	conn     *service.Connection
	mailer   *stubMailer
}

func newTestStack(t *testing.T, store kv.Store, shared *storage.SharedAPI) *testStack {
	t.Helper()
	if store == nil {
		store = kv.NewMemory()
	}
	s := &testStack{store: store, mailer: &stubMailer{}}
	s.local = storage.NewLocal(store)
	s.selector = storage.NewSelector(shared, nil)
	s.records = service.NewSyncService(s.selector, s.local)
	s.exports = service.NewExportLog(store, 10)
	s.users = service.NewUserDirectory(shared, []model.User{
		{Name: "Alice", Email: "alice@example.com", Role: model.RoleAuthor},
		{Name: "Rita", Email: "rita@example.com", Role: model.RoleReviewer},
	})
	s.requests = service.NewRequestService(store, s.records)
	s.conn = service.NewConnection(s.selector, 0)
	s.workflow = service.NewWorkflow(service.WorkflowDeps{
		Sync:           s.records,
		Renderer:       stubRenderer{},
		Mailer:         s.mailer,
		Exports:        s.exports,
		Users:          s.users,
		HoldingAddress: "sops@example.com",
	})
	t.Cleanup(s.workflow.Wait)
	return s
}

// asUser stands in for AuthMiddleware
func asUser(name, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("username", name)
		c.Set("name", name)
		c.Set("role", role)
		c.Next()
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
}
