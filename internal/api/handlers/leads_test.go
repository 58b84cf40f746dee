package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dialworks/leadagent/internal/store"
	"github.com/dialworks/leadagent/pkg/env"
	"github.com/dialworks/leadagent/pkg/middleware"
)

func newLeadsRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	leadStore, err := store.Open(filepath.Join(t.TempDir(), "leads.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { leadStore.Close() })

	h := NewHandler(&env.Config{AppEnv: "development"}, nil, leadStore, nil, nil, nil)

	router := gin.New()
	router.POST("/api/leads/import", h.ImportLeads)
	router.GET("/api/leads", h.ListLeads)
	router.GET("/api/leads/:phone", middleware.ValidatePhoneParam("phone"), h.GetLead)
	router.GET("/api/leads/:phone/conversation", middleware.ValidatePhoneParam("phone"), h.GetConversation)
	return router, leadStore
}

func TestImportLeadsJSON(t *testing.T) {
	router, _ := newLeadsRouter(t)

	body := `{"leads":[
		{"phone":"4155551234","name":"Jane Doe"},
		{"phone":"(415) 555-9999","name":"Bob"},
		{"phone":"12345","name":"Bad Number"}
	]}`
	req := httptest.NewRequest("POST", "/api/leads/import", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Imported int      `json:"imported"`
		Errors   []string `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if resp.Imported != 2 {
		t.Errorf("imported = %d, want 2", resp.Imported)
	}
	if len(resp.Errors) != 1 {
		t.Errorf("errors = %v, want 1 rejected row", resp.Errors)
	}
}

func TestImportLeadsCSV(t *testing.T) {
	router, _ := newLeadsRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "leads.csv")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("name,phone,email\nJane,4155551234,jane@example.com\nBob,4155559999,\n"))
	mw.Close()

	req := httptest.NewRequest("POST", "/api/leads/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	// Round trip through GET to confirm canonical keys
	req = httptest.NewRequest("GET", "/api/leads/+14155551234", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET lead status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var lead store.Lead
	if err := json.Unmarshal(w.Body.Bytes(), &lead); err != nil {
		t.Fatalf("invalid lead response: %v", err)
	}
	if lead.Email != "jane@example.com" || lead.Name != "Jane" {
		t.Errorf("lead = %+v, want Jane with jane@example.com", lead)
	}
}

func TestImportLeadsRejectsEmpty(t *testing.T) {
	router, _ := newLeadsRouter(t)

	req := httptest.NewRequest("POST", "/api/leads/import", bytes.NewBufferString(`{"leads":[{"phone":"12"}]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 when nothing imports", w.Code)
	}
}

func TestGetLeadNotFound(t *testing.T) {
	router, _ := newLeadsRouter(t)

	req := httptest.NewRequest("GET", "/api/leads/4155550000", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListLeadsFiltersByStatus(t *testing.T) {
	router, leadStore := newLeadsRouter(t)

	ctx := httptest.NewRequest("GET", "/", nil).Context()
	leadStore.UpsertLead(ctx, store.Lead{Phone: "+14155551234", Name: "Jane"})
	leadStore.UpsertLead(ctx, store.Lead{Phone: "+14155559999", Name: "Bob"})
	leadStore.UpdateStatus(ctx, "+14155559999", store.StatusCalled)

	req := httptest.NewRequest("GET", "/api/leads?status=called", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Data  []store.Lead `json:"data"`
		Total int64        `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Phone != "+14155559999" {
		t.Errorf("filtered leads = %+v, want only Bob", resp.Data)
	}
}
