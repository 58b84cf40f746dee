package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dialworks/leadagent/internal/store"
	"github.com/dialworks/leadagent/pkg/env"
)

func TestCallStatusWebhookUpdatesLead(t *testing.T) {
	gin.SetMode(gin.TestMode)

	leadStore, err := store.Open(filepath.Join(t.TempDir(), "leads.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { leadStore.Close() })

	ctx := context.Background()
	if err := leadStore.UpsertLead(ctx, store.Lead{Phone: "+14155551234", Name: "Jane"}); err != nil {
		t.Fatal(err)
	}

	// Empty auth token skips signature verification in development.
	h := NewHandler(&env.Config{PublicBaseURL: "https://example.test"}, nil, leadStore, nil, nil, nil)
	router := gin.New()
	router.POST("/webhooks/call-status", h.CallStatusWebhook)

	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("CallStatus", "completed")
	form.Set("To", "+14155551234")

	req := httptest.NewRequest("POST", "/webhooks/call-status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	call, err := leadStore.GetCall(ctx, "CA123")
	if err != nil {
		t.Fatalf("call not recorded: %v", err)
	}
	if call.Status != "completed" {
		t.Errorf("call status = %q, want completed", call.Status)
	}

	lead, err := leadStore.GetLead(ctx, "+14155551234")
	if err != nil {
		t.Fatal(err)
	}
	if lead.Status != store.StatusCallCompleted {
		t.Errorf("lead status = %q, want %q", lead.Status, store.StatusCallCompleted)
	}
}

func TestCallStatusWebhookRequiresCallSid(t *testing.T) {
	gin.SetMode(gin.TestMode)

	leadStore, err := store.Open(filepath.Join(t.TempDir(), "leads.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { leadStore.Close() })

	h := NewHandler(&env.Config{}, nil, leadStore, nil, nil, nil)
	router := gin.New()
	router.POST("/webhooks/call-status", h.CallStatusWebhook)

	req := httptest.NewRequest("POST", "/webhooks/call-status", strings.NewReader("CallStatus=completed"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
