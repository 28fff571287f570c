package automation

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func webhookRouter(engine *Engine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/:provider", WebhookHandler(engine))
	return r
}

func seedSignedWorkspace(store *fakeStore, secret string) {
	seedWorkspace(store)
	auth, _ := json.Marshal(map[string]string{"webhook_secret": secret})
	store.integrations[integrationKey("ws-1", 1)].AuthDataJSON = auth
}

func postWebhook(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/crm", bytes.NewReader(body))
	req.Header.Set("X-Workspace-Id", "ws-1")
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_ValidSignatureAccepted(t *testing.T) {
	store := newFakeStore()
	seedSignedWorkspace(store, "topsecret")
	seedAutomation(store, 1, 0, "")
	engine := newTestEngine(store, &scriptedProvider{})
	r := webhookRouter(engine)

	body, _ := json.Marshal(dealPayload(1))
	w := postWebhook(r, body, ComputeSignature(body, "topsecret"))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["executed"] != float64(1) {
		t.Fatalf("expected 1 execution reported, got %v", resp)
	}
}

func TestWebhookHandler_BadSignatureRejected(t *testing.T) {
	store := newFakeStore()
	seedSignedWorkspace(store, "topsecret")
	engine := newTestEngine(store, &scriptedProvider{})
	r := webhookRouter(engine)

	body, _ := json.Marshal(dealPayload(2))
	w := postWebhook(r, body, ComputeSignature(body, "wrong-secret"))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", w.Code)
	}

	w = postWebhook(r, body, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing signature, got %d", w.Code)
	}
}

func TestWebhookHandler_ShapeViolationsReported(t *testing.T) {
	store := newFakeStore()
	seedSignedWorkspace(store, "topsecret")
	engine := newTestEngine(store, &scriptedProvider{})
	r := webhookRouter(engine)

	body := []byte(`{"meta":{"action":"","object":"","id":null,"timestamp":0}}`)
	w := postWebhook(r, body, ComputeSignature(body, "topsecret"))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}

	var resp struct {
		Errors []string `json:"errors"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Errors) != 4 {
		t.Fatalf("expected all 4 violations in the response, got %v", resp.Errors)
	}
}

func TestWebhookHandler_DuplicateStillAccepted(t *testing.T) {
	store := newFakeStore()
	seedSignedWorkspace(store, "topsecret")
	seedAutomation(store, 1, 0, "")
	engine := newTestEngine(store, &scriptedProvider{})
	r := webhookRouter(engine)

	p := dealPayload(7)
	p.Meta.Timestamp = time.Now().Unix()
	body, _ := json.Marshal(p)
	sig := ComputeSignature(body, "topsecret")

	if w := postWebhook(r, body, sig); w.Code != http.StatusAccepted {
		t.Fatalf("first delivery: expected 202, got %d", w.Code)
	}
	w := postWebhook(r, body, sig)
	if w.Code != http.StatusAccepted {
		t.Fatalf("duplicate delivery: expected 202, got %d", w.Code)
	}
	var resp map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["duplicate"] != true {
		t.Fatalf("expected duplicate flag, got %v", resp)
	}
}

func TestWebhookHandler_MissingWorkspaceUnauthorized(t *testing.T) {
	store := newFakeStore()
	seedSignedWorkspace(store, "topsecret")
	engine := newTestEngine(store, &scriptedProvider{})
	r := webhookRouter(engine)

	body, _ := json.Marshal(dealPayload(3))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/crm", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", ComputeSignature(body, "topsecret"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a workspace, got %d", w.Code)
	}
}

func TestWebhookHandler_UnknownProvider(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(store, &scriptedProvider{})
	r := webhookRouter(engine)

	w := postWebhook(r, []byte("{}"), "sig")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown provider, got %d", w.Code)
	}
}
