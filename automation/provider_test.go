package automation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookProvider_SignedDelivery(t *testing.T) {
	var gotBody []byte
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Webhook-Signature")
		_, _ = w.Write([]byte(`{"id":"remote-1"}`))
	}))
	defer srv.Close()

	p := NewWebhookProvider()
	res := p.Execute(context.Background(), "sync_record",
		map[string]interface{}{"url": srv.URL, "secret": "s3cret"},
		map[string]interface{}{"name": "Aye"})

	if !res.Success {
		t.Fatalf("expected success, got %v", res.Error)
	}
	if gotSig != ComputeSignature(gotBody, "s3cret") {
		t.Fatalf("delivered signature does not match body")
	}

	var body map[string]interface{}
	if err := json.Unmarshal(gotBody, &body); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if body["action"] != "sync_record" {
		t.Fatalf("expected action in envelope, got %v", body)
	}
	if res.Data["id"] != "remote-1" {
		t.Fatalf("expected receiver response parsed into Data, got %v", res.Data)
	}
}

func TestWebhookProvider_CustomSignatureHeader(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Custom-Sig")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewWebhookProvider()
	res := p.Test(context.Background(), map[string]interface{}{
		"url": srv.URL, "secret": "s", "signature_header": "X-Custom-Sig",
	})
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Error)
	}
	if gotSig == "" {
		t.Fatalf("expected signature on the configured header")
	}
}

func TestWebhookProvider_Non2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewWebhookProvider()
	res := p.Execute(context.Background(), "sync_record",
		map[string]interface{}{"url": srv.URL}, map[string]interface{}{})
	if res.Success {
		t.Fatalf("expected failure on 500")
	}
	if !strings.Contains(res.Error, "500") || !strings.Contains(res.Error, "boom") {
		t.Fatalf("expected status and body in error, got %q", res.Error)
	}
}

func TestWebhookProvider_ValidateConfig(t *testing.T) {
	p := NewWebhookProvider()

	if err := p.ValidateConfig(map[string]interface{}{"url": "https://example.com/hook"}); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	err := p.ValidateConfig(map[string]interface{}{})
	if !IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError for missing url, got %v", err)
	}
	err = p.ValidateConfig(map[string]interface{}{"url": "not a url"})
	if !IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError for bad url, got %v", err)
	}
}
