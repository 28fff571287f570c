package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ActionResult is the outcome a provider reports for one call.
type ActionResult struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// ActionProvider is the narrow interface the engine requires from each
// provider integration. Concrete providers (email, chat, CRM) are external
// collaborators; this package ships only the generic webhook one.
type ActionProvider interface {
	Execute(ctx context.Context, actionType string, config, payload map[string]interface{}) ActionResult
	Test(ctx context.Context, config map[string]interface{}) ActionResult
}

// ConfigValidator is implemented by providers that can reject a broken
// action configuration up front. The engine treats a validation failure as a
// ConfigurationError: surfaced immediately, never retried.
type ConfigValidator interface {
	ValidateConfig(config map[string]interface{}) error
}

// ProviderRegistry resolves provider catalog names to implementations.
// Populated at startup.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]ActionProvider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: map[string]ActionProvider{}}
}

func (r *ProviderRegistry) Register(name string, p ActionProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(name)] = p
}

func (r *ProviderRegistry) Get(name string) (ActionProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// webhookConfig is the action_config shape for the generic webhook provider.
type webhookConfig struct {
	URL       string `json:"url" validate:"required,url"`
	Secret    string `json:"secret"`
	SigHeader string `json:"signature_header"`
}

// WebhookProvider delivers events as signed HTTP/JSON POSTs. It covers the
// generic webhook contract; provider-specific wire formats live elsewhere.
type WebhookProvider struct {
	http     *http.Client
	validate *validator.Validate
}

func NewWebhookProvider() *WebhookProvider {
	return &WebhookProvider{
		// Per-call deadlines come from the caller's context; the client
		// timeout is only a backstop.
		http:     &http.Client{Timeout: 60 * time.Second},
		validate: validator.New(),
	}
}

func (p *WebhookProvider) decodeConfig(config map[string]interface{}) (webhookConfig, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return webhookConfig{}, err
	}
	var cfg webhookConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return webhookConfig{}, err
	}
	if cfg.SigHeader == "" {
		cfg.SigHeader = "X-Webhook-Signature"
	}
	return cfg, nil
}

func (p *WebhookProvider) ValidateConfig(config map[string]interface{}) error {
	cfg, err := p.decodeConfig(config)
	if err != nil {
		return &ConfigurationError{Reason: "invalid webhook config: " + err.Error()}
	}
	if err := p.validate.Struct(cfg); err != nil {
		return &ConfigurationError{Reason: "webhook url is required and must be a valid URL"}
	}
	return nil
}

func (p *WebhookProvider) Execute(ctx context.Context, actionType string, config, payload map[string]interface{}) ActionResult {
	cfg, err := p.decodeConfig(config)
	if err != nil {
		return ActionResult{Success: false, Error: err.Error()}
	}

	body := map[string]interface{}{
		"action":  actionType,
		"payload": payload,
	}
	return p.post(ctx, cfg, body)
}

func (p *WebhookProvider) Test(ctx context.Context, config map[string]interface{}) ActionResult {
	cfg, err := p.decodeConfig(config)
	if err != nil {
		return ActionResult{Success: false, Error: err.Error()}
	}
	return p.post(ctx, cfg, map[string]interface{}{"action": "test"})
}

func (p *WebhookProvider) post(ctx context.Context, cfg webhookConfig, body map[string]interface{}) ActionResult {
	raw, err := json.Marshal(body)
	if err != nil {
		return ActionResult{Success: false, Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(raw))
	if err != nil {
		return ActionResult{Success: false, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if cfg.Secret != "" {
		req.Header.Set(cfg.SigHeader, ComputeSignature(raw, cfg.Secret))
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return ActionResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ActionResult{
			Success: false,
			Error:   fmt.Sprintf("webhook receiver returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	result := ActionResult{Success: true}
	var parsed map[string]interface{}
	if err := json.Unmarshal(respBody, &parsed); err == nil {
		result.Data = parsed
	}
	return result
}
