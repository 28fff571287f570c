package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/automation_backend/models"
	"github.com/mmdatafocus/automation_backend/utils"
	"github.com/sirupsen/logrus"
)

// Queue operations understood by the engine's queue worker.
const OpExecuteAutomation = "execute_automation"

// ValidationError carries every shape problem found in an inbound webhook.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid webhook payload: " + strings.Join(e.Problems, "; ")
}

// Engine evaluates automations against inbound events and drives provider
// actions. It is explicitly constructed: the record store, provider registry
// and transform registry are injected, no ambient global state.
type Engine struct {
	store      Store
	providers  *ProviderRegistry
	transforms *TransformRegistry
	logger     *logrus.Logger

	// Announce, when set, notifies the job runner that a queue entry is
	// ready. Best effort: the poll loop picks entries up regardless.
	Announce func(ctx context.Context, payload QueuePubSubPayload)

	MaxEventAge     time.Duration
	TestTimeout     time.Duration
	DeliveryTimeout time.Duration
	RetryBaseDelay  time.Duration
	QueueMaxRetries int
}

func NewEngine(store Store, providers *ProviderRegistry, transforms *TransformRegistry, logger *logrus.Logger) *Engine {
	maxAge := DefaultMaxEventAge
	if v := strings.TrimSpace(os.Getenv("WEBHOOK_MAX_EVENT_AGE_HOURS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxAge = time.Duration(n) * time.Hour
		}
	}
	return &Engine{
		store:           store,
		providers:       providers,
		transforms:      transforms,
		logger:          logger,
		MaxEventAge:     maxAge,
		TestTimeout:     10 * time.Second,
		DeliveryTimeout: 30 * time.Second,
		RetryBaseDelay:  5 * time.Second,
		QueueMaxRetries: models.DefaultQueueMaxRetries,
	}
}

// HandleWebhook runs the full inbound pipeline: shape validation, staleness
// check, idempotency claim, then automation evaluation. The returned count is
// the number of automations that executed successfully; individual automation
// failures never surface here.
func (e *Engine) HandleWebhook(ctx context.Context, workspaceId string, p *WebhookPayload) (int, error) {
	if problems := ValidateWebhookPayload(p); len(problems) > 0 {
		return 0, &ValidationError{Problems: problems}
	}

	if IsStale(p.Meta, e.MaxEventAge, time.Now()) {
		e.logger.WithFields(logrus.Fields{
			"module":       "automation",
			"workspace_id": workspaceId,
			"event":        p.Meta.EventName(),
			"timestamp":    p.Meta.Timestamp,
		}).Info("skipping stale webhook event")
		return 0, ErrStaleEvent
	}

	claimed, err := e.store.ClaimEventKey(ctx, EventKeyRecord(workspaceId, p.Meta))
	if err != nil {
		return 0, err
	}
	if !claimed {
		return 0, ErrDuplicateEvent
	}

	return e.TriggerEvent(ctx, workspaceId, p.Meta.EventName(), p.EventData())
}

// TriggerEvent offers the event to every active automation registered for it,
// in execution_order (ties by insertion order), each evaluated sequentially.
// Automations are independent: one failing never prevents evaluation of the
// next. "The event was processed" and "every automation succeeded" are
// different guarantees, so the error return covers only the former.
func (e *Engine) TriggerEvent(ctx context.Context, workspaceId, event string, eventData map[string]interface{}) (int, error) {
	automations, err := e.store.ActiveAutomations(ctx, workspaceId, event)
	if err != nil {
		return 0, err
	}

	executed := 0
	for i := range automations {
		a := &automations[i]

		conditions := utils.DecodeFlatMap(a.TriggerConditionsJSON)
		if !MatchesConditions(eventData, conditions) {
			// Considered but not attempted: no log row.
			continue
		}

		if err := e.executeAutomation(ctx, a, eventData, true); err != nil {
			e.logger.WithFields(logrus.Fields{
				"module":        "automation",
				"workspace_id":  workspaceId,
				"automation_id": a.ID,
				"event":         event,
			}).Warn("automation execution failed: " + err.Error())
			continue
		}
		executed++
	}
	return executed, nil
}

// ExecuteAutomation runs one automation against eventData, writing the
// execution log row and updating counters. Used for manual runs and by
// TriggerEvent.
func (e *Engine) ExecuteAutomation(ctx context.Context, workspaceId string, automationId uint, eventData map[string]interface{}) error {
	a, err := e.store.GetAutomation(ctx, workspaceId, automationId)
	if err != nil {
		return err
	}
	if a == nil {
		return &ConfigurationError{Reason: fmt.Sprintf("automation %d not found", automationId)}
	}
	if !a.IsActive {
		return &ConfigurationError{Reason: fmt.Sprintf("automation %d is inactive", automationId)}
	}
	return e.executeAutomation(ctx, a, eventData, true)
}

// executeAutomation resolves the provider, writes the log row, makes the
// call, and records the outcome. Config resolution happens before the log
// row: a misconfigured automation is a ConfigurationError, not a provider
// attempt. enqueueRetry is false on the queue-worker path, where the sync
// queue already owns the retry schedule.
func (e *Engine) executeAutomation(ctx context.Context, a *models.IntegrationAutomation, eventData map[string]interface{}, enqueueRetry bool) error {
	impl, cfg, integration, err := e.resolveAction(ctx, a)
	if err != nil {
		return err
	}

	started := time.Now().UTC()
	row := models.ExecutionLog{
		AutomationId: &a.ID,
		WorkspaceId:  a.WorkspaceId,
		ProviderId:   a.ActionProviderId,
		TriggerEvent: a.TriggerEvent,
		ActionType:   a.ActionType,
		Status:       models.ExecutionStatusRunning,
		StartedAt:    started,
	}
	if err := e.store.CreateExecutionLog(ctx, &row); err != nil {
		// The audit trail is the point; do not call the provider without it.
		return err
	}

	callErr := e.callProvider(ctx, impl, a, cfg, integration, eventData)

	finished := time.Now().UTC()
	durationMs := finished.Sub(started).Milliseconds()

	if callErr == nil {
		if err := e.store.FinishExecutionLog(ctx, row.ID, models.ExecutionStatusSuccess, nil, finished, durationMs); err != nil {
			e.logFinishError(a, err)
		}
		_ = e.store.RecordAutomationResult(ctx, a.ID, true, nil, finished)
		_ = e.store.RecordIntegrationResult(ctx, a.WorkspaceId, a.ActionProviderId, true, nil, finished)
		return nil
	}

	msg := callErr.Error()
	if err := e.store.FinishExecutionLog(ctx, row.ID, models.ExecutionStatusFailed, &msg, finished, durationMs); err != nil {
		e.logFinishError(a, err)
	}
	_ = e.store.RecordAutomationResult(ctx, a.ID, false, &msg, finished)
	_ = e.store.RecordIntegrationResult(ctx, a.WorkspaceId, a.ActionProviderId, false, &msg, finished)

	if enqueueRetry && !IsConfigurationError(callErr) {
		e.enqueueRetry(ctx, a, eventData, msg)
	}
	return callErr
}

// resolveAction maps the automation's provider id to a registered
// implementation plus the merged call config (integration auth data under
// the automation's action config).
func (e *Engine) resolveAction(ctx context.Context, a *models.IntegrationAutomation) (ActionProvider, map[string]interface{}, *models.WorkspaceIntegration, error) {
	provider, err := e.store.GetProvider(ctx, a.ActionProviderId)
	if err != nil {
		return nil, nil, nil, err
	}
	if provider == nil || !provider.IsActive {
		return nil, nil, nil, &ConfigurationError{Reason: fmt.Sprintf("provider %d not found or inactive", a.ActionProviderId)}
	}

	impl, ok := e.providers.Get(provider.Name)
	if !ok {
		return nil, nil, nil, &ConfigurationError{Reason: "no implementation registered for provider " + provider.Name}
	}

	integration, err := e.store.GetIntegration(ctx, a.WorkspaceId, a.ActionProviderId)
	if err != nil {
		return nil, nil, nil, err
	}
	if integration == nil {
		return nil, nil, nil, &ConfigurationError{Reason: provider.Name + " is not connected for this workspace"}
	}
	if integration.SyncStatus == models.SyncStatusPaused || integration.SyncStatus == models.SyncStatusDisconnected {
		return nil, nil, nil, &ConfigurationError{Reason: provider.Name + " integration is " + integration.SyncStatus}
	}

	cfg := map[string]interface{}{}
	for k, v := range utils.DecodeFlatMap(integration.AuthDataJSON) {
		cfg[k] = v
	}
	for k, v := range utils.DecodeFlatMap(a.ActionConfigJSON) {
		cfg[k] = v
	}

	if cv, ok := impl.(ConfigValidator); ok {
		if err := cv.ValidateConfig(cfg); err != nil {
			return nil, nil, nil, err
		}
	}
	return impl, cfg, integration, nil
}

// callProvider applies field mappings and invokes the action under the
// delivery timeout. A timeout is a failure, not an unknown: the remote side
// may still have applied the effect, which is what makes delivery
// at-least-once rather than exactly-once.
func (e *Engine) callProvider(ctx context.Context, impl ActionProvider, a *models.IntegrationAutomation, cfg map[string]interface{}, integration *models.WorkspaceIntegration, eventData map[string]interface{}) error {
	payload := eventData
	mappings, err := e.store.ActiveFieldMappings(ctx, a.WorkspaceId, integration.ID)
	if err != nil {
		return err
	}
	if len(mappings) > 0 {
		payload = ApplyMappings(eventData, mappings, DirectionToExternal, e.transforms)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.DeliveryTimeout)
	defer cancel()

	res := impl.Execute(callCtx, a.ActionType, cfg, payload)
	if res.Success {
		return nil
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("provider call timed out after %s: %s", e.DeliveryTimeout, res.Error)
	}
	if res.Error == "" {
		return errors.New("provider call failed")
	}
	return errors.New(res.Error)
}

// TestIntegration verifies a workspace's connection to a provider and flips
// sync_status accordingly. Uses the fast 10s timeout: connection checks give
// up quickly, unlike deliveries.
func (e *Engine) TestIntegration(ctx context.Context, workspaceId string, providerId uint) error {
	provider, err := e.store.GetProvider(ctx, providerId)
	if err != nil {
		return err
	}
	if provider == nil || !provider.IsActive {
		return &ConfigurationError{Reason: fmt.Sprintf("provider %d not found or inactive", providerId)}
	}
	impl, ok := e.providers.Get(provider.Name)
	if !ok {
		return &ConfigurationError{Reason: "no implementation registered for provider " + provider.Name}
	}
	integration, err := e.store.GetIntegration(ctx, workspaceId, providerId)
	if err != nil {
		return err
	}
	if integration == nil {
		return &ConfigurationError{Reason: provider.Name + " is not connected for this workspace"}
	}

	cfg := map[string]interface{}{}
	for k, v := range utils.DecodeFlatMap(integration.AuthDataJSON) {
		cfg[k] = v
	}
	for k, v := range utils.DecodeFlatMap(integration.SettingsJSON) {
		cfg[k] = v
	}

	testCtx, cancel := context.WithTimeout(ctx, e.TestTimeout)
	defer cancel()

	testErr := RetryWithBackoff(testCtx, func() error {
		res := impl.Test(testCtx, cfg)
		if res.Success {
			return nil
		}
		if res.Error == "" {
			return errors.New("connection test failed")
		}
		return errors.New(res.Error)
	}, DefaultMaxRetries, DefaultBaseDelay)

	if testErr != nil {
		msg := testErr.Error()
		_ = e.store.SetIntegrationStatus(ctx, workspaceId, providerId, models.SyncStatusError, &msg)
		return testErr
	}
	return e.store.SetIntegrationStatus(ctx, workspaceId, providerId, models.SyncStatusActive, nil)
}

// IntegrationStatuses reports per-provider health for one workspace.
func (e *Engine) IntegrationStatuses(ctx context.Context, workspaceId string) ([]IntegrationStatusResponse, error) {
	integrations, err := e.store.ListIntegrations(ctx, workspaceId)
	if err != nil {
		return nil, err
	}

	out := make([]IntegrationStatusResponse, 0, len(integrations))
	for i := range integrations {
		in := &integrations[i]
		name := ""
		if p, err := e.store.GetProvider(ctx, in.ProviderId); err == nil && p != nil {
			name = p.Name
		}
		out = append(out, IntegrationStatusResponse{
			ProviderId:        in.ProviderId,
			ProviderName:      name,
			SyncStatus:        in.SyncStatus,
			TotalExecutions:   in.TotalExecutions,
			MonthlyExecutions: in.MonthlyExecutions,
			LastError:         in.LastError,
			LastSuccessAt:     formatTime(in.LastSuccessAt),
		})
	}
	return out, nil
}

// enqueueRetry hands a failed delivery to the sync queue with an exponential
// initial delay. Best effort: a queue insert failure is logged, not
// propagated, because the execution outcome is already recorded.
func (e *Engine) enqueueRetry(ctx context.Context, a *models.IntegrationAutomation, eventData map[string]interface{}, lastError string) {
	payload, err := json.Marshal(queuePayload{
		AutomationId: a.ID,
		EventData:    eventData,
		LastError:    lastError,
	})
	if err != nil {
		return
	}

	entry := models.SyncQueueEntry{
		WorkspaceId: a.WorkspaceId,
		Operation:   OpExecuteAutomation,
		PayloadJSON: payload,
		Status:      models.QueueStatusPending,
		MaxRetries:  e.QueueMaxRetries,
		ScheduledAt: time.Now().UTC().Add(backoffDelay(0, e.RetryBaseDelay, 0)),
	}
	if err := e.store.Enqueue(ctx, &entry); err != nil {
		e.logger.WithFields(logrus.Fields{
			"module":        "automation",
			"workspace_id":  a.WorkspaceId,
			"automation_id": a.ID,
		}).Error("failed to enqueue retry: " + err.Error())
		return
	}

	if e.Announce != nil {
		e.Announce(ctx, QueuePubSubPayload{EntryId: entry.ID, WorkspaceId: entry.WorkspaceId})
	}
}

func (e *Engine) logFinishError(a *models.IntegrationAutomation, err error) {
	e.logger.WithFields(logrus.Fields{
		"module":        "automation",
		"workspace_id":  a.WorkspaceId,
		"automation_id": a.ID,
	}).Error("failed to finish execution log: " + err.Error())
}
