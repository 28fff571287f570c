package automation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/automation_backend/models"
	"github.com/mmdatafocus/automation_backend/utils"
)

var requestValidator = validator.New()

// WebhookHandler is the inbound entry point for provider webhooks.
// The raw body is verified against the integration's shared secret before any
// JSON decoding; a bad signature never reaches the pipeline.
func WebhookHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceId, err := resolveWorkspaceID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetWorkspaceIdInContext(c.Request.Context(), workspaceId)

		providerName := strings.TrimSpace(c.Param("provider"))
		provider, err := engine.store.GetProviderByName(ctx, providerName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if provider == nil || !provider.IsActive {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
			return
		}

		integration, err := engine.store.GetIntegration(ctx, workspaceId, provider.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if integration == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "integration not connected"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		secret := webhookSecret(integration)
		if secret == "" || !VerifySignature(body, c.GetHeader("X-Webhook-Signature"), secret) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		var payload WebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": []string{"body is not valid JSON"}})
			return
		}

		executed, err := engine.HandleWebhook(ctx, workspaceId, &payload)
		if err != nil {
			var vErr *ValidationError
			switch {
			case errors.As(err, &vErr):
				c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": vErr.Problems})
			case errors.Is(err, ErrDuplicateEvent):
				c.JSON(http.StatusAccepted, gin.H{"accepted": true, "duplicate": true})
			case errors.Is(err, ErrStaleEvent):
				c.JSON(http.StatusAccepted, gin.H{"accepted": true, "stale": true})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"accepted": true, "executed": executed})
	}
}

// webhookSecret digs the shared secret out of the integration's auth data.
func webhookSecret(integration *models.WorkspaceIntegration) string {
	authData := utils.DecodeFlatMap(integration.AuthDataJSON)
	for _, key := range []string{"webhook_secret", "secret"} {
		if v, ok := authData[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func StatusHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceId, err := resolveWorkspaceID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		ctx := utils.SetWorkspaceIdInContext(c.Request.Context(), workspaceId)

		statuses, err := engine.IntegrationStatuses(ctx, workspaceId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"integrations": statuses})
	}
}

func ConnectHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceId, err := resolveWorkspaceID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := utils.SetWorkspaceIdInContext(c.Request.Context(), workspaceId)

		provider, err := engine.store.GetProvider(ctx, req.ProviderId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if provider == nil || !provider.IsActive {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
			return
		}

		authData, _ := json.Marshal(req.AuthData)
		settings, _ := json.Marshal(req.Settings)
		integration := &models.WorkspaceIntegration{
			WorkspaceId:  workspaceId,
			ProviderId:   provider.ID,
			AuthDataJSON: authData,
			SettingsJSON: settings,
			SyncStatus:   models.SyncStatusActive,
		}
		if err := engine.store.UpsertIntegration(ctx, integration); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func TestHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceId, err := resolveWorkspaceID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req TestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := requestValidator.Struct(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := utils.SetWorkspaceIdInContext(c.Request.Context(), workspaceId)
		if err := engine.TestIntegration(ctx, workspaceId, req.ProviderId); err != nil {
			if IsConfigurationError(err) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func ManualRunHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceId, err := resolveWorkspaceID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		automationId, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil || automationId == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid automation id"})
			return
		}

		var req ManualRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.EventData == nil {
			req.EventData = map[string]interface{}{}
		}

		ctx := utils.SetWorkspaceIdInContext(c.Request.Context(), workspaceId)
		if err := engine.ExecuteAutomation(ctx, workspaceId, uint(automationId), req.EventData); err != nil {
			if IsConfigurationError(err) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// QueueRetryHandler replays a terminally failed queue entry. The entry goes
// back to pending with a fresh retry budget; a publish nudges push consumers.
func QueueRetryHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		workspaceId, err := resolveWorkspaceID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		entryId, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil || entryId == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid queue entry id"})
			return
		}

		ctx := utils.SetWorkspaceIdInContext(c.Request.Context(), workspaceId)
		if err := engine.store.RequeueEntry(ctx, workspaceId, uint(entryId)); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no failed entry to retry"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if engine.Announce != nil {
			engine.Announce(ctx, QueuePubSubPayload{EntryId: uint(entryId), WorkspaceId: workspaceId})
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// resolveWorkspaceID pulls the tenant out of the authenticated request
// context, falling back to the X-Workspace-Id header for service callers.
func resolveWorkspaceID(c *gin.Context) (string, error) {
	if workspaceId, ok := utils.GetWorkspaceIdFromContext(c.Request.Context()); ok && strings.TrimSpace(workspaceId) != "" {
		return strings.TrimSpace(workspaceId), nil
	}
	if workspaceId := strings.TrimSpace(c.GetHeader("X-Workspace-Id")); workspaceId != "" {
		return workspaceId, nil
	}
	return "", errors.New("unauthorized")
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
