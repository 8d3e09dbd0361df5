// Package webhook implements the Webhook Ingestor (spec.md §4.4): a
// signature-verified, replay-protected HTTP intake that normalizes
// heterogeneous platform events and fans them out as jobs.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ordermesh/hub/internal/audit"
	"github.com/ordermesh/hub/internal/crypto"
	"github.com/ordermesh/hub/internal/httpserver"
	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/internal/telemetry"
	"github.com/ordermesh/hub/pkg/gateway"
	"github.com/ordermesh/hub/pkg/jobengine"
)

const intakeTimeout = 10 * time.Second

// Handler serves the platform webhook intake endpoints.
type Handler struct {
	store  *store.Store
	sealer *crypto.Sealer
	audit  *audit.Writer
	engine *jobengine.Engine
	dedup  *deduplicator
	logger *slog.Logger
}

// NewHandler creates a webhook intake Handler.
func NewHandler(s *store.Store, sealer *crypto.Sealer, auditWriter *audit.Writer, engine *jobengine.Engine, rdb *redis.Client, logger *slog.Logger) *Handler {
	return &Handler{store: s, sealer: sealer, audit: auditWriter, engine: engine, dedup: newDeduplicator(rdb, logger), logger: logger}
}

// Routes mounts the intake endpoint. Unlike the tenant-scoped control API,
// this is reached by external platforms that carry no tenant header —
// the tenant is resolved from the store row.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/{platform}/{storeID}", h.handleIntake)
	return r
}

func (h *Handler) handleIntake(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), intakeTimeout)
	defer cancel()

	platform := chi.URLParam(r, "platform")
	storeID, err := uuid.Parse(chi.URLParam(r, "storeID"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_store_id", err.Error())
		return
	}

	ps, err := h.store.GetPlatformStoreByID(ctx, storeID)
	if err != nil {
		httpserver.RespondStoreError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 5<<20))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_body", "could not read request body")
		return
	}

	if !h.checkSignature(ctx, ps, platform, body, r) {
		telemetry.WebhooksReceivedTotal.WithLabelValues(platform, "signature_failed").Inc()
		h.audit.Log(audit.Entry{
			TenantID:     ps.TenantID,
			Action:       "signature_verification_failed",
			ResourceType: "webhook_event",
			Tags:         []string{store.TagSecurity, store.TagWebhook},
		})
		httpserver.RespondError(w, http.StatusUnauthorized, "invalid_signature", "webhook signature verification failed")
		return
	}

	event := normalize(platform, body)
	if event.ExternalID == "" {
		telemetry.WebhooksReceivedTotal.WithLabelValues(platform, "invalid").Inc()
		httpserver.RespondError(w, http.StatusBadRequest, "missing_external_id", "could not extract an external id from the payload")
		return
	}

	if dr, err := h.dedup.check(ctx, h.store, storeID, event.ExternalID, event.EventType); err == nil && dr.isDuplicate {
		telemetry.WebhooksReceivedTotal.WithLabelValues(platform, "duplicate").Inc()
		h.audit.Log(audit.Entry{
			TenantID:     ps.TenantID,
			Action:       "replay_detected",
			ResourceType: "webhook_event",
			Tags:         []string{store.TagWebhook},
		})
		httpserver.Respond(w, http.StatusOK, map[string]any{"id": dr.eventID, "status": "duplicate"})
		return
	}

	var signature *string
	if sig := r.Header.Get(signatureHeaderName(platform)); sig != "" {
		signature = &sig
	}

	data, _ := json.Marshal(event)
	webhookEvent, err := h.store.InsertWebhookEvent(ctx, storeID, event.ExternalID, event.EventType, data, signature)
	if err != nil {
		if store.IsUniqueViolation(err) {
			telemetry.WebhooksReceivedTotal.WithLabelValues(platform, "duplicate").Inc()
			httpserver.Respond(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		telemetry.WebhooksReceivedTotal.WithLabelValues(platform, "error").Inc()
		h.logger.Error("inserting webhook event", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "could not record webhook event")
		return
	}
	h.dedup.record(ctx, storeID, event.ExternalID, event.EventType, webhookEvent.ID)

	if err := h.store.MarkWebhookEventProcessing(ctx, webhookEvent.ID); err != nil {
		telemetry.WebhooksReceivedTotal.WithLabelValues(platform, "error").Inc()
		h.logger.Error("marking webhook event processing", "error", err, "event_id", webhookEvent.ID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "could not process webhook event")
		return
	}

	idempotencyKey := fmt.Sprintf("webhook_%s_%s_%s_%s", platform, storeID, event.ExternalID, event.EventType)
	if _, err := h.engine.Enqueue(ctx, store.EnqueueJobParams{
		TenantID:       ps.TenantID,
		StoreID:        &storeID,
		Type:           store.JobTypeWebhookPrefix + platform,
		Payload:        data,
		Priority:       10,
		IdempotencyKey: idempotencyKey,
	}); err != nil {
		telemetry.WebhooksReceivedTotal.WithLabelValues(platform, "error").Inc()
		h.logger.Error("enqueueing webhook job", "error", err, "event_id", webhookEvent.ID)
		_ = h.store.MarkWebhookEventFailed(ctx, webhookEvent.ID, err.Error())
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "could not enqueue webhook job")
		return
	}

	if err := h.store.MarkWebhookEventProcessed(ctx, webhookEvent.ID, time.Now()); err != nil {
		h.logger.Error("marking webhook event processed", "error", err, "event_id", webhookEvent.ID)
	}

	telemetry.WebhooksReceivedTotal.WithLabelValues(platform, "processed").Inc()
	httpserver.Respond(w, http.StatusOK, map[string]any{"id": webhookEvent.ID, "status": "processed"})
}

// checkSignature verifies the platform's HMAC header against body.
// Verification is skipped (and recorded) when the store has no configured
// webhook secret, per spec.md §4.4 step 3.
func (h *Handler) checkSignature(ctx context.Context, ps store.PlatformStore, platform string, body []byte, r *http.Request) bool {
	creds, err := gateway.UnsealCredentials(h.sealer, ps.Credentials)
	if err != nil || creds.WebhookSecret == "" {
		h.audit.Log(audit.Entry{
			TenantID:     ps.TenantID,
			Action:       "signature_verification_skipped",
			ResourceType: "webhook_event",
			Tags:         []string{store.TagSecurity, store.TagWebhook},
		})
		return true
	}

	header := r.Header.Get(signatureHeaderName(platform))
	return verifySignature(platform, creds.WebhookSecret, body, header)
}
