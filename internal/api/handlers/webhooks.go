package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dialworks/leadagent/internal/store"
	"github.com/dialworks/leadagent/pkg/errors"
	"github.com/dialworks/leadagent/pkg/logger"
	"github.com/dialworks/leadagent/pkg/utils"
	"github.com/dialworks/leadagent/pkg/webhook"
)

// CallStatusWebhook receives call lifecycle updates from the telephony
// provider. The request is HMAC verified against our auth token.
func (h *Handler) CallStatusWebhook(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		errors.BadRequest(c, "invalid form payload")
		return
	}

	requestURL := h.cfg.PublicBaseURL + c.Request.URL.RequestURI()
	signature := c.GetHeader("X-Twilio-Signature")
	if err := webhook.VerifyTwilioSignature(h.cfg.TwilioAuthToken, requestURL, c.Request.PostForm, signature); err != nil {
		h.logger.Warn("Webhook signature verification failed",
			zap.Error(err),
			zap.String("remote_addr", c.Request.RemoteAddr),
		)
		errors.Unauthorized(c, "invalid signature")
		return
	}

	callSID := c.PostForm("CallSid")
	callStatus := c.PostForm("CallStatus")
	to := c.PostForm("To")
	if callSID == "" {
		errors.BadRequest(c, "CallSid is required")
		return
	}

	phone := utils.CanonicalPhone(to)
	h.logger.Info("Call status update", logger.SafeFields(map[string]interface{}{
		"call_sid": callSID,
		"status":   callStatus,
		"to":       phone,
	})...)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.UpsertCall(ctx, callSID, phone, callStatus); err != nil {
		h.logger.Warn("Failed to record call status", zap.Error(err), zap.String("call_sid", callSID))
	}

	if phone != "" {
		if leadStatus := leadStatusFor(callStatus); leadStatus != "" {
			if err := h.store.UpdateStatus(ctx, phone, leadStatus); err != nil && err != store.ErrNotFound {
				h.logger.Warn("Failed to update lead status", zap.Error(err))
			}
		}
	}

	c.Status(http.StatusOK)
}

// leadStatusFor maps provider call states to lead statuses. Intermediate
// states (ringing, in-progress) leave the lead untouched.
func leadStatusFor(callStatus string) string {
	switch callStatus {
	case "completed":
		return store.StatusCallCompleted
	case "busy", "no-answer":
		return store.StatusNoAnswer
	case "failed", "canceled":
		return store.StatusFailed
	default:
		return ""
	}
}
