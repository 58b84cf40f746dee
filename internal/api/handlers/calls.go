package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dialworks/leadagent/internal/store"
	"github.com/dialworks/leadagent/pkg/errors"
)

type CreateCallRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// CreateCall places one outbound call to the given number.
func (h *Handler) CreateCall(c *gin.Context) {
	var req CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	call, err := h.dialer.Dial(ctx, req.Phone)
	if err != nil {
		h.logger.Error("Failed to place call", zap.Error(err))
		errors.ErrorResponse(c, http.StatusBadGateway, "Dial Failed", "could not place the call")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"call_sid": call.Sid,
		"status":   call.Status,
	})
}

type BulkCallsRequest struct {
	Phones []string `json:"phones"`
	Status string   `json:"status"` // dial every lead with this status instead
}

// BulkCalls dials a list of numbers, or every lead matching a status filter,
// sequentially in the background. Responds immediately with the queue size.
func (h *Handler) BulkCalls(c *gin.Context) {
	var req BulkCallsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, err.Error())
		return
	}

	phones := req.Phones
	if len(phones) == 0 && req.Status != "" {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		leads, _, err := h.store.ListLeads(ctx, req.Status, 1000, 0)
		if err != nil {
			errors.InternalError(c, err, h.logger)
			return
		}
		for _, lead := range leads {
			phones = append(phones, lead.Phone)
		}
	}

	if len(phones) == 0 {
		errors.BadRequest(c, "no numbers to dial")
		return
	}

	// One conversation at a time; the batch outlives this request.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(len(phones))*2*time.Minute)
		defer cancel()
		result := h.dialer.DialBatch(ctx, phones)
		h.logger.Info("Bulk dial finished",
			zap.Int("attempted", result.Attempted),
			zap.Int("placed", result.Placed),
			zap.Int("failed", result.Failed),
		)
	}()

	c.JSON(http.StatusAccepted, gin.H{"queued": len(phones)})
}

func (h *Handler) GetCall(c *gin.Context) {
	callSID := c.Param("call_sid")
	if callSID == "" {
		errors.BadRequest(c, "call_sid is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	call, err := h.store.GetCall(ctx, callSID)
	if err == store.ErrNotFound {
		errors.NotFound(c, "call not found")
		return
	}
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, call)
}
