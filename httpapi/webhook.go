package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v75/webhook"
	"go.uber.org/zap"

	"marketflow/settlement"
)

const maxWebhookBody = 64 << 10

// stripeWebhook treats processor events as a hint to reconcile. The intent
// status is always re-read from the processor by ConfirmSettlement.
func (h *handler) stripeWebhook(c *gin.Context) {
	if h.webhookSecret == "" {
		c.JSON(http.StatusNotFound, gin.H{"message": "webhooks disabled"})
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("read webhook body", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}
	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
	default:
		c.Status(http.StatusOK)
		return
	}
	intentID, _ := event.Data.Object["id"].(string)
	if intentID == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	res, err := h.settlement.ConfirmSettlement(c.Request.Context(), settlement.ConfirmParams{
		CallerID:        settlement.SystemCaller,
		PaymentIntentID: intentID,
	})
	switch {
	case err == nil, errors.Is(err, settlement.ErrAssetAlreadySold), errors.Is(err, settlement.ErrPaymentRejected):
		h.logger.Info("webhook reconciled",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("payment_intent_id", intentID),
			zap.String("outcome", string(res.Outcome)),
		)
		c.Status(http.StatusOK)
	case errors.Is(err, settlement.ErrUnknownIntent):
		h.logger.Warn("webhook for unknown payment intent",
			zap.String("event_id", event.ID),
			zap.String("payment_intent_id", intentID),
		)
		c.Status(http.StatusOK)
	case errors.Is(err, settlement.ErrTransientGateway):
		c.Status(http.StatusServiceUnavailable)
	default:
		h.logger.Error("webhook reconcile failed",
			zap.String("event_id", event.ID),
			zap.String("payment_intent_id", intentID),
			zap.Error(err),
		)
		c.Status(http.StatusInternalServerError)
	}
}
