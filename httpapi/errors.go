package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketflow/asset"
	"marketflow/review"
	"marketflow/settlement"
)

// writeError maps domain errors to a status and a message safe to show callers.
func (h *handler) writeError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.JSON(status, body)
}

func errorResponse(err error) (int, gin.H) {
	var orphan *settlement.OrphanedIntentError
	switch {
	case errors.As(err, &orphan):
		return http.StatusInternalServerError, gin.H{
			"message":         "payment could not be recorded, contact support",
			"paymentIntentId": orphan.IntentID,
		}
	case errors.Is(err, asset.ErrNotFound):
		return http.StatusNotFound, gin.H{"message": "asset not found"}
	case errors.Is(err, settlement.ErrAssetUnavailable):
		return http.StatusConflict, gin.H{"message": "asset is not available"}
	case errors.Is(err, settlement.ErrSelfPurchase):
		return http.StatusBadRequest, gin.H{"message": "cannot buy your own asset"}
	case errors.Is(err, settlement.ErrInvalidAmount):
		return http.StatusBadRequest, gin.H{"message": "amount is below the minimum"}
	case errors.Is(err, settlement.ErrInvalidType):
		return http.StatusBadRequest, gin.H{"message": "transaction type does not match the listing"}
	case errors.Is(err, settlement.ErrPaymentRejected):
		return http.StatusPaymentRequired, gin.H{"message": "payment was declined"}
	case errors.Is(err, settlement.ErrTransientGateway):
		return http.StatusServiceUnavailable, gin.H{"message": "payment processor unavailable, try again"}
	case errors.Is(err, settlement.ErrDuplicateIntent):
		return http.StatusConflict, gin.H{"message": "payment already recorded"}
	case errors.Is(err, settlement.ErrInvalidTransition):
		return http.StatusConflict, gin.H{"message": "transaction is already settled"}
	case errors.Is(err, settlement.ErrAssetAlreadySold):
		return http.StatusConflict, gin.H{"message": "payment received but the asset was already sold, a refund is pending review"}
	case errors.Is(err, settlement.ErrUnknownIntent):
		return http.StatusNotFound, gin.H{"message": "payment not found"}
	case errors.Is(err, settlement.ErrForbidden):
		return http.StatusForbidden, gin.H{"message": "forbidden"}
	case errors.Is(err, asset.ErrUnknownMetric), errors.Is(err, review.ErrUnknownStatus):
		return http.StatusBadRequest, gin.H{"message": err.Error()}
	case errors.Is(err, review.ErrNotFound):
		return http.StatusNotFound, gin.H{"message": "review not found"}
	case errors.Is(err, review.ErrBadStatus):
		return http.StatusConflict, gin.H{"message": "review already resolved"}
	default:
		return http.StatusInternalServerError, gin.H{"message": "server error"}
	}
}
