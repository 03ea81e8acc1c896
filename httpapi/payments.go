package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"marketflow/ledger"
	"marketflow/settlement"
)

type createIntentRequest struct {
	AssetID        string      `json:"assetId" binding:"required"`
	Amount         int64       `json:"amount" binding:"required,gt=0"`
	Type           ledger.Type `json:"type" binding:"required,oneof=purchase investment"`
	IdempotencyKey string      `json:"idempotencyKey" binding:"omitempty,max=255"`
}

type createIntentResponse struct {
	ClientSecret  string             `json:"clientSecret"`
	TransactionID string             `json:"transactionId"`
	Transaction   ledger.Transaction `json:"transaction"`
}

type confirmRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
}

type confirmResponse struct {
	Message     string             `json:"message"`
	Outcome     settlement.Outcome `json:"outcome"`
	Transaction ledger.Transaction `json:"transaction"`
}

func (h *handler) createIntent(c *gin.Context) {
	var req createIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request", "error": err.Error()})
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}

	res, err := h.settlement.InitiateSettlement(c.Request.Context(), settlement.InitiateParams{
		CallerID:       callerID(c),
		AssetID:        req.AssetID,
		Amount:         req.Amount,
		Type:           req.Type,
		IdempotencyKey: key,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createIntentResponse{
		ClientSecret:  res.ClientSecret,
		TransactionID: res.Transaction.ID,
		Transaction:   res.Transaction,
	})
}

func (h *handler) confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request", "error": err.Error()})
		return
	}

	res, err := h.confirmer.Confirm(c.Request.Context(), settlement.ConfirmParams{
		CallerID:        callerID(c),
		PaymentIntentID: req.PaymentIntentID,
	})
	switch {
	case errors.Is(err, settlement.ErrAssetAlreadySold):
		status, body := errorResponse(err)
		body["outcome"] = settlement.OutcomeFlagged
		body["transaction"] = res.Transaction
		c.JSON(status, body)
		return
	case err != nil:
		h.writeError(c, err)
		return
	}

	switch res.Transaction.Status {
	case ledger.StatusCompleted:
		c.JSON(http.StatusOK, confirmResponse{Message: "payment confirmed", Outcome: res.Outcome, Transaction: res.Transaction})
	case ledger.StatusPending:
		c.JSON(http.StatusAccepted, confirmResponse{Message: "payment is still processing", Outcome: res.Outcome, Transaction: res.Transaction})
	default:
		c.JSON(http.StatusPaymentRequired, confirmResponse{Message: "payment failed", Outcome: res.Outcome, Transaction: res.Transaction})
	}
}

func (h *handler) history(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	out, err := h.settlement.History(c.Request.Context(), callerID(c), page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
