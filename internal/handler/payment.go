package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shambascan/internal/middleware"
	"shambascan/internal/mpesa"
	"shambascan/internal/service"
)

// PaymentHandler handles HTTP requests for payment sessions.
type PaymentHandler struct {
	paymentService *service.PaymentService
	logger         *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger.Named("payment_handler"),
	}
}

// STKPushRequest is the request body for initiating a payment.
type STKPushRequest struct {
	PhoneNumber      string  `json:"phone_number" binding:"required"`
	Amount           float64 `json:"amount" binding:"required"`
	AccountReference string  `json:"account_reference"`
	TransactionDesc  string  `json:"transaction_desc"`
}

// STKPush handles POST /v1/payments/stkpush
func (h *PaymentHandler) STKPush(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, service.ErrInvalidUserID)
		return
	}

	var req STKPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	snapshot, err := h.paymentService.Submit(c.Request.Context(), service.SubmitPaymentRequest{
		UserID:           userID,
		PhoneNumber:      req.PhoneNumber,
		Amount:           req.Amount,
		AccountReference: req.AccountReference,
		TransactionDesc:  req.TransactionDesc,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusAccepted, snapshot)
}

// GetSession handles GET /v1/payments/sessions/:id
func (h *PaymentHandler) GetSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, service.ErrInvalidUserID)
		return
	}

	snapshot, err := h.paymentService.GetSession(c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, snapshot)
}

// CancelSession handles POST /v1/payments/sessions/:id/cancel
func (h *PaymentHandler) CancelSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, service.ErrInvalidUserID)
		return
	}

	if err := h.paymentService.Cancel(c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"status": "cancelled"})
}

// Callback handles POST /v1/payments/callback
//
// This is the gateway-facing result endpoint. It always acknowledges with
// 200 so the gateway does not retry indefinitely; failures are logged.
func (h *PaymentHandler) Callback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		h.logger.Warn("unreadable payment callback", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	result, err := mpesa.ParseCallback(body)
	if err != nil {
		h.logger.Warn("unparseable payment callback", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
		return
	}

	if err := h.paymentService.RecordCallback(c.Request.Context(), result); err != nil {
		h.logger.Error("failed to record payment callback",
			zap.String("checkout_request_id", result.CheckoutRequestID),
			zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}
