package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shambascan/internal/middleware"
	"shambascan/internal/service"
)

// SubscriptionHandler handles HTTP requests for subscriptions.
type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subscriptionService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService}
}

// SubscribeRequest is the request body for starting a subscription.
type SubscribeRequest struct {
	PlanID      string `json:"plan_id" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
}

// ListPlans handles GET /v1/plans
func (h *SubscriptionHandler) ListPlans(c *gin.Context) {
	respondJSON(c, http.StatusOK, service.Plans)
}

// Subscribe handles POST /v1/subscriptions
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, service.ErrInvalidUserID)
		return
	}

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := h.subscriptionService.Subscribe(c.Request.Context(), service.SubscribeRequest{
		UserID:      userID,
		PlanID:      req.PlanID,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusAccepted, result)
}

// GetStatus handles GET /v1/subscriptions/me
func (h *SubscriptionHandler) GetStatus(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondError(c, service.ErrInvalidUserID)
		return
	}

	sub, err := h.subscriptionService.GetStatus(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if sub == nil {
		respondJSON(c, http.StatusOK, gin.H{"status": "none"})
		return
	}

	respondJSON(c, http.StatusOK, sub)
}
