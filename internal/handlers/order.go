package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/db"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/models"
)

const defaultStudentID = "anonymous"

// OrderEventPublisher announces new orders to the pipeline
type OrderEventPublisher interface {
	PublishOrderPlaced(ctx context.Context, order *models.Order) error
}

type OrderHandler struct {
	repo      *db.OrderRepository
	publisher OrderEventPublisher
	logger    *zap.Logger
}

func NewOrderHandler(repo *db.OrderRepository, pub OrderEventPublisher, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		repo:      repo,
		publisher: pub,
		logger:    logger,
	}
}

// RegisterRoutes mounts the order API on r
func (h *OrderHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", HealthCheck("order-service"))
	r.POST("/order", h.CreateOrder)
	r.GET("/orders", h.ListOrders)
	r.GET("/orders/:id", h.GetOrder)
	r.PATCH("/orders/:id/status", h.UpdateOrderStatus)
}

// ListOrders returns all orders
func (h *OrderHandler) ListOrders(c *gin.Context) {
	c.JSON(http.StatusOK, h.repo.GetAll())
}

// GetOrder returns a single order
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.repo.GetByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// CreateOrder stores a new order and publishes order.placed. The order is
// kept even when the publish fails; the caller gets a 503 with the order.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	item := strings.TrimSpace(req.Item)
	if item == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item is required"})
		return
	}
	qty := 1
	if req.Qty != nil {
		qty = *req.Qty
	}
	if qty < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "qty must be a positive integer"})
		return
	}
	studentID := strings.TrimSpace(req.StudentID)
	if studentID == "" {
		studentID = defaultStudentID
	}

	order, err := h.repo.Create(item, qty, studentID)
	if err != nil {
		h.logger.Error("❌ Failed to create order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log := h.logger.With(zap.String("order_id", order.OrderID))

	if err := h.publisher.PublishOrderPlaced(c.Request.Context(), &order); err != nil {
		log.Error("❌ Order stored but order.placed was not published", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "order stored but could not be queued for fulfillment",
			"order": order,
		})
		return
	}

	log.Info("📤 Published order.placed",
		zap.String("item", order.Item),
		zap.Int("qty", order.Qty),
	)
	c.JSON(http.StatusCreated, order)
}

// UpdateOrderStatus updates the order status
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	if !models.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	order, err := h.repo.UpdateStatus(c.Param("id"), req.Status)
	switch {
	case errors.Is(err, db.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	case errors.Is(err, db.ErrStatusConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "order": order})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("🔄 Order status updated",
		zap.String("order_id", order.OrderID),
		zap.String("status", order.Status),
	)
	c.JSON(http.StatusOK, order)
}
