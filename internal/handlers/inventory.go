package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/inventory"
)

// QueueInspector reports how many messages wait in a queue
type QueueInspector interface {
	QueueDepth(queue string) (int, error)
}

type InventoryHandler struct {
	svc    *inventory.Service
	queues QueueInspector
	queue  string
	logger *zap.Logger
}

// NewInventoryHandler builds the read-only inventory API. queues may be nil,
// in which case the backlog is not reported.
func NewInventoryHandler(svc *inventory.Service, queues QueueInspector, queue string, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{
		svc:    svc,
		queues: queues,
		queue:  queue,
		logger: logger,
	}
}

func (h *InventoryHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", HealthCheck("inventory-service"))
	r.GET("/inventory", h.GetStock)
}

// GetStock returns the current stock ledger and the order backlog
func (h *InventoryHandler) GetStock(c *gin.Context) {
	stock, err := h.svc.Stock(c.Request.Context())
	if err != nil {
		h.logger.Error("❌ Failed to read stock", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stock unavailable"})
		return
	}

	resp := gin.H{"stock": stock}
	if h.queues != nil {
		if depth, err := h.queues.QueueDepth(h.queue); err == nil {
			resp["pending_orders"] = depth
		} else {
			h.logger.Warn("⚠️ Failed to inspect queue", zap.String("queue", h.queue), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, resp)
}
