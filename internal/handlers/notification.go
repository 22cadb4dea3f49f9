package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/models"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/notification"
)

type NotificationHandler struct {
	store *notification.Store
}

func NewNotificationHandler(store *notification.Store) *NotificationHandler {
	return &NotificationHandler{store: store}
}

func (h *NotificationHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", HealthCheck("notification-service"))
	r.GET("/notifications", h.ListNotifications)
}

// ListNotifications returns every notification, or those of one order when
// ?order_id= is given
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	var records []models.Notification
	if orderID := c.Query("order_id"); orderID != "" {
		records = h.store.ByOrder(orderID)
	} else {
		records = h.store.List()
	}
	if records == nil {
		records = []models.Notification{}
	}

	c.JSON(http.StatusOK, records)
}
