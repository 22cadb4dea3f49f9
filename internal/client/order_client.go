package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/models"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrStatusConflict = errors.New("order status conflict")
)

// OrderClient talks to the order service's HTTP API. The base URL is
// resolved on every call so a moved service is picked up.
type OrderClient struct {
	baseURL    func() string
	httpClient *http.Client
}

func NewOrderClient(baseURL func() string, timeout time.Duration) *OrderClient {
	return &OrderClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// UpdateStatus sets the status of an order via PATCH /orders/{id}/status
func (c *OrderClient) UpdateStatus(ctx context.Context, orderID, status string) error {
	body, err := json.Marshal(models.UpdateStatusRequest{Status: status})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/orders/%s/status", strings.TrimRight(c.baseURL(), "/"), url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call order service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrStatusConflict, orderID)
	default:
		return fmt.Errorf("order service returned status %d", resp.StatusCode)
	}
}
