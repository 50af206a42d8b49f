// Package directory provides HTTP clients for the order and driver directory
// services. The tracking core treats both as remote sources of truth: order
// status changes are written through, never cached.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/roadsync/tracking-system/internal/core/domain"
	"github.com/roadsync/tracking-system/internal/core/ports"
)

const defaultTimeout = 5 * time.Second

// Config captures the endpoints of the upstream directory services.
type Config struct {
	OrdersBaseURL  string
	DriversBaseURL string
	Timeout        time.Duration
}

type orderDTO struct {
	ID                  string    `json:"id"`
	Status              string    `json:"status"`
	DriverID            string    `json:"driver_id"`
	OriginLat           float64   `json:"origin_lat"`
	OriginLon           float64   `json:"origin_lon"`
	DestLat             float64   `json:"dest_lat"`
	DestLon             float64   `json:"dest_lon"`
	EstimatedDistanceKm float64   `json:"estimated_distance_km"`
	EstimatedMinutes    int       `json:"estimated_minutes"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (d orderDTO) toDetails() *ports.OrderDetails {
	return &ports.OrderDetails{
		ID:                  d.ID,
		Status:              domain.OrderStatus(d.Status),
		DriverID:            d.DriverID,
		OriginLat:           d.OriginLat,
		OriginLon:           d.OriginLon,
		DestLat:             d.DestLat,
		DestLon:             d.DestLon,
		EstimatedDistanceKm: d.EstimatedDistanceKm,
		EstimatedMinutes:    d.EstimatedMinutes,
		UpdatedAt:           d.UpdatedAt,
	}
}

// OrdersClient implements ports.OrderDirectory against the order service's
// internal API.
type OrdersClient struct {
	baseURL string
	http    *http.Client
}

func NewOrdersClient(cfg Config) *OrdersClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OrdersClient{
		baseURL: cfg.OrdersBaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *OrdersClient) GetOrder(ctx context.Context, orderID string) (*ports.OrderDetails, error) {
	var dto orderDTO
	err := c.do(ctx, http.MethodGet, "/internal/v1/orders/"+url.PathEscape(orderID), nil, &dto)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return dto.toDetails(), nil
}

func (c *OrdersClient) SetStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	body := map[string]string{"status": string(status)}
	err := c.do(ctx, http.MethodPatch, "/internal/v1/orders/"+url.PathEscape(orderID)+"/status", body, nil)
	if err != nil {
		return fmt.Errorf("set order %s status: %w", orderID, err)
	}
	return nil
}

func (c *OrdersClient) AssignDriver(ctx context.Context, orderID, driverID string) error {
	body := map[string]string{"driver_id": driverID}
	err := c.do(ctx, http.MethodPut, "/internal/v1/orders/"+url.PathEscape(orderID)+"/driver", body, nil)
	if err != nil {
		return fmt.Errorf("assign driver to order %s: %w", orderID, err)
	}
	return nil
}

// ListStaleProcessing returns orders still in processing whose last update
// predates the cutoff.
func (c *OrdersClient) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]*ports.OrderDetails, error) {
	q := url.Values{}
	q.Set("status", string(domain.OrderProcessing))
	q.Set("updated_before", cutoff.UTC().Format(time.RFC3339))

	var dtos []orderDTO
	if err := c.do(ctx, http.MethodGet, "/internal/v1/orders?"+q.Encode(), nil, &dtos); err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}

	out := make([]*ports.OrderDetails, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, dto.toDetails())
	}
	return out, nil
}

// do runs one request against the order service, mapping 404 to the domain
// not-found error and transport or 5xx failures to ErrUpstreamUnavailable.
func (c *OrdersClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: order service: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrOrderNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: order service returned %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("order service returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
