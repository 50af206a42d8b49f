package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/roadsync/tracking-system/internal/core/domain"
	"github.com/roadsync/tracking-system/internal/core/ports"
)

type driverDTO struct {
	ID           string `json:"id"`
	Availability string `json:"availability"`
}

// DriversClient implements ports.DriverDirectory against the user service's
// internal API.
type DriversClient struct {
	baseURL string
	http    *http.Client
}

func NewDriversClient(cfg Config) *DriversClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &DriversClient{
		baseURL: cfg.DriversBaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *DriversClient) GetDriver(ctx context.Context, driverID string) (*ports.DriverDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/internal/v1/drivers/"+url.PathEscape(driverID), nil)
	if err != nil {
		return nil, fmt.Errorf("get driver %s: build request: %w", driverID, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get driver %s: %w: user service: %v", driverID, domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("get driver %s: %w", driverID, domain.ErrDriverNotFound)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("get driver %s: %w: user service returned %d", driverID, domain.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("get driver %s: user service returned %d", driverID, resp.StatusCode)
	}

	var dto driverDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("get driver %s: decode response: %w", driverID, err)
	}

	return &ports.DriverDetails{
		ID:           dto.ID,
		Availability: domain.VehicleStatus(dto.Availability),
	}, nil
}
