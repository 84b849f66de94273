package recordbase

import (
	"context"
	"net/http"
)

// HealthStatus is the body of GET /api/health.
type HealthStatus struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	res, err := Send[HealthStatus](ctx, c, "/api/health", &Request{Method: http.MethodGet})
	if err != nil {
		return nil, err
	}
	return &res, nil
}
