package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/msto63/hive/internal/gateway/handler"
	"github.com/msto63/hive/pkg/core/apperr"
)

// Client reads the gateway JSON API
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the gateway at address ("host:port" or a URL)
func NewClient(address string, timeout time.Duration) *Client {
	base := strings.TrimRight(address, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the gateway URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// State fetches the current flight mode
func (c *Client) State(ctx context.Context) (handler.StateResponse, error) {
	var state handler.StateResponse
	err := c.get(ctx, "/api/v1/state", &state)
	return state, err
}

// Registers fetches a register snapshot with partition stats
func (c *Client) Registers(ctx context.Context) (handler.RegistersResponse, error) {
	var regs handler.RegistersResponse
	err := c.get(ctx, "/api/v1/registers", &regs)
	return regs, err
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apperr.Wrap(err, "failed to build request").WithCode(apperr.CodeInvalidInput)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrapf(err, "gateway %s unreachable", c.baseURL).WithCode(apperr.CodeUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr handler.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return apperr.Newf("GET %s: %s %s", path, resp.Status, apiErr.Error).WithCode(apperr.CodeUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrapf(err, "failed to decode %s", path).WithCode(apperr.CodeInternal)
	}
	return nil
}
