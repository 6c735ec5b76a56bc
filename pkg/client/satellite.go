package client

import (
	"context"

	"github.com/darmiel/satellite/internal/api"
	"github.com/darmiel/satellite/internal/cache"
	"github.com/darmiel/satellite/pkg/hub"
)

func (c *Client) Health(ctx context.Context) (*api.HealthResponse, string, error) {
	var res api.HealthResponse
	correlation, err := c.get(ctx, c.url().setPath(api.HealthRoute).build(), &res)
	return &res, correlation, err
}

func (c *Client) Status(ctx context.Context) (*api.StatusResponse, string, error) {
	var res api.StatusResponse
	correlation, err := c.get(ctx, c.url().setPath(api.StatusRoute).build(), &res)
	return &res, correlation, err
}

func (c *Client) Info(ctx context.Context) (*api.InfoResponse, string, error) {
	var res api.InfoResponse
	correlation, err := c.get(ctx, c.url().setPath(api.InfoRoute).build(), &res)
	return &res, correlation, err
}

func (c *Client) Metrics(ctx context.Context) (*api.MetricsResponse, string, error) {
	var res api.MetricsResponse
	correlation, err := c.get(ctx, c.url().setPath(api.MetricsRoute).build(), &res)
	return &res, correlation, err
}

// Command runs one of the satellite's allow-listed commands.
func (c *Client) Command(ctx context.Context, command string, params map[string]any) (*api.CommandResponse, string, error) {
	var res api.CommandResponse
	correlation, err := c.post(ctx, c.url().setPath(api.CommandsRoute).build(), api.CommandPayload{
		Command:    command,
		Parameters: params,
	}, &res)
	return &res, correlation, err
}

func (c *Client) PushUpdates(ctx context.Context, updates []hub.Update) (*api.UpdatesResponse, string, error) {
	var res api.UpdatesResponse
	correlation, err := c.post(ctx, c.url().setPath(api.UpdatesRoute).build(), api.UpdatesPayload{Updates: updates}, &res)
	return &res, correlation, err
}

func (c *Client) ClearCache(ctx context.Context, req cache.Request) (*api.CacheResponse, string, error) {
	var res api.CacheResponse
	correlation, err := c.delete(ctx, c.url().setPath(api.CacheRoute).build(), req, &res)
	return &res, correlation, err
}
