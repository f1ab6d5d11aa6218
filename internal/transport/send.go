package transport

import (
	"context"
	"net/http"

	"github.com/lizzyg/llmbridge/internal/providers/retry"
)

// Send issues the request produced by build, retrying transient failures
// with cfg, and returns the first 2xx response. build runs once per attempt
// so each attempt gets a fresh body. The caller closes the response body.
func (c *Client) Send(ctx context.Context, provider, proxy string, cfg retry.Config, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var resp *http.Response
	err := retry.Do(ctx, cfg, func() error {
		req, err := build(ctx)
		if err != nil {
			return err
		}
		r, err := c.Do(req, proxy)
		if err != nil {
			return err
		}
		if err := CheckResponse(r, provider); err != nil {
			r.Body.Close()
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
