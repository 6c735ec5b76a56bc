package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/xid"
)

const CorrelationIDHeader = "X-Correlation-ID"

type correlationKey struct{}

// WithCorrelationID makes outbound calls made with ctx carry id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationFrom(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return xid.New().String()
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseErrorResponse(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return ""
	}
	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Message != "":
			return errResp.Message
		case errResp.Error != "":
			return errResp.Error
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(bytes.TrimSpace(body))
}

func (c *Client) do(ctx context.Context, kind Kind, route string, payload, result any) *Error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Kind: kind, Op: route, Err: fmt.Errorf("marshaling payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: kind, Op: route, Err: fmt.Errorf("creating request: %w", err)}
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Reveal())
	req.Header.Set(CorrelationIDHeader, correlationFrom(ctx))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: kind, Op: route, Err: fmt.Errorf("%w: %w", ErrConnection, err)}
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Kind:       kind,
			Op:         route,
			StatusCode: resp.StatusCode,
			Message:    parseErrorResponse(resp),
			Err:        causeForStatus(resp.StatusCode),
		}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && err != io.EOF {
			return &Error{Kind: kind, Op: route, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}
