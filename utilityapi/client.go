package utilityapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	portalerrors "github.com/jrsteele09/go-utility-portal/internal/errors"
)

const (
	ContentTypeJSON = "application/json"
	maxResponseSize = 1 << 20
)

// SetJSONHeaders marks a request as exchanging JSON, keeping an explicit
// Content-Type already present.
func SetJSONHeaders(h http.Header) {
	h.Set("Accept", ContentTypeJSON)
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", ContentTypeJSON)
	}
}

// Response is a decoded utility API reply.
type Response struct {
	StatusCode int
	Envelope
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client posts JSON bodies to the utility API. Authorization is the
// responsibility of the http.Client's transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Post sends body as JSON. Non-2xx replies carrying an envelope are returned
// without error so the caller can surface the server message. Transport
// failures wrap ErrTransport; a body that is not an envelope wraps
// ErrUnexpectedResponse whatever the status.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("[utilityapi Post] marshal %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("[utilityapi Post] new request %s: %w", path, err)
	}
	SetJSONHeaders(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[utilityapi Post] %s: %w: %w", path, portalerrors.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("[utilityapi Post] read %s: %w: %w", path, portalerrors.ErrTransport, err)
	}

	out := &Response{StatusCode: resp.StatusCode}
	if len(bytes.TrimSpace(raw)) == 0 {
		if out.OK() {
			return out, nil
		}
		// An error status without an envelope comes from a proxy or a crash,
		// not from the API's business logic.
		return nil, fmt.Errorf("[utilityapi Post] %s: %w: status %d with empty body", path, portalerrors.ErrUnexpectedResponse, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &out.Envelope); err != nil {
		return nil, fmt.Errorf("[utilityapi Post] decode %s (status %d): %w: %w", path, resp.StatusCode, portalerrors.ErrUnexpectedResponse, err)
	}
	return out, nil
}
