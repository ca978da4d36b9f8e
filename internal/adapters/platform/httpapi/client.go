// Package httpapi talks to the platform gateway over HTTP on behalf of fleet
// accounts.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/botfleet/internal/domain"
	"github.com/bnema/botfleet/internal/ports"
)

const maxResponseBytes = 1 << 20

var (
	_ ports.Platform            = (*Client)(nil)
	_ ports.RelationshipChecker = (*Client)(nil)
	_ ports.Resolver            = (*Client)(nil)
)

// Client is the gateway client. Secrets resolves the bearer token of each
// account from its Auth.SecretRef.
type Client struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	UserAgent      string
	Secrets        ports.SecretStore
}

// APIError is a non-2xx gateway answer.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("platform: status %d: %s: %s", e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("platform: status %d: %s", e.Status, e.Message)
	case e.Code != "":
		return fmt.Sprintf("platform: status %d: %s", e.Status, e.Code)
	default:
		return fmt.Sprintf("platform: status %d", e.Status)
	}
}

func (e *APIError) StatusCode() int {
	return e.Status
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) token(ctx context.Context, account domain.Account) (string, error) {
	if account.Auth.SecretRef == "" {
		return "", fmt.Errorf("load credentials of %s: %w", account.ID, domain.ErrSecretNotFound)
	}
	if c.Secrets == nil {
		return "", errors.New("load credentials: no secret store configured")
	}

	token, err := c.Secrets.Get(ctx, account.Auth.SecretRef)
	if err != nil {
		return "", fmt.Errorf("load credentials of %s: %w", account.ID, err)
	}
	return strings.TrimSpace(token), nil
}

// do sends one request and decodes a 2xx JSON answer into out when out is
// not nil. A zero account sends no Authorization header.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, account domain.Account, body any, out any) error {
	endpoint, err := buildAPIURL(c.BaseURL, path)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if account.ID != "" {
		token, err := c.token(ctx, account)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Proxy-Index", fmt.Sprint(account.ProxyIndex))
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var payload errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err == nil {
		apiErr.Code = payload.Error
		apiErr.Message = payload.Message
	}
	return apiErr
}

func buildAPIURL(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("api base url is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("api base url host is required")
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return endpoint.String(), nil
}
