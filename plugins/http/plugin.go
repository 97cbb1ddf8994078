package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/BDNK1/nodeflow/runtime"
	"github.com/BDNK1/nodeflow/runtime/plugin"
)

var _ plugin.HTTPClient = (*Client)(nil)

var errNotInitialized = errors.New("http client is not initialized")

// Config holds the HTTP client configuration with declarative tags
type Config struct {
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url_format"`
	Debug       bool          `yaml:"debug" default:"false"`
}

// Client is the resty-backed HTTP surface handed to handlers through
// API.HTTP. Responses with an error status are returned, not failed.
type Client struct {
	Config Config
	client *resty.Client
}

// New builds a client from raw config values and initializes it.
func New(raw map[string]any) (*Client, error) {
	c := &Client{}
	if err := runtime.InitializeConfig(&c.Config, raw); err != nil {
		return nil, fmt.Errorf("http client config: %w", err)
	}
	if err := c.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// Initialize implements the runtime.Initializer interface.
// Config is expected to be validated already.
func (c *Client) Initialize(context.Context) error {
	c.client = resty.New().
		SetTimeout(c.Config.Timeout).
		SetRetryCount(c.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(c.Config.RetryWaitMS) * time.Millisecond).
		SetDebug(c.Config.Debug)
	if c.Config.BaseURL != "" {
		c.client.SetBaseURL(c.Config.BaseURL)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*plugin.HTTPResponse, error) {
	return c.Do(ctx, http.MethodGet, url, headers, nil)
}

func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body any) (*plugin.HTTPResponse, error) {
	return c.Do(ctx, http.MethodPost, url, headers, body)
}

// Do sends one request. A map body goes out as JSON, or as flattened form
// fields when the Content-Type header asks for urlencoded data. A string
// body is sent as is.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body any) (*plugin.HTTPResponse, error) {
	if c.client == nil {
		return nil, errNotInitialized
	}

	req := c.client.R().
		SetContext(ctx).
		SetHeaders(headers)

	switch b := body.(type) {
	case nil:
	case string:
		if b != "" {
			req.SetBody(b)
		}
	default:
		if fields, ok := runtime.AsMap(b); ok && isFormEncoded(headers) {
			req.SetFormData(flattenToFormData(fields, ""))
		} else {
			req.SetBody(b)
		}
	}

	resp, err := req.Execute(strings.ToUpper(method), url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	out := &plugin.HTTPResponse{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Headers:    resp.Header(),
		Body:       resp.String(),
	}
	if raw := resp.Body(); len(raw) > 0 {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			out.JSON = decoded
		}
	}
	return out, nil
}

// Shutdown implements the runtime.Shutdowner interface
func (c *Client) Shutdown(context.Context) error {
	// Resty doesn't require explicit cleanup, but we can nil the client
	c.client = nil
	return nil
}

func isFormEncoded(headers map[string]string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") && strings.HasPrefix(strings.ToLower(v), "application/x-www-form-urlencoded") {
			return true
		}
	}
	return false
}

// flattenToFormData turns nested maps and lists into bracketed form keys,
// e.g. metadata[order_id] and items[0][price].
func flattenToFormData(data map[string]any, prefix string) map[string]string {
	out := map[string]string{}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		key := k
		if prefix != "" {
			key = prefix + "[" + k + "]"
		}
		flattenValue(out, key, data[k])
	}
	return out
}

func flattenValue(out map[string]string, key string, v any) {
	if m, ok := runtime.AsMap(v); ok {
		for nk, nv := range flattenToFormData(m, key) {
			out[nk] = nv
		}
		return
	}
	if items, ok := runtime.AsSlice(v); ok {
		for i, item := range items {
			flattenValue(out, key+"["+strconv.Itoa(i)+"]", item)
		}
		return
	}
	out[key] = runtime.Stringify(v)
}
