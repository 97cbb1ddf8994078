package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestFlattenToFormData(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]any
		expected map[string]string
	}{
		{
			name: "simple values",
			input: map[string]any{
				"amount":   1099,
				"currency": "usd",
			},
			expected: map[string]string{
				"amount":   "1099",
				"currency": "usd",
			},
		},
		{
			name: "nested map",
			input: map[string]any{
				"amount": 1099,
				"metadata": map[string]any{
					"order_id": "12345",
					"user":     "john",
				},
			},
			expected: map[string]string{
				"amount":             "1099",
				"metadata[order_id]": "12345",
				"metadata[user]":     "john",
			},
		},
		{
			name: "deeply nested",
			input: map[string]any{
				"shipping": map[string]any{
					"address": map[string]any{
						"city":    "NYC",
						"country": "US",
					},
				},
			},
			expected: map[string]string{
				"shipping[address][city]":    "NYC",
				"shipping[address][country]": "US",
			},
		},
		{
			name: "array values",
			input: map[string]any{
				"items": []any{"item1", "item2"},
			},
			expected: map[string]string{
				"items[0]": "item1",
				"items[1]": "item2",
			},
		},
		{
			name: "array of objects",
			input: map[string]any{
				"line_items": []any{
					map[string]any{"price": "price_123", "quantity": 2},
					map[string]any{"price": "price_456", "quantity": 1},
				},
			},
			expected: map[string]string{
				"line_items[0][price]":    "price_123",
				"line_items[0][quantity]": "2",
				"line_items[1][price]":    "price_456",
				"line_items[1][quantity]": "1",
			},
		},
		{
			name: "stripe payment intent example",
			input: map[string]any{
				"amount":               1099,
				"currency":             "usd",
				"payment_method_types": []any{"card"},
				"metadata": map[string]any{
					"order_id": "order_123",
				},
			},
			expected: map[string]string{
				"amount":                  "1099",
				"currency":                "usd",
				"payment_method_types[0]": "card",
				"metadata[order_id]":      "order_123",
			},
		},
		{
			name:     "empty map",
			input:    map[string]any{},
			expected: map[string]string{},
		},
		{
			name: "boolean and float",
			input: map[string]any{
				"enabled": true,
				"rate":    0.15,
			},
			expected: map[string]string{
				"enabled": "true",
				"rate":    "0.15",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := flattenToFormData(tt.input, "")

			if len(result) != len(tt.expected) {
				t.Errorf("length mismatch: got %d, want %d\ngot: %v\nwant: %v",
					len(result), len(tt.expected), result, tt.expected)
				return
			}

			for key, expectedVal := range tt.expected {
				if gotVal, ok := result[key]; !ok {
					t.Errorf("missing key %q", key)
				} else if gotVal != expectedVal {
					t.Errorf("key %q: got %q, want %q", key, gotVal, expectedVal)
				}
			}
		})
	}
}

func newTestClient(t *testing.T, raw map[string]any) *Client {
	t.Helper()
	c, err := New(raw)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestNew_Defaults(t *testing.T) {
	c := newTestClient(t, nil)

	if c.Config.Timeout != 30*time.Second {
		t.Errorf("Expected Timeout=30s, got %v", c.Config.Timeout)
	}
	if c.Config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries=3, got %d", c.Config.MaxRetries)
	}
	if c.Config.RetryWaitMS != 100 {
		t.Errorf("Expected RetryWaitMS=100, got %d", c.Config.RetryWaitMS)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"timeout too short", map[string]any{"timeout": "10ms"}},
		{"too many retries", map[string]any{"max_retries": 11}},
		{"base url without scheme", map[string]any{"base_url": "example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.raw); err == nil {
				t.Error("Expected config error, got nil")
			}
		})
	}
}

func TestClient_GetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/users/1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-Token"); got != "abc" {
			t.Errorf("X-Token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":1,"name":"ada"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, map[string]any{"base_url": srv.URL})
	resp, err := c.Get(context.Background(), "/users/1", map[string]string{"X-Token": "abc"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
	user, ok := resp.Value().(map[string]any)
	if !ok || user["name"] != "ada" {
		t.Errorf("Value() = %#v", resp.Value())
	}
}

func TestClient_PlainTextBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, nil).Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.JSON != nil || resp.Value() != "pong" {
		t.Errorf("Value() = %#v, want raw body", resp.Value())
	}
}

func TestClient_PostBodies(t *testing.T) {
	tests := []struct {
		name        string
		headers     map[string]string
		body        any
		contentType string
		check       func(t *testing.T, raw string)
	}{
		{
			name:        "json map",
			body:        map[string]any{"a": 1},
			contentType: "application/json",
			check: func(t *testing.T, raw string) {
				var got map[string]any
				if err := json.Unmarshal([]byte(raw), &got); err != nil || got["a"] != float64(1) {
					t.Errorf("body = %q", raw)
				}
			},
		},
		{
			name:        "form encoded",
			headers:     map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
			body:        map[string]any{"amount": 1099, "metadata": map[string]any{"order_id": "o1"}},
			contentType: "application/x-www-form-urlencoded",
			check: func(t *testing.T, raw string) {
				values, err := url.ParseQuery(raw)
				if err != nil {
					t.Fatal(err)
				}
				if values.Get("amount") != "1099" || values.Get("metadata[order_id]") != "o1" {
					t.Errorf("form = %v", values)
				}
			},
		},
		{
			name:    "raw string",
			headers: map[string]string{"Content-Type": "text/plain"},
			body:    "hello",
			check: func(t *testing.T, raw string) {
				if raw != "hello" {
					t.Errorf("body = %q", raw)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s", r.Method)
				}
				if tt.contentType != "" && !strings.HasPrefix(r.Header.Get("Content-Type"), tt.contentType) {
					t.Errorf("Content-Type = %q, want %q", r.Header.Get("Content-Type"), tt.contentType)
				}
				raw, _ := io.ReadAll(r.Body)
				tt.check(t, string(raw))
			}))
			defer srv.Close()

			if _, err := newTestClient(t, nil).Post(context.Background(), srv.URL, tt.headers, tt.body); err != nil {
				t.Fatalf("Post failed: %v", err)
			}
		})
	}
}

func TestClient_ErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"missing"}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(t, map[string]any{"max_retries": 0}).Do(context.Background(), "delete", srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode)
	}
}

func TestClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newTestClient(t, map[string]any{"max_retries": 0}).Get(ctx, srv.URL, nil); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestClient_Shutdown(t *testing.T) {
	c := newTestClient(t, nil)
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := c.Get(context.Background(), "http://localhost", nil); err != errNotInitialized {
		t.Errorf("Expected errNotInitialized after Shutdown, got %v", err)
	}
}
