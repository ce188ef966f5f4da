package iotapi

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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

var ErrTransport = errors.New("iot cloud request failed")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrTransport
}

type client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
}

type Option func(*client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *client) {
		cl.httpClient = c
	}
}

func New(baseURL, token string, opts ...Option) *client {
	c := &client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.L(),
		token:      token,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// UpdateToken swaps the bearer token used by subsequent calls.
func (c *client) UpdateToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *client) ListThings(ctx context.Context) ([]model.Thing, error) {
	things := []model.Thing{}
	if err := c.do(ctx, http.MethodGet, "/v2/things", nil, &things); err != nil {
		return nil, err
	}
	return things, nil
}

func (c *client) ListProperties(ctx context.Context, thingID string) ([]model.Property, error) {
	properties := []model.Property{}
	path := fmt.Sprintf("/v2/things/%s/properties", url.PathEscape(thingID))
	if err := c.do(ctx, http.MethodGet, path, nil, &properties); err != nil {
		return nil, err
	}
	for i := range properties {
		if properties[i].ThingID == "" {
			properties[i].ThingID = thingID
		}
	}
	return properties, nil
}

func (c *client) GetProperty(ctx context.Context, thingID, propertyID string) (model.Property, error) {
	property := model.Property{}
	path := fmt.Sprintf("/v2/things/%s/properties/%s", url.PathEscape(thingID), url.PathEscape(propertyID))
	if err := c.do(ctx, http.MethodGet, path, nil, &property); err != nil {
		return model.Property{}, err
	}
	return property, nil
}

func (c *client) SetProperty(ctx context.Context, thingID, propertyID string, value model.Value) error {
	path := fmt.Sprintf("/v2/things/%s/properties/%s/publish", url.PathEscape(thingID), url.PathEscape(propertyID))
	return c.do(ctx, http.MethodPut, path, publishRequest{Value: value}, nil)
}

type publishRequest struct {
	Value model.Value `json:"value"`
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, req.URL.Path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StatusError{
			StatusCode: res.StatusCode,
			Method:     method,
			URL:        req.URL.String(),
			Body:       string(data),
		}
	}
	c.logger.Debug("iot cloud request", zap.String("method", method), zap.String("path", path), zap.Int("status", res.StatusCode))
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", ErrTransport, path, err)
	}
	return nil
}
