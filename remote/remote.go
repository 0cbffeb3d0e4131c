package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/goliatone/go-gamestate/record"
)

// maxBodySize caps how much of a peer response is read.
const maxBodySize = 4 << 20

// Result is a record payload served by a peer service.
type Result struct {
	Payload []byte
	Version int64
}

// Fetcher loads records whose source of truth is another service.
type Fetcher interface {
	// Fetch returns the record for key, or an error with code
	// record.CodeNotFound or record.CodeUpstreamUnavailable.
	Fetch(ctx context.Context, key string) (Result, error)
}

// Codec decodes a successful peer response body.
type Codec interface {
	Decode(body []byte) (Result, error)
}

// JSONCodec decodes {"key": "...", "version": N, "payload": <any JSON>}.
type JSONCodec struct{}

type jsonResponse struct {
	Key     string          `json:"key"`
	Version int64           `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// Decode implements Codec.
func (JSONCodec) Decode(body []byte) (Result, error) {
	var resp jsonResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, fmt.Errorf("decode peer response: %w", err)
	}
	if len(resp.Payload) == 0 {
		return Result{}, errors.New("decode peer response: missing payload")
	}
	return Result{Payload: []byte(resp.Payload), Version: resp.Version}, nil
}

// Config describes the peer service.
type Config struct {
	BaseURL     string        `env:"BASE_URL"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"1s"`
	ServiceName string        `env:"SERVICE_NAME" envDefault:"peer"`
}

// DefaultConfig returns a disabled configuration with a one second timeout.
func DefaultConfig() Config {
	return Config{Timeout: time.Second, ServiceName: "peer"}
}

// Enabled reports whether a peer is configured.
func (c Config) Enabled() bool {
	return c.BaseURL != ""
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ServiceName, validation.Required),
	)
}

// Option customises an HTTPClient.
type Option func(*HTTPClient)

// WithCodec replaces the default JSON codec.
func WithCodec(codec Codec) Option {
	return func(c *HTTPClient) {
		c.codec = codec
	}
}

// WithHTTPClient replaces the underlying transport client. The client is
// copied and the copy takes Config.Timeout; hc itself is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// HTTPClient fetches records from a peer over HTTP. It issues exactly one
// request per Fetch; retry policy belongs to the caller.
type HTTPClient struct {
	base    *url.URL
	timeout time.Duration
	service string
	codec   Codec
	http    *http.Client
}

var _ Fetcher = (*HTTPClient)(nil)

// NewHTTPClient validates cfg and builds a client with a pooled, traced transport.
func NewHTTPClient(cfg Config, opts ...Option) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("remote config: %w", err)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote base url: %w", err)
	}

	c := &HTTPClient{
		base:    base,
		timeout: cfg.Timeout,
		service: cfg.ServiceName,
		codec:   JSONCodec{},
		http: &http.Client{
			Transport: otelhttp.NewTransport(cleanhttp.DefaultPooledTransport()),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	// Copy so a caller supplied client keeps its own timeout.
	hc := *c.http
	hc.Timeout = cfg.Timeout
	c.http = &hc
	return c, nil
}

func (c *HTTPClient) recordURL(key string) string {
	return c.base.String() + "/records/" + url.PathEscape(key)
}

// Fetch implements Fetcher.
func (c *HTTPClient) Fetch(ctx context.Context, key string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.recordURL(key), nil)
	if err != nil {
		return Result{}, record.Wrap(record.CodeUpstreamUnavailable, key, "build request to "+c.service, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, record.Wrap(record.CodeUpstreamUnavailable, key, "request to "+c.service+" failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return Result{}, record.NewError(record.CodeNotFound, key, c.service+" has no such record")
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return Result{}, record.NewError(record.CodeUpstreamUnavailable, key,
			fmt.Sprintf("%s answered %d", c.service, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Result{}, record.Wrap(record.CodeUpstreamUnavailable, key, "read response from "+c.service, err)
	}
	result, err := c.codec.Decode(body)
	if err != nil {
		return Result{}, record.Wrap(record.CodeUpstreamUnavailable, key, "invalid response from "+c.service, err)
	}
	return result, nil
}
