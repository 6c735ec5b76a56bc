// Package client talks to the HTTP API of a running satellite.
package client

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	apiPrefix  string
	apiKey     string
	httpClient *http.Client
}

type Option func(c *Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithAPIPrefix sets the path the satellite endpoints are mounted on. Defaults to "api/satellite".
func WithAPIPrefix(prefix string) Option {
	return func(c *Client) { c.apiPrefix = strings.Trim(prefix, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiPrefix:  "api/satellite",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type urlBuilder struct {
	base   string
	path   string
	params map[string]string
	query  url.Values
}

func (c *Client) url() *urlBuilder {
	return &urlBuilder{
		base:   c.baseURL + "/" + c.apiPrefix,
		params: map[string]string{},
		query:  url.Values{},
	}
}

func (b *urlBuilder) setPath(path string) *urlBuilder {
	b.path = path
	return b
}

func (b *urlBuilder) setPathParam(name, value string) *urlBuilder {
	b.params[name] = value
	return b
}

func (b *urlBuilder) build() string {
	path := b.path
	for k, v := range b.params {
		path = strings.ReplaceAll(path, "{"+k+"}", url.PathEscape(v))
	}
	u := b.base + path
	if len(b.query) > 0 {
		u += "?" + b.query.Encode()
	}
	return u
}
