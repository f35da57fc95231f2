package dispatch

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/hicap-oss/claude-code-router/internal/transformer"
)

const defaultMaxBodyBytes = 32 << 20

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMaxBodyBytes bounds the decoded upstream body. Larger bodies fail the
// call instead of being cut short.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		c.maxBodyBytes = n
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client sends frozen outbound requests upstream. It never retries.
type Client struct {
	httpClient   *http.Client
	logger       *slog.Logger
	userAgent    string
	maxBodyBytes int64
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{},
		logger:       slog.Default(),
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch implements transformer.Dispatcher. Transport failures are returned
// as *transformer.UpstreamDispatchError; any HTTP status is a response.
func (c *Client) Dispatch(ctx context.Context, out *transformer.Outbound) (*transformer.Response, error) {
	payload, err := encodeBody(out.Body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, out.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, &transformer.UpstreamDispatchError{Method: http.MethodPost, URL: out.URL, Err: err}
	}

	req.Header = out.Headers.HTTPHeader()
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, br")
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transformer.UpstreamDispatchError{Method: req.Method, URL: out.URL, Err: err}
	}
	defer resp.Body.Close()

	bodyReader, err := decompressReader(resp)
	if err != nil {
		return nil, &transformer.UpstreamDispatchError{Method: req.Method, URL: out.URL, Err: fmt.Errorf("decompression error: %w", err)}
	}
	if closer, ok := bodyReader.(io.Closer); ok {
		defer closer.Close()
	}

	body, err := io.ReadAll(io.LimitReader(bodyReader, c.maxBodyBytes+1))
	if err != nil {
		return nil, &transformer.UpstreamDispatchError{Method: req.Method, URL: out.URL, Err: fmt.Errorf("read upstream response: %w", err)}
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, &transformer.UpstreamDispatchError{Method: req.Method, URL: out.URL, Err: fmt.Errorf("upstream response exceeds %d bytes", c.maxBodyBytes)}
	}

	header := resp.Header.Clone()
	header.Del("Content-Encoding")
	header.Del("Content-Length")

	c.logger.Debug("Upstream response",
		"url", out.URL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start),
	)

	return &transformer.Response{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       body,
	}, nil
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal outbound body: %w", err)
	}
	return data, nil
}

func decompressReader(resp *http.Response) (io.Reader, error) {
	var bodyReader io.Reader = resp.Body
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	switch encoding {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		bodyReader = gzipReader
	case "br":
		bodyReader = brotli.NewReader(resp.Body)
	}

	return bodyReader, nil
}
