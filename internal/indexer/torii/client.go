package torii

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/duelsync/internal/indexer"
	"github.com/roach88/duelsync/internal/metrics"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/query"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// Client is an indexer.Client for a remote server.
type Client struct {
	base    *url.URL
	http    *http.Client
	dialer  *websocket.Dialer
	buffer  int
	metrics *metrics.Collector
}

var _ indexer.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for GetPage.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithDialer replaces the WebSocket dialer used for Subscribe.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithStreamBuffer sets how many updates a stream holds before the read
// pump waits for the consumer.
func WithStreamBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithMetrics counts entities dropped while decoding on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a client for the server at baseURL (http or https).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("torii: parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("torii: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 30 * time.Second},
		dialer: websocket.DefaultDialer,
		buffer: 256,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = c.base.Path + path
	return u.String()
}

func (c *Client) wsEndpoint(path string) string {
	u := *c.base
	u.Path = c.base.Path + path
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

// GetPage implements indexer.Client.
func (c *Client) GetPage(ctx context.Context, q query.Query, cursor string) (indexer.Page, error) {
	rawQuery, err := encodeQuery(q)
	if err != nil {
		return indexer.Page{}, err
	}
	body, err := json.Marshal(pageRequest{Query: rawQuery, Cursor: cursor})
	if err != nil {
		return indexer.Page{}, fmt.Errorf("torii: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/entities"), bytes.NewReader(body))
	if err != nil {
		return indexer.Page{}, fmt.Errorf("torii: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return indexer.Page{}, fmt.Errorf("torii: get page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return indexer.Page{}, readRemoteError(resp)
	}

	var out pageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return indexer.Page{}, fmt.Errorf("torii: decode page: %w", err)
	}
	page := indexer.Page{Rows: make([]model.Entity, 0, len(out.Items))}
	for i, raw := range out.Items {
		e, ok := decodeEntity(raw, i, c.metrics)
		if !ok {
			page.Dropped++
			continue
		}
		page.Rows = append(page.Rows, e)
	}
	if out.NextCursor != nil {
		page.NextCursor = *out.NextCursor
	}
	return page, nil
}

func readRemoteError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil && er.Error != "" {
		return &RemoteError{Status: resp.StatusCode, Code: er.Code, Message: er.Error}
	}
	return &RemoteError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}

// Subscribe implements indexer.Client. ctx bounds the handshake only; the
// stream lives until Close or until the server ends it.
func (c *Client) Subscribe(ctx context.Context, q query.Query) (indexer.Stream, error) {
	rawQuery, err := encodeQuery(q)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.wsEndpoint("/subscribe"), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusSwitchingProtocols {
				return nil, readRemoteError(resp)
			}
		}
		return nil, fmt.Errorf("torii: dial: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeRequest{Query: rawQuery}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("torii: send subscription: %w", err)
	}
	conn.SetWriteDeadline(time.Time{})

	s := newStream(conn, c.buffer, c.metrics)
	go s.readPump()
	return s, nil
}
