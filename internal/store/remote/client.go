// Package remote is a core.DocumentStore backed by a relay server over HTTP
// and websocket change feeds.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const requestTimeout = 10 * time.Second

type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
}

var _ core.DocumentStore = (*Client)(nil)

// New builds a client for the relay at baseURL, e.g. http://localhost:8080.
// The cookie jar keeps the client token the relay rate limits by.
func New(baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("store url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("store url: unsupported scheme %q", u.Scheme)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		base: u,
		http: &http.Client{Jar: jar, Timeout: requestTimeout},
		dialer: &websocket.Dialer{
			Jar:              jar,
			HandshakeTimeout: requestTimeout,
		},
	}, nil
}

func (c *Client) endpoint(kind, path string) string {
	return c.base.JoinPath("api/store", kind, strings.Trim(path, "/")).String()
}

func (c *Client) watchEndpoint(kind, path string) string {
	u := c.base.JoinPath("api/store/watch", kind, strings.Trim(path, "/"))
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

// codeErr maps relay error codes back to store errors.
func codeErr(status int, code string) error {
	switch code {
	case "not_found":
		return core.ErrNotFound
	case "already_exists":
		return core.ErrAlreadyExists
	case "conflict":
		return core.ErrConflict
	case "invalid", "too_large":
		return fmt.Errorf("%w: %s", core.ErrInvalid, code)
	default:
		return fmt.Errorf("%w: status %d %s", core.ErrUnavailable, status, code)
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrInvalid, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return codeErr(resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", core.ErrUnavailable, err)
	}
	return nil
}

func (c *Client) Create(ctx context.Context, path string, data json.RawMessage) error {
	return c.do(ctx, http.MethodPut, c.endpoint("doc", path), data, nil)
}

func (c *Client) Get(ctx context.Context, path string) (core.Document, error) {
	var doc core.Document
	err := c.do(ctx, http.MethodGet, c.endpoint("doc", path), nil, &doc)
	return doc, err
}

func (c *Client) Update(ctx context.Context, path string, fields map[string]json.RawMessage, ifAbsent string) error {
	endpoint := c.endpoint("doc", path)
	if ifAbsent != "" {
		endpoint += "?" + url.Values{"if_absent": {ifAbsent}}.Encode()
	}
	return c.do(ctx, http.MethodPatch, endpoint, fields, nil)
}

func (c *Client) Add(ctx context.Context, collection string, data json.RawMessage) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.endpoint("collection", collection), data, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) WatchDocument(ctx context.Context, path string) (<-chan core.Snapshot, error) {
	return watch[core.Snapshot](ctx, c, "doc", path)
}

func (c *Client) WatchCollection(ctx context.Context, collection string) (<-chan core.Change, error) {
	return watch[core.Change](ctx, c, "collection", collection)
}

// watch dials a feed and decodes one item per text frame. The channel closes
// when ctx is done or the feed breaks.
func watch[T any](ctx context.Context, c *Client, kind, path string) (<-chan T, error) {
	endpoint := c.watchEndpoint(kind, path)
	ws, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: watch %s: status %d", core.ErrUnavailable, path, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: watch %s: %v", core.ErrUnavailable, path, err)
	}
	logger := log.With().Str("module", "store.remote").Str("kind", kind).Str("path", path).Logger()

	out := make(chan T)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = ws.Close()
	}()
	go func() {
		defer close(out)
		defer close(stop)
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
					logger.Warn().Err(err).Msg("feed broken")
				}
				return
			}
			var item T
			if err := json.Unmarshal(data, &item); err != nil {
				logger.Warn().Err(err).Msg("undecodable feed frame")
				continue
			}
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
