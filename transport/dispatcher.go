package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/randalmurphal/pantrykit/internal/metrics"
)

// Channel names the route a response came back on.
type Channel string

const (
	ChannelLocal   Channel = "local"
	ChannelNetwork Channel = "network"
)

// localHost is the Host header sent over the socket. The server ignores it.
const localHost = "localhost"

// Doer sends one request to the server and returns its raw response.
type Doer interface {
	Dispatch(ctx context.Context, req *Request) (*Response, error)
}

// Request is a method, path and body, immutable once built so the same bytes
// can go to either channel.
type Request struct {
	Method string
	Path   string
	body   []byte
}

// NewRequest builds a Request. The body is copied.
func NewRequest(method, path string, body []byte) *Request {
	return &Request{
		Method: method,
		Path:   path,
		body:   bytes.Clone(body),
	}
}

// Body returns a copy of the request body.
func (r *Request) Body() []byte {
	return bytes.Clone(r.body)
}

// Response is the raw server answer. Body must be consumed exactly once, by
// DecodeJSON or by a stream, and closed.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Channel    Channel
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Dispatcher sends requests over the unix socket and falls back to HTTP over
// TCP when the socket attempt fails. Any HTTP status counts as success; only
// a failure to get a response triggers the fallback.
type Dispatcher struct {
	cfg     Config
	logger  *slog.Logger
	local   *http.Client
	network *http.Client
}

var _ Doer = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher from DefaultConfig and the given options.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(d)
	}
	return d.init()
}

// NewDispatcherWithConfig creates a Dispatcher from a Config. Options are
// applied after the config.
func NewDispatcherWithConfig(cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{cfg: cfg.WithDefaults()}
	for _, opt := range opts {
		opt(d)
	}
	return d.init()
}

func (d *Dispatcher) init() *Dispatcher {
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.cfg.LocalDialTimeout == 0 {
		d.cfg.LocalDialTimeout = DefaultLocalDialTimeout
	}

	socketPath := d.cfg.SocketPath
	dialer := &net.Dialer{Timeout: d.cfg.LocalDialTimeout}
	d.local = &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, "unix", socketPath)
			},
			DisableCompression: true,
		},
	}
	if d.network == nil {
		d.network = &http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		}
	}
	return d
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Dispatch sends req over the socket and, if that fails, once over the
// network. The first response obtained is returned unchanged. When both
// attempts fail the error is a *TransportError holding both causes.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	resp, localErr := d.attempt(ctx, ChannelLocal, req)
	if localErr == nil {
		return resp, nil
	}

	d.logger.Debug("local dispatch failed, trying network",
		slog.String("path", req.Path),
		slog.Any("error", localErr))
	metrics.FallbackTotal.Inc()

	resp, networkErr := d.attempt(ctx, ChannelNetwork, req)
	if networkErr == nil {
		return resp, nil
	}

	return nil, &TransportError{
		Path:    req.Path,
		Local:   localErr,
		Network: networkErr,
	}
}

func (d *Dispatcher) attempt(ctx context.Context, ch Channel, req *Request) (*Response, error) {
	var (
		client *http.Client
		target string
	)
	switch ch {
	case ChannelLocal:
		if d.cfg.SocketPath == "" {
			return nil, ErrLocalDisabled
		}
		client = d.local
		target = "http://" + localHost + req.Path
	case ChannelNetwork:
		if d.cfg.BaseURL == "" {
			return nil, ErrNetworkDisabled
		}
		client = d.network
		target = strings.TrimRight(d.cfg.BaseURL, "/") + req.Path
	default:
		return nil, fmt.Errorf("unknown channel %q", ch)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bytes.NewReader(req.body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := client.Do(httpReq)
	if err != nil {
		metrics.DispatchTotal.WithLabelValues(string(ch), metrics.OutcomeError).Inc()
		return nil, err
	}
	metrics.DispatchTotal.WithLabelValues(string(ch), metrics.OutcomeOK).Inc()
	metrics.DispatchDuration.WithLabelValues(string(ch)).Observe(time.Since(start).Seconds())

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       httpResp.Body,
		Channel:    ch,
	}, nil
}

// Close releases idle connections on both channels.
func (d *Dispatcher) Close() error {
	d.local.CloseIdleConnections()
	d.network.CloseIdleConnections()
	return nil
}
