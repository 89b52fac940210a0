package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/randalmurphal/pantrykit/api"
	"github.com/randalmurphal/pantrykit/stream"
	"github.com/randalmurphal/pantrykit/transport"
)

// Client calls the pantry API as one registered user.
//
// The fields are fixed after construction; a Client is safe for concurrent
// use.
type Client struct {
	UserID uuid.UUID
	APIKey string

	cfg        transport.Config
	doer       transport.Doer
	owned      *transport.Dispatcher
	logger     *slog.Logger
	streamOpts []stream.Option
}

// Option configures a Client.
type Option func(*Client)

// WithConfig sets the transport configuration used to build the default
// dispatcher. Ignored when WithDoer is given.
func WithConfig(cfg transport.Config) Option {
	return func(c *Client) { c.cfg = cfg }
}

// WithDoer sets the transport. The caller keeps ownership of it.
func WithDoer(d transport.Doer) Option {
	return func(c *Client) { c.doer = d }
}

// WithLogger sets the logger for the client, its dispatcher and its streams.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithStreamOptions sets options applied to every prompt stream.
func WithStreamOptions(opts ...stream.Option) Option {
	return func(c *Client) { c.streamOpts = append(c.streamOpts, opts...) }
}

func newClient(opts []Option) *Client {
	c := &Client{
		cfg:    transport.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		c.owned = transport.NewDispatcherWithConfig(c.cfg, transport.WithLogger(c.logger))
		c.doer = c.owned
	}
	return c
}

// Login returns a Client for an existing user. It makes no calls; the API key
// is checked by the server on each request.
func Login(userID uuid.UUID, apiKey string, opts ...Option) *Client {
	c := newClient(opts)
	c.UserID = userID
	c.APIKey = apiKey
	return c
}

// Register creates a user named name, then requests perms for it. The
// permission request must be accepted on the server before the permissions
// apply; see AwaitRequest.
//
// If the user is created but the permission request fails, Register returns
// the logged-in client together with the error and a nil status. The user
// exists on the server at that point, so callers should keep the client's
// credentials and retry RequestPermissions. Any earlier failure returns a nil
// client.
func Register(ctx context.Context, name string, perms api.UserPermissions, opts ...Option) (*Client, *api.UserRequestStatus, error) {
	c := newClient(opts)

	var info api.UserInfo
	if err := c.post(ctx, "register_user", registerBody{UserName: name}, &info); err != nil {
		_ = c.Close()
		return nil, nil, fmt.Errorf("register user: %w", err)
	}

	id, err := uuid.Parse(info.ID)
	if err != nil {
		_ = c.Close()
		return nil, nil, &transport.DecodingError{Op: "register_user", Err: fmt.Errorf("user id: %w", err)}
	}
	c.UserID = id
	c.APIKey = info.APIKey

	c.logger.Debug("registered pantry user",
		slog.String("name", info.Name),
		slog.String("user_id", id.String()))

	status, err := c.RequestPermissions(ctx, perms)
	if err != nil {
		return c, nil, fmt.Errorf("request permissions: %w", err)
	}
	return c, status, nil
}

// Close releases idle connections of a dispatcher created by the client.
// A transport given through WithDoer is left alone.
func (c *Client) Close() error {
	if c.owned != nil {
		return c.owned.Close()
	}
	return nil
}

// Credentials returns the user's credentials for storing.
func (c *Client) Credentials(name string) Credentials {
	return Credentials{UserID: c.UserID, APIKey: c.APIKey, Name: name}
}

// auth is embedded in every authenticated request body.
type auth struct {
	UserID string `json:"user_id"`
	APIKey string `json:"api_key"`
}

func (c *Client) auth() auth {
	return auth{UserID: c.UserID.String(), APIKey: c.APIKey}
}

// post sends body to /op and decodes a 2xx answer into out.
func (c *Client) post(ctx context.Context, op string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}

	resp, err := c.doer.Dispatch(ctx, transport.NewRequest(http.MethodPost, "/"+op, data))
	if err != nil {
		return err
	}
	return transport.DecodeJSON(resp, op, out)
}

// openStream sends body to /op and returns the event stream.
func (c *Client) openStream(ctx context.Context, op string, body any) (*stream.EventStream, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}

	opts := append([]stream.Option{stream.WithLogger(c.logger)}, c.streamOpts...)
	return stream.Open(ctx, c.doer, "/"+op, data, opts...)
}

// registryString encodes an entry as the JSON string the download endpoints
// expect.
func registryString(entry api.LLMRegistryEntry) (string, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encode registry entry: %w", err)
	}
	return string(data), nil
}

func parseID(op, field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, &transport.DecodingError{Op: op, Err: fmt.Errorf("%s: %w", field, err)}
	}
	return id, nil
}
