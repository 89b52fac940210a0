package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/pantrykit/api"
)

// DefaultPollInterval is how often AwaitRequest checks a request.
const DefaultPollInterval = time.Second

type registerBody struct {
	UserName string `json:"user_name"`
}

type permissionsBody struct {
	auth
	RequestedPermissions api.UserPermissions `json:"requested_permissions"`
}

type registryBody struct {
	auth
	LLMRegistryEntry string `json:"llm_registry_entry"`
}

type llmIDBody struct {
	auth
	LLMID string `json:"llm_id"`
}

type flexBody struct {
	auth
	Filter     *api.LLMFilter     `json:"filter"`
	Preference *api.LLMPreference `json:"preference"`
}

type requestIDBody struct {
	auth
	RequestID string `json:"request_id"`
}

// RequestPermissions asks the server owner for perms.
func (c *Client) RequestPermissions(ctx context.Context, perms api.UserPermissions) (*api.UserRequestStatus, error) {
	var out api.UserRequestStatus
	body := permissionsBody{auth: c.auth(), RequestedPermissions: perms}
	if err := c.post(ctx, "request_permissions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestDownload asks the server owner to download entry. Be thorough with
// the entry's metadata; the owner sees it when deciding.
func (c *Client) RequestDownload(ctx context.Context, entry api.LLMRegistryEntry) (*api.UserRequestStatus, error) {
	reg, err := registryString(entry)
	if err != nil {
		return nil, err
	}

	var out api.UserRequestStatus
	if err := c.post(ctx, "request_download", registryBody{auth: c.auth(), LLMRegistryEntry: reg}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestLoad asks the server owner to load the LLM with the given UUID or
// registry id.
func (c *Client) RequestLoad(ctx context.Context, llmID string) (*api.UserRequestStatus, error) {
	var out api.UserRequestStatus
	if err := c.post(ctx, "request_load", llmIDBody{auth: c.auth(), LLMID: llmID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestLoadFlex asks for a load without naming the LLM. Either argument may
// be nil.
func (c *Client) RequestLoadFlex(ctx context.Context, filter *api.LLMFilter, pref *api.LLMPreference) (*api.UserRequestStatus, error) {
	var out api.UserRequestStatus
	body := flexBody{auth: c.auth(), Filter: filter, Preference: pref}
	if err := c.post(ctx, "request_load", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestUnload asks the server owner to shut an LLM down.
func (c *Client) RequestUnload(ctx context.Context, llmID string) (*api.UserRequestStatus, error) {
	var out api.UserRequestStatus
	if err := c.post(ctx, "request_unload", llmIDBody{auth: c.auth(), LLMID: llmID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRequestStatus returns the current state of a user request.
func (c *Client) GetRequestStatus(ctx context.Context, id uuid.UUID) (*api.UserRequestStatus, error) {
	var out api.UserRequestStatus
	if err := c.post(ctx, "get_request_status", requestIDBody{auth: c.auth(), RequestID: id.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AwaitRequest polls a user request every interval until it is complete or
// ctx is done. A non-positive interval means DefaultPollInterval.
func (c *Client) AwaitRequest(ctx context.Context, id uuid.UUID, interval time.Duration) (*api.UserRequestStatus, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.GetRequestStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if status.Complete {
			return status, nil
		}
		c.logger.Debug("waiting for request",
			slog.String("request_id", id.String()),
			slog.Bool("accepted", status.Accepted))

		select {
		case <-ctx.Done():
			return status, fmt.Errorf("await request %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}
