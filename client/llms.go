package client

import (
	"context"

	"github.com/randalmurphal/pantrykit/api"
)

// GetLLMStatus returns one LLM by UUID or registry id.
func (c *Client) GetLLMStatus(ctx context.Context, llmID string) (*api.LLMStatus, error) {
	var out api.LLMStatus
	if err := c.post(ctx, "get_llm_status", llmIDBody{auth: c.auth(), LLMID: llmID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRunningLLMs returns the LLMs currently loaded.
func (c *Client) GetRunningLLMs(ctx context.Context) ([]api.LLMStatus, error) {
	var out []api.LLMStatus
	if err := c.post(ctx, "get_running_llms", c.auth(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAvailableLLMs returns every downloaded LLM.
func (c *Client) GetAvailableLLMs(ctx context.Context) ([]api.LLMStatus, error) {
	var out []api.LLMStatus
	if err := c.post(ctx, "get_available_llms", c.auth(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadLLM loads an LLM. Requires perm_load_llm.
func (c *Client) LoadLLM(ctx context.Context, llmID string) (*api.LLMRunningStatus, error) {
	var out api.LLMRunningStatus
	if err := c.post(ctx, "load_llm", llmIDBody{auth: c.auth(), LLMID: llmID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadLLMFlex loads the LLM the server picks for filter and pref. Either may
// be nil. Requires perm_load_llm.
func (c *Client) LoadLLMFlex(ctx context.Context, filter *api.LLMFilter, pref *api.LLMPreference) (*api.LLMRunningStatus, error) {
	var out api.LLMRunningStatus
	if err := c.post(ctx, "load_llm_flex", flexBody{auth: c.auth(), Filter: filter, Preference: pref}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UnloadLLM shuts an LLM down. Requires perm_unload_llm.
func (c *Client) UnloadLLM(ctx context.Context, llmID string) (*api.LLMStatus, error) {
	var out api.LLMStatus
	if err := c.post(ctx, "unload_llm", llmIDBody{auth: c.auth(), LLMID: llmID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadLLM starts downloading entry. The server's answer has no fixed
// shape and is returned as a Value. Requires perm_download_llm.
func (c *Client) DownloadLLM(ctx context.Context, entry api.LLMRegistryEntry) (api.Value, error) {
	reg, err := registryString(entry)
	if err != nil {
		return api.Null(), err
	}

	var out api.Value
	if err := c.post(ctx, "download_llm", registryBody{auth: c.auth(), LLMRegistryEntry: reg}, &out); err != nil {
		return api.Null(), err
	}
	return out, nil
}

// BareModel returns an LLM's model file for running outside pantry.
// Requires perm_bare_model.
func (c *Client) BareModel(ctx context.Context, llmID string) (*api.BareModel, error) {
	var out api.BareModel
	if err := c.post(ctx, "bare_model", llmIDBody{auth: c.auth(), LLMID: llmID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BareModelFlex is BareModel with the server picking the LLM.
func (c *Client) BareModelFlex(ctx context.Context, filter *api.LLMFilter, pref *api.LLMPreference) (*api.BareModel, error) {
	var out api.BareModel
	if err := c.post(ctx, "bare_model_flex", flexBody{auth: c.auth(), Filter: filter, Preference: pref}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
