package api

import (
	"github.com/google/uuid"
)

// CapabilityType names a capability an LLM is rated on.
type CapabilityType string

// Capability ratings. 10 is roughly GPT-4 quality; 0 is not capable and -1
// is not evaluated.
const (
	CapabilityGeneral   CapabilityType = "general"
	CapabilityAssistant CapabilityType = "assistant"
	CapabilityWriting   CapabilityType = "writing"
	CapabilityCoding    CapabilityType = "coding"
)

// ConnectorType identifies how the server talks to a model.
type ConnectorType string

// Connector types understood by the server. Only llmrs runs local models.
const (
	ConnectorGenericAPI ConnectorType = "genericapi"
	ConnectorLLMrs      ConnectorType = "llmrs"
	ConnectorOpenAI     ConnectorType = "openai"
)

// LLMStatus describes a downloaded LLM.
type LLMStatus struct {
	ID           string `json:"id"`
	FamilyID     string `json:"family_id"`
	Organization string `json:"organization"`

	Name        string `json:"name"`
	Homepage    string `json:"homepage"`
	License     string `json:"license"`
	Description string `json:"description"`

	Capabilities map[CapabilityType]int `json:"capabilities"`
	Requirements string                 `json:"requirements"`
	Tags         []string               `json:"tags"`

	URL string `json:"url"`

	Local         bool   `json:"local"`
	ConnectorType string `json:"connector_type"`

	// Config is connector specific. The llmrs connector reads
	// model_architecture, vocabulary_path and vocabulary_repository.
	Config Parameters `json:"config"`

	Parameters            Parameters `json:"parameters"`
	UserParameters        []string   `json:"user_parameters"`
	SessionParameters     Parameters `json:"session_parameters"`
	UserSessionParameters []string   `json:"user_session_parameters"`

	UUID    string `json:"uuid"`
	Running bool   `json:"running"`
}

// LLMRunningStatus is returned for an active LLM.
type LLMRunningStatus struct {
	LLMInfo LLMStatus `json:"llm_info"`
	UUID    string    `json:"uuid"`
}

// LLMRegistryEntry carries everything the server needs to download a model.
// Most fields are informational and may be empty, but the owner sees them in
// the server UI. The llmrs connector needs Config["model_architecture"].
type LLMRegistryEntry struct {
	ID           string `json:"id"`
	FamilyID     string `json:"family_id"`
	Organization string `json:"organization"`

	Name        string `json:"name"`
	License     string `json:"license"`
	Description string `json:"description"`
	Homepage    string `json:"homepage"`

	Capabilities map[string]int `json:"capabilities"`
	Tags         []string       `json:"tags"`
	Requirements string         `json:"requirements"`

	// BackendUUID is overwritten by the server.
	BackendUUID string `json:"backend_uuid"`
	URL         string `json:"url"`

	Config        Parameters    `json:"config"`
	Local         bool          `json:"local"`
	ConnectorType ConnectorType `json:"connector_type"`

	Parameters            Parameters `json:"parameters"`
	UserParameters        []string   `json:"user_parameters"`
	SessionParameters     Parameters `json:"session_parameters"`
	UserSessionParameters []string   `json:"user_session_parameters"`
}

// CapabilityFilter requires a minimum rating for one capability.
type CapabilityFilter struct {
	Capability CapabilityType `json:"capability"`
	Value      int            `json:"value"`
}

// LLMFilter holds hard requirements for calls that let the server pick an
// LLM. Unsatisfiable filters make the server answer 404. An empty filter
// allows any LLM.
type LLMFilter struct {
	LLMUUID             *uuid.UUID         `json:"llm_uuid"`
	LLMID               *string            `json:"llm_id"`
	FamilyID            *string            `json:"family_id"`
	Local               *bool              `json:"local"`
	MinimumCapabilities []CapabilityFilter `json:"minimum_capabilities"`
}

// LLMPreference ranks LLMs that passed the filter; it never excludes one.
// The server applies uuid, llm_id, local, family_id and then capability_type,
// narrowing the candidates at each step, and falls back to the general
// capability for the final ordering.
type LLMPreference struct {
	LLMUUID        *uuid.UUID      `json:"llm_uuid"`
	LLMID          *string         `json:"llm_id"`
	Local          *bool           `json:"local"`
	FamilyID       *string         `json:"family_id"`
	CapabilityType *CapabilityType `json:"capability_type"`
}

// BareModel is a model file the caller can run with its own runner.
type BareModel struct {
	Model LLMStatus `json:"model"`
	Path  string    `json:"path"`
}

// CreateSessionResponse is returned by the create_session endpoints.
// SessionParameters holds the parameters actually used, user and system.
type CreateSessionResponse struct {
	SessionParameters Parameters `json:"session_parameters"`
	LLMStatus         LLMStatus  `json:"llm_status"`
	SessionID         string     `json:"session_id"`
}
