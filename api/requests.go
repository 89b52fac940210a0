package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserRequestType identifies the kind of request a user submitted for the
// server owner to approve.
type UserRequestType string

const (
	RequestTypeDownload   UserRequestType = "DownloadRequest"
	RequestTypePermission UserRequestType = "PermissionRequest"
	RequestTypeLoad       UserRequestType = "LoadRequest"
	RequestTypeUnload     UserRequestType = "UnloadRequest"
)

// DownloadRequest asks the owner to download a model.
type DownloadRequest struct {
	LLMRegistryEntry LLMRegistryEntry `json:"llm_registry_entry"`
}

// PermissionRequest asks the owner to grant permissions.
type PermissionRequest struct {
	RequestedPermissions UserPermissions `json:"requested_permissions"`
}

// LoadRequest asks the owner to load a downloaded model.
type LoadRequest struct {
	LLMID string `json:"llm_id"`
}

// UnloadRequest asks the owner to unload a running model.
type UnloadRequest struct {
	LLMID string `json:"llm_id"`
}

// UserRequest is a request body tagged by "type" on the wire.
// Check Type to determine which field is populated.
type UserRequest struct {
	Type UserRequestType

	Download   *DownloadRequest
	Permission *PermissionRequest
	Load       *LoadRequest
	Unload     *UnloadRequest
}

// MarshalJSON implements json.Marshaler.
func (r UserRequest) MarshalJSON() ([]byte, error) {
	var body any
	switch r.Type {
	case RequestTypeDownload:
		if r.Download != nil {
			body = r.Download
		}
	case RequestTypePermission:
		if r.Permission != nil {
			body = r.Permission
		}
	case RequestTypeLoad:
		if r.Load != nil {
			body = r.Load
		}
	case RequestTypeUnload:
		if r.Unload != nil {
			body = r.Unload
		}
	default:
		return nil, fmt.Errorf("unknown user request type %q", r.Type)
	}
	if body == nil {
		return nil, fmt.Errorf("user request %s has no body", r.Type)
	}
	return marshalTagged(string(r.Type), body)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *UserRequest) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type UserRequestType `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}

	out := UserRequest{Type: tag.Type}
	var err error
	switch tag.Type {
	case RequestTypeDownload:
		out.Download = &DownloadRequest{}
		err = json.Unmarshal(data, out.Download)
	case RequestTypePermission:
		out.Permission = &PermissionRequest{}
		err = json.Unmarshal(data, out.Permission)
	case RequestTypeLoad:
		out.Load = &LoadRequest{}
		err = json.Unmarshal(data, out.Load)
	case RequestTypeUnload:
		out.Unload = &UnloadRequest{}
		err = json.Unmarshal(data, out.Unload)
	default:
		return fmt.Errorf("unknown user request type %q", tag.Type)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", tag.Type, err)
	}
	*r = out
	return nil
}

// UserRequestStatus tracks a request through owner review.
type UserRequestStatus struct {
	ID        uuid.UUID   `json:"id"`
	UserID    uuid.UUID   `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
	Request   UserRequest `json:"request"`
	Accepted  bool        `json:"accepted"`
	Complete  bool        `json:"complete"`
}

// marshalTagged encodes body as an object and adds "type": tag to it.
func marshalTagged(tag string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	typ, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}
	fields["type"] = typ
	return json.Marshal(fields)
}
