package api

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
)

// schemaTypes lists the wire types Schema can describe.
var schemaTypes = map[string]any{
	"bare_model":              BareModel{},
	"create_session_response": CreateSessionResponse{},
	"llm_event":               LLMEvent{},
	"llm_filter":              LLMFilter{},
	"llm_preference":          LLMPreference{},
	"llm_registry_entry":      LLMRegistryEntry{},
	"llm_running_status":      LLMRunningStatus{},
	"llm_status":              LLMStatus{},
	"user_info":               UserInfo{},
	"user_permissions":        UserPermissions{},
	"user_request_status":     UserRequestStatus{},
}

// SchemaNames returns the names accepted by Schema, sorted.
func SchemaNames() []string {
	names := make([]string, 0, len(schemaTypes))
	for name := range schemaTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the JSON Schema of the named wire type.
func Schema(name string) (*jsonschema.Schema, error) {
	v, ok := schemaTypes[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	r := &jsonschema.Reflector{
		Mapper: mapSchemaType,
	}
	return r.Reflect(v), nil
}

var uuidType = reflect.TypeOf(uuid.UUID{})

func mapSchemaType(t reflect.Type) *jsonschema.Schema {
	if t == uuidType {
		return &jsonschema.Schema{Type: "string", Format: "uuid"}
	}
	return nil
}

// JSONSchema allows any JSON value.
func (Value) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{}
}

// JSONSchema describes the tagged event union.
func (EventPayload) JSONSchema() *jsonschema.Schema {
	str := func() *jsonschema.Schema { return &jsonschema.Schema{Type: "string"} }
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			taggedSchema(string(EventPromptProgress), map[string]*jsonschema.Schema{"previous": str(), "next": str()}),
			taggedSchema(string(EventPromptCompletion), map[string]*jsonschema.Schema{"previous": str()}),
			taggedSchema(string(EventPromptError), map[string]*jsonschema.Schema{"message": str()}),
			taggedSchema(string(EventOther), nil),
		},
	}
}

// JSONSchema describes the tagged request union. Bodies are left open.
func (UserRequest) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			taggedSchema(string(RequestTypeDownload), map[string]*jsonschema.Schema{"llm_registry_entry": {Type: "object"}}),
			taggedSchema(string(RequestTypePermission), map[string]*jsonschema.Schema{"requested_permissions": {Type: "object"}}),
			taggedSchema(string(RequestTypeLoad), map[string]*jsonschema.Schema{"llm_id": {Type: "string"}}),
			taggedSchema(string(RequestTypeUnload), map[string]*jsonschema.Schema{"llm_id": {Type: "string"}}),
		},
	}
}

func taggedSchema(tag string, fields map[string]*jsonschema.Schema) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set("type", &jsonschema.Schema{Type: "string", Const: tag})
	required := []string{"type"}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		props.Set(name, fields[name])
		required = append(required, name)
	}

	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}
