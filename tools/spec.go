package tools

import "encoding/json"

// ToolSpec enumerates the metadata registered for one tool at agent
// construction time. Specs are immutable once registered.
type ToolSpec struct {
	// Name is the globally unique tool identifier within a registry.
	Name Ident

	// Description provides human-readable context for the model to decide
	// when to call the tool.
	Description string

	// InputSchema contains the JSON Schema document describing the tool's
	// input object. Used both to advertise the tool to the model and to
	// validate a tool_use block's input before the tool runs.
	InputSchema json.RawMessage
}

// AnyJSONCodec decodes a tool_use input payload into a generic value. It is
// the default decoding strategy for tools that do not bind their input to a
// concrete Go type.
func AnyJSONCodec(data json.RawMessage) (any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
