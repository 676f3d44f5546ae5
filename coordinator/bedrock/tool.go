package bedrock

import "github.com/modelcontextprotocol/go-sdk/jsonschema"

type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}
