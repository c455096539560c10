package llm

import (
	"fmt"
	"strings"
)

// Schema describes the JSON object a prompt must return.
type Schema struct {
	Name   string
	Fields []SchemaField
}

// SchemaField defines a single field in the expected output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint, e.g. `"string"` or `["string"]`
	Description string
	Required    bool
}

// BuildPrompt appends the output structure and JSON-only instructions to a task prompt.
func BuildPrompt(task string, schema Schema) string {
	var sb strings.Builder

	sb.WriteString(strings.TrimSpace(task))
	sb.WriteString("\n\nReturn ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = `"string"`
		}
		sb.WriteString(fmt.Sprintf("  %q: %s", field.Name, typeHint))
		if field.Required {
			sb.WriteString(" (required)")
		}
		if field.Description != "" {
			sb.WriteString(" // " + field.Description)
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\nReturn ONLY the JSON object, no markdown, no explanation, no code blocks.\n")
	return sb.String()
}

// OutlineSchema is the response shape for the outline step.
func OutlineSchema() Schema {
	return Schema{
		Name: "Outline",
		Fields: []SchemaField{
			{Name: "beats", Type: `["string"]`, Description: "story beats in telling order", Required: true},
		},
	}
}

// ScriptSchema is the response shape for the script step.
func ScriptSchema() Schema {
	return Schema{
		Name: "Script",
		Fields: []SchemaField{
			{Name: "full_text", Type: `"string"`, Description: "the complete narration", Required: true},
			{
				Name:        "chunks",
				Type:        `[{"text": "string", "image_query": "string", "source_index": 0}]`,
				Description: "narration split into one to three sentences per chunk, in order",
				Required:    true,
			},
		},
	}
}

// MetadataSchema is the response shape for the metadata step.
func MetadataSchema() Schema {
	return Schema{
		Name: "Metadata",
		Fields: []SchemaField{
			{Name: "title", Type: `"string"`, Required: true},
			{Name: "description", Type: `"string"`, Required: true},
			{Name: "tags", Type: `["string"]`},
		},
	}
}
