package mcptool

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const inputSchemaURL = "docufind://schema/perform_rag_query/input.json"
const outputSchemaURL = "docufind://schema/perform_rag_query/output.json"

var inputSchemaDoc = []byte(`{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"query": {"type": "string", "minLength": 1},
		"match_count": {"type": "integer", "minimum": 1}
	},
	"required": ["query"]
}`)

var outputSchemaDoc = []byte(`{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"success": {"type": "boolean"},
		"query": {"type": "string"},
		"search_mode": {"type": "string", "enum": ["vector", "hybrid"]},
		"reranking_applied": {"type": "boolean"},
		"count": {"type": "integer", "minimum": 0},
		"error": {"type": "string"},
		"results": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"url": {"type": "string"},
					"content": {"type": "string"},
					"similarity": {"type": "number"}
				},
				"required": ["url", "content", "similarity"]
			}
		}
	},
	"required": ["success", "query"]
}`)

// ValidateContract compiles the perform_rag_query input/output JSON
// schemas and validates one representative instance of each against
// them, failing fast at startup if the tool's Go structs have drifted
// from the documented wire contract. Schemas are compiled once
// against a fixed in-repo document rather than a downloaded one.
func ValidateContract() error {
	if err := compileAndCheck(inputSchemaURL, inputSchemaDoc, PerformRAGQueryInput{
		Query:      "example query",
		MatchCount: defaultMatchCount,
	}); err != nil {
		return fmt.Errorf("mcptool: perform_rag_query input contract drifted: %w", err)
	}

	if err := compileAndCheck(outputSchemaURL, outputSchemaDoc, PerformRAGQueryOutput{
		Success:    true,
		Query:      "example query",
		SearchMode: "vector",
		Count:      0,
		Results:    []RAGResult{},
	}); err != nil {
		return fmt.Errorf("mcptool: perform_rag_query output contract drifted: %w", err)
	}

	return nil
}

func compileAndCheck(url string, schemaDoc []byte, sample any) error {
	compiler := jsonschema.NewCompiler()

	var schemaVal any
	if err := json.Unmarshal(schemaDoc, &schemaVal); err != nil {
		return fmt.Errorf("invalid schema document: %w", err)
	}
	if err := compiler.AddResource(url, schemaVal); err != nil {
		return fmt.Errorf("failed to register schema: %w", err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	encoded, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to encode sample instance: %w", err)
	}
	var instance any
	if err := json.Unmarshal(encoded, &instance); err != nil {
		return fmt.Errorf("failed to decode sample instance: %w", err)
	}

	return schema.Validate(instance)
}
