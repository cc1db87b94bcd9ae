package config

import "github.com/stockclerk/stockclerk/internal/schema"

// SchemaID is the $id of the pipeline config schema.
const SchemaID = "https://stockclerk.dev/schemas/config.schema.json"

var configSchema = schema.NewValidator(schema.Document{
	ID:          SchemaID,
	Title:       "StockClerk Configuration",
	Description: "Schema for .stockclerkrc files",
	Type:        &Config{},
})

// GenerateSchema generates the JSON Schema for config files.
func GenerateSchema() ([]byte, error) {
	return configSchema.Generate()
}
