package plugin

import (
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/stockclerk/stockclerk/internal/schema"
)

// SchemaID is the $id of the plugin manifest schema.
const SchemaID = "https://stockclerk.dev/schemas/plugin.schema.json"

var manifestSchema = schema.NewValidator(schema.Document{
	ID:          SchemaID,
	Title:       "StockClerk Plugin Manifest",
	Description: "Schema for plugin.yaml manifest files",
	Type:        &Manifest{},
})

// GenerateSchema generates the JSON Schema for plugin.yaml.
func GenerateSchema() ([]byte, error) {
	return manifestSchema.Generate()
}

// ValidateSchema validates raw plugin.yaml data against the manifest schema.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return manifestError().Errorf("manifest data is empty")
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return manifestError().Wrapf(err, "invalid YAML")
	}
	if err := manifestSchema.Validate(doc); err != nil {
		return oops.In("manifest").Code(CodeManifestInvalid).Wrap(err)
	}
	return nil
}

// LoadManifest validates data against the schema and parses it.
func LoadManifest(data []byte) (*Manifest, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	return ParseManifest(data)
}
