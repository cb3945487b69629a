package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"github.com/invopop/jsonschema"
)

//go:embed schema.json
var embeddedSchema string

// VerifyAgainstEmbeddedSchema validates the config against the embedded JSON schema
func VerifyAgainstEmbeddedSchema(cfg *Config) error {
	return verify(cfg, []byte(embeddedSchema))
}

func verify(cfg *Config, schemaData []byte) error {
	var schema jsonschema.Schema
	if err := json.Unmarshal(schemaData, &schema); err != nil {
		return fmt.Errorf("parse embedded schema: %w", err)
	}

	// convert config to JSON for validation
	configData, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var configMap map[string]any
	if err := json.Unmarshal(configData, &configMap); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	// sections required by the schema must be present
	if def, ok := schema.Definitions["Config"]; ok {
		if missing := missingKeys(def.Required, configMap); len(missing) > 0 {
			return fmt.Errorf("missing config sections %v", missing)
		}
	}

	// basic validation - check required fields match
	if err := validateRequiredFields(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func missingKeys(required []string, m map[string]any) []string {
	var res []string
	for _, k := range required {
		if _, ok := m[k]; !ok {
			res = append(res, k)
		}
	}
	sort.Strings(res)
	return res
}

// validateRequiredFields performs basic validation of required fields
func validateRequiredFields(cfg *Config) error {
	// check server config
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if cfg.Server.Timeout == 0 {
		return fmt.Errorf("server.timeout is required")
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	// youtube endpoint must be an absolute url
	if u, err := url.Parse(cfg.YouTube.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("youtube.base_url %q is not an absolute url", cfg.YouTube.BaseURL)
	}
	if cfg.YouTube.MaxResults < 1 || cfg.YouTube.MaxResults > maxYouTubeResults {
		return fmt.Errorf("youtube.max_results must be between 1 and %d", maxYouTubeResults)
	}
	return nil
}

// GenerateSchema generates a JSON schema for the Config struct
func GenerateSchema() (*jsonschema.Schema, error) {
	return jsonschema.Reflect(&Config{}), nil
}
