// Package config loads service settings from the environment and an optional
// lingualens.yaml file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Lllllllleong/lingualens/internal/language"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Config holds every setting the workspace service reads at startup.
type Config struct {
	ProjectID           string `mapstructure:"project_id"`
	VertexRegion        string `mapstructure:"vertex_ai_region"`
	SuggesterModel      string `mapstructure:"suggester_model"`
	FirestoreCollection string `mapstructure:"firestore_collection"`
	WorkspaceID         string `mapstructure:"workspace_id"`
	ExportBucket        string `mapstructure:"export_bucket"`
	IngestBucket        string `mapstructure:"ingest_bucket"`
	TessdataPrefix      string `mapstructure:"tessdata_prefix"`
	DefaultLanguages    string `mapstructure:"default_ocr_languages"`
	StoreBackend        string `mapstructure:"store_backend"`
	Port                string `mapstructure:"port"`
	MaxHistory          int    `mapstructure:"max_history"`
}

var defaults = map[string]any{
	"project_id":            "",
	"vertex_ai_region":      "us-central1",
	"suggester_model":       "gemini-1.5-pro",
	"firestore_collection":  "lingualens",
	"workspace_id":          "default",
	"export_bucket":         "",
	"ingest_bucket":         "",
	"tessdata_prefix":       "",
	"default_ocr_languages": "eng",
	"store_backend":         BackendFirestore,
	"port":                  "8080",
	"max_history":           0,
}

// Load reads lingualens.yaml from the given directories (the working directory
// when none are given), then lets environment variables override it.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	v.SetConfigName("lingualens")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings required by the selected backend.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID must be set when STORE_BACKEND is %q", BackendFirestore)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendFirestore, BackendMemory, c.StoreBackend)
	}
	if c.MaxHistory < 0 {
		return fmt.Errorf("MAX_HISTORY must not be negative")
	}
	if len(c.Languages()) == 0 {
		return fmt.Errorf("DEFAULT_OCR_LANGUAGES must name at least one language")
	}
	if bad := language.Unsupported(c.Languages()); len(bad) > 0 {
		return fmt.Errorf("DEFAULT_OCR_LANGUAGES has unsupported languages %q", bad)
	}
	return nil
}

// Languages splits DefaultLanguages on commas, plus signs and whitespace.
func (c *Config) Languages() []string {
	return strings.FieldsFunc(c.DefaultLanguages, func(r rune) bool {
		return r == ',' || r == '+' || r == ' ' || r == '\t'
	})
}
