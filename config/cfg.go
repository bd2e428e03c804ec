package config

import (
	"bytes"
	"fmt"
	"os"

	validator "github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/ebk/encoding"
)

type (
	// PipelineConfig carries the defaults a convert run falls back to when
	// a command-line flag isn't given; it mirrors pipeline.ConvertOptions'
	// gates one-for-one so a config file can pre-select a house style.
	PipelineConfig struct {
		OutputFormat OutputFormat `yaml:"output_format" validate:"required,oneof=epub2 epub3 txt"`

		Validate              bool `yaml:"validate"`
		Repair                bool `yaml:"repair"`
		RevalidateAfterRepair bool `yaml:"revalidate_after_repair"`
		Accessibility         bool `yaml:"accessibility_checks"`

		EncodingForm string `yaml:"encoding_form" validate:"omitempty,oneof=NFC NFD NFKC NFKD"`

		Optimize    bool `yaml:"optimize"`
		ImageQuality int `yaml:"image_quality" validate:"min=40,max=100"`
		MinifyCSS   bool `yaml:"minify_css"`
		Dedupe      bool `yaml:"dedupe_resources"`
	}

	Config struct {
		Version  int            `yaml:"version" validate:"eq=1"`
		Pipeline PipelineConfig `yaml:"pipeline"`
		Logging  LoggingConfig  `yaml:"logging"`
	}
)

// NormalizeForm maps the config's string encoding form onto encoding.Form,
// falling back to NFC the way an unset yaml field would.
func (p PipelineConfig) NormalizeForm() encoding.Form {
	switch p.EncodingForm {
	case "NFD":
		return encoding.FormNFD
	case "NFKC":
		return encoding.FormNFKC
	case "NFKD":
		return encoding.FormNFKD
	default:
		return encoding.FormNFC
	}
}

// Default returns the configuration a bare `ebk convert` runs with when no
// config file is given.
func Default() *Config {
	return &Config{
		Version: 1,
		Pipeline: PipelineConfig{
			OutputFormat:          OutputFormatEPUB3,
			Validate:              true,
			Repair:                true,
			RevalidateAfterRepair: true,
			EncodingForm:          "NFC",
			Optimize:              false,
			ImageQuality:          85,
			MinifyCSS:             true,
			Dedupe:                true,
		},
		Logging: LoggingConfig{
			Console: LoggerConfig{Level: "normal"},
		},
	}
}

func unmarshalConfig(data []byte, cfg *Config) (*Config, error) {
	// Reject unknown fields so a typo in the config file surfaces as an
	// error instead of silently keeping the default.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at path,
// superimposing its values on top of Default(), and validates the result.
// An empty path returns Default() unvalidated, matching the teacher's
// no-file-given behavior.
func LoadConfiguration(path string) (*Config, error) {
	cfg := Default()
	if len(path) == 0 {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Dump marshals cfg back to yaml, for `ebk dumpconfig`.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
