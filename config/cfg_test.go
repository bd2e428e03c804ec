package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rupor-github/ebk/encoding"
)

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Pipeline.OutputFormat != OutputFormatEPUB3 {
		t.Errorf("OutputFormat = %q, want epub3", cfg.Pipeline.OutputFormat)
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ebk.yaml")
	content := `version: 1
pipeline:
  output_format: txt
  validate: false
  repair: false
  encoding_form: NFC
  optimize: true
  image_quality: 70
  minify_css: false
  dedupe_resources: false
logging:
  console:
    level: debug
  file:
    level: none
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	if cfg.Pipeline.OutputFormat != OutputFormatPlainText {
		t.Errorf("OutputFormat = %q, want txt", cfg.Pipeline.OutputFormat)
	}
	if cfg.Pipeline.ImageQuality != 70 {
		t.Errorf("ImageQuality = %d, want 70", cfg.Pipeline.ImageQuality)
	}
	if cfg.Logging.Console.Level != "debug" {
		t.Errorf("Console.Level = %q, want debug", cfg.Logging.Console.Level)
	}
}

func TestLoadConfiguration_RejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ebk.yaml")
	content := "version: 1\npipeline:\n  bogus_field: true\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfiguration(path); err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestLoadConfiguration_RejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ebk.yaml")
	content := "version: 1\npipeline:\n  output_format: pdf\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfiguration(path); err == nil {
		t.Fatal("expected a validation error for an unsupported output format")
	}
}

func TestDump_RoundTrips(t *testing.T) {
	cfg := Default()
	data, err := Dump(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty yaml output")
	}
}

func TestPipelineConfig_NormalizeForm(t *testing.T) {
	p := PipelineConfig{EncodingForm: "NFKD"}
	if p.NormalizeForm() != encoding.FormNFKD {
		t.Errorf("NormalizeForm() = %v, want FormNFKD", p.NormalizeForm())
	}
	p = PipelineConfig{}
	if p.NormalizeForm() != encoding.FormNFC {
		t.Errorf("NormalizeForm() default = %v, want FormNFC", p.NormalizeForm())
	}
}
