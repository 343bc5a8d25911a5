package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SampleIntervalMS != 800 || cfg.CooldownMS != 3000 || cfg.AutoConfirmThreshold != 8 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadOverridesFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riftsnap.toml")
	content := `
camera_device = 2
hash_bits = 16
top_k = 3
catalog_db = "/var/lib/riftsnap/catalog.db"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CameraDevice != 2 || cfg.HashBits != 16 || cfg.TopK != 3 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.CatalogDB != "/var/lib/riftsnap/catalog.db" {
		t.Fatalf("catalog_db = %q", cfg.CatalogDB)
	}
	// Untouched keys keep their defaults.
	if cfg.CardWidth != 500 || cfg.CardHeight != 700 {
		t.Fatalf("card geometry changed unexpectedly: %dx%d", cfg.CardWidth, cfg.CardHeight)
	}
}

func TestEnvironmentSuppliesServiceCredentials(t *testing.T) {
	t.Setenv("EMBEDDING_URL", "http://localhost:9090")
	t.Setenv("EMBEDDING_API_KEY", "sk-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EmbeddingURL != "http://localhost:9090" {
		t.Fatalf("embedding URL = %q", cfg.EmbeddingURL)
	}
	if cfg.EmbeddingAPIKey != "sk-test" {
		t.Fatalf("api key = %q", cfg.EmbeddingAPIKey)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riftsnap.toml")
	if err := os.WriteFile(path, []byte("hash_bits = 1\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("hash_bits below 2 should fail validation")
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero card width", func(c *Config) { c.CardWidth = 0 }},
		{"area fraction too large", func(c *Config) { c.MinCardAreaFrac = 1.5 }},
		{"zero sample interval", func(c *Config) { c.SampleIntervalMS = 0 }},
		{"negative cooldown", func(c *Config) { c.CooldownMS = -1 }},
		{"zero top k", func(c *Config) { c.TopK = 0 }},
		{"zero embedding dim", func(c *Config) { c.EmbeddingDim = 0 }},
		{"zero norm tolerance", func(c *Config) { c.NormTolerance = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
