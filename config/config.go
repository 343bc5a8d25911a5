package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds every tunable of the scanner. Values come from Default,
// then the TOML file, then environment overrides for service secrets.
type Config struct {
	// Camera
	CameraDevice int `toml:"camera_device"`

	// Canonical card geometry. 500x700 keeps the physical 5:7 short:long
	// ratio of a printed card.
	CardWidth  int `toml:"card_width"`
	CardHeight int `toml:"card_height"`

	// Detection
	MinCardAreaFrac  float64 `toml:"min_card_area_frac"`
	FallbackCropFrac float64 `toml:"fallback_crop_frac"`

	// Fingerprint
	HashBits int `toml:"hash_bits"`

	// Matching / orchestration
	AutoConfirmThreshold float64 `toml:"auto_confirm_threshold"`
	SampleIntervalMS     int     `toml:"sample_interval_ms"`
	CooldownMS           int     `toml:"cooldown_ms"`
	TopK                 int     `toml:"top_k"`

	// Embeddings
	EmbeddingDim    int     `toml:"embedding_dim"`
	NormTolerance   float64 `toml:"norm_tolerance"`
	EmbeddingURL    string  `toml:"embedding_url"`
	EmbeddingAPIKey string  `toml:"-"`

	// Storage
	CatalogDB    string `toml:"catalog_db"`
	CollectionDB string `toml:"collection_db"`

	// Logging
	LogFile string `toml:"log_file"`
	Debug   bool   `toml:"debug"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		CameraDevice:         0,
		CardWidth:            500,
		CardHeight:           700,
		MinCardAreaFrac:      0.10,
		FallbackCropFrac:     0.70,
		HashBits:             8,
		AutoConfirmThreshold: 8,
		SampleIntervalMS:     800,
		CooldownMS:           3000,
		TopK:                 5,
		EmbeddingDim:         512,
		NormTolerance:        0.01,
		CatalogDB:            "catalog.db",
		CollectionDB:         "collection.db",
		LogFile:              "cardscan.log",
	}
}

// Load reads the TOML config at path over the defaults. A missing file
// is not an error: defaults apply. A .env file next to the config, if
// present, supplies the embedding service credentials.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}

		// Service secrets live in .env, never in the TOML file.
		_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("EMBEDDING_URL"); v != "" {
		cfg.EmbeddingURL = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.EmbeddingAPIKey = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.CardWidth <= 0 || c.CardHeight <= 0 {
		return fmt.Errorf("card dimensions must be positive, got %dx%d", c.CardWidth, c.CardHeight)
	}
	if c.HashBits < 2 {
		return fmt.Errorf("hash_bits must be at least 2, got %d", c.HashBits)
	}
	if c.MinCardAreaFrac <= 0 || c.MinCardAreaFrac >= 1 {
		return fmt.Errorf("min_card_area_frac must be in (0,1), got %g", c.MinCardAreaFrac)
	}
	if c.FallbackCropFrac <= 0 || c.FallbackCropFrac > 1 {
		return fmt.Errorf("fallback_crop_frac must be in (0,1], got %g", c.FallbackCropFrac)
	}
	if c.SampleIntervalMS <= 0 {
		return fmt.Errorf("sample_interval_ms must be positive, got %d", c.SampleIntervalMS)
	}
	if c.CooldownMS < 0 {
		return fmt.Errorf("cooldown_ms must not be negative, got %d", c.CooldownMS)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim must be positive, got %d", c.EmbeddingDim)
	}
	if c.NormTolerance <= 0 {
		return fmt.Errorf("norm_tolerance must be positive, got %g", c.NormTolerance)
	}
	return nil
}
