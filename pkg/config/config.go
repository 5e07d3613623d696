package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Workspace string          `json:"workspace" env:"PERSONAKIT_WORKSPACE"`
	Profile   ProfileConfig   `json:"profile"`
	Embedding EmbeddingConfig `json:"embedding"`
	Extractor ExtractorConfig `json:"extractor"`
	Speaker   SpeakerConfig   `json:"speaker"`
	mu        sync.RWMutex
}

type ProfileConfig struct {
	Collection            string `json:"collection" env:"PERSONAKIT_PROFILE_COLLECTION"`
	FlushSchedule         string `json:"flush_schedule" env:"PERSONAKIT_PROFILE_FLUSH_SCHEDULE"`
	MaxCachedTurns        int    `json:"max_cached_turns" env:"PERSONAKIT_PROFILE_MAX_CACHED_TURNS"`
	ExtractTimeoutSeconds int    `json:"extract_timeout_seconds" env:"PERSONAKIT_PROFILE_EXTRACT_TIMEOUT_SECONDS"`
}

type EmbeddingConfig struct {
	Provider   string `json:"provider" env:"PERSONAKIT_EMBEDDING_PROVIDER"`
	Model      string `json:"model" env:"PERSONAKIT_EMBEDDING_MODEL"`
	Dimensions int    `json:"dimensions" env:"PERSONAKIT_EMBEDDING_DIMENSIONS"`
	APIKey     string `json:"api_key" env:"PERSONAKIT_EMBEDDING_API_KEY"`
}

type ExtractorConfig struct {
	Provider string `json:"provider" env:"PERSONAKIT_EXTRACTOR_PROVIDER"`
	Model    string `json:"model" env:"PERSONAKIT_EXTRACTOR_MODEL"`
	APIKey   string `json:"api_key" env:"PERSONAKIT_EXTRACTOR_API_KEY"`
}

type SpeakerConfig struct {
	MatchThreshold float64 `json:"match_threshold" env:"PERSONAKIT_SPEAKER_MATCH_THRESHOLD"`
	BlendBeta      float64 `json:"blend_beta" env:"PERSONAKIT_SPEAKER_BLEND_BETA"`
}

func DefaultConfig() *Config {
	return &Config{
		Workspace: "~/.personakit/workspace",
		Profile: ProfileConfig{
			Collection:            "persona_profile",
			FlushSchedule:         "* * * * *",
			MaxCachedTurns:        64,
			ExtractTimeoutSeconds: 30,
		},
		Embedding: EmbeddingConfig{
			Provider:   "chargram",
			Model:      "personakit-chargram-384-v1",
			Dimensions: 384,
		},
		Extractor: ExtractorConfig{
			Provider: "heuristic",
			Model:    "gpt-4o-mini",
		},
		Speaker: SpeakerConfig{
			MatchThreshold: 0.75,
			BlendBeta:      0.95,
		},
	}
}

// LoadConfig reads the JSON config at path, overlays PERSONAKIT_* env vars,
// and falls back to defaults when the file is absent.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Workspace)
}

// DBPath is the item database location inside the workspace.
func (c *Config) DBPath() string {
	return filepath.Join(c.WorkspacePath(), "state", "items.db")
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
