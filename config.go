package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Config holds application configuration from ~/.deja/config.json
type Config struct {
	ProjectsPath string `json:"projects_path,omitempty"` // transcript store root
	NotesPath    string `json:"notes_path,omitempty"`    // append-only notes file
	CacheDir     string `json:"cache_dir,omitempty"`     // BadgerDB index cache
	DisableCache bool   `json:"disable_cache"`           // skip the persistent index cache
}

// LoadConfig reads configuration from ~/.deja/config.json, applies
// defaults for missing values, and overrides with environment variables.
func LoadConfig(logger *log.Logger) (*Config, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	cfg := &Config{}
	configPath := filepath.Join(homeDir, ".deja", "config.json")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config.json: %w", err)
		}
		logger.Printf("Loaded config from %s", configPath)
	case os.IsNotExist(err):
		logger.Printf("Config file not found at %s, using defaults and environment variables", configPath)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Apply defaults for any empty values
	if cfg.ProjectsPath == "" {
		cfg.ProjectsPath = filepath.Join(homeDir, ".claude", "projects")
	}
	if cfg.NotesPath == "" {
		cfg.NotesPath = filepath.Join(homeDir, ".deja", "notes.jsonl")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(homeDir, ".deja", "index")
	}

	// Environment variables take highest precedence. CLAUDE_PROJECTS_PATH
	// is honored for compatibility with the host conversation system.
	if v := os.Getenv("DEJA_PROJECTS_PATH"); v != "" {
		cfg.ProjectsPath = v
	} else if v := os.Getenv("CLAUDE_PROJECTS_PATH"); v != "" {
		cfg.ProjectsPath = v
	}
	if v := os.Getenv("DEJA_NOTES_PATH"); v != "" {
		cfg.NotesPath = v
	}
	if v := os.Getenv("DEJA_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("DEJA_DISABLE_CACHE"); v == "1" || v == "true" {
		cfg.DisableCache = true
	}

	return cfg, nil
}

// SaveConfig writes configuration to ~/.deja/config.json
func SaveConfig(cfg *Config, logger *log.Logger) error {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	dejaDir := filepath.Join(homeDir, ".deja")
	if err := os.MkdirAll(dejaDir, 0755); err != nil {
		return fmt.Errorf("failed to create .deja directory: %w", err)
	}

	configPath := filepath.Join(dejaDir, "config.json")
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config.json: %w", err)
	}

	logger.Printf("Saved config to %s", configPath)
	return nil
}
