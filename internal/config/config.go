// Package config loads spellfix settings from layered TOML files. Built-in
// defaults are overlaid by the user config file and then by a workspace
// config file, so later layers win field by field.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Settings is the full spellfix configuration.
type Settings struct {
	Spellcheck SpellcheckSettings `toml:"spellcheck"`
	Rules      RulesSettings      `toml:"rules"`
	Filter     FilterSettings     `toml:"filter"`
	LLM        LLMSettings        `toml:"llm"`
	Logging    LoggingSettings    `toml:"logging"`
}

// SpellcheckSettings control which diagnostic source is treated as the
// spell checker.
type SpellcheckSettings struct {
	// Source is the diagnostic source name corrections respond to.
	Source string `toml:"source"`
}

// RulesSettings control where accepted corrections are persisted.
type RulesSettings struct {
	// File is the settings document path, relative to the workspace root
	// unless absolute.
	File string `toml:"file"`
	// Key is the name of the settings entry holding the rule list. Dots
	// are part of the key name, not a nesting path.
	Key string `toml:"key"`
}

// FilterSettings configure the optional Lua suggestion filter.
type FilterSettings struct {
	// Script is the path of a Lua file defining filter(word, suggestions).
	// Empty disables filtering.
	Script string `toml:"script"`
}

// LLMSettings configure the language-model fallback used when the spell
// checker offers no replacement.
type LLMSettings struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Model   string `toml:"model"`
	// TimeoutSeconds bounds a single completion request.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// LoggingSettings configure the diagnostic logger.
type LoggingSettings struct {
	Level string `toml:"level"`
	// File receives log output; empty means stderr.
	File string `toml:"file"`
}

// Default returns the built-in settings layer.
func Default() Settings {
	return Settings{
		Spellcheck: SpellcheckSettings{
			Source: "cSpell",
		},
		Rules: RulesSettings{
			File: filepath.Join(".spellfix", "settings.json"),
			Key:  "autocorrect.rules",
		},
		LLM: LLMSettings{
			Enabled:        false,
			URL:            "http://localhost:11434",
			Model:          "llama3",
			TimeoutSeconds: 10,
		},
		Logging: LoggingSettings{
			Level: "info",
		},
	}
}

// UserConfigPath returns the per-user config file location, or "" when the
// user config directory cannot be determined.
func UserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "spellfix", "settings.toml")
}

// WorkspaceConfigPath returns the workspace config file location for the
// given workspace root.
func WorkspaceConfigPath(root string) string {
	return filepath.Join(root, ".spellfix", "settings.toml")
}

// Load builds the effective settings from defaults plus the given config
// file paths, applied in order. Missing files are skipped; unreadable or
// malformed files are errors.
func Load(paths ...string) (Settings, error) {
	settings := Default()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := applyFile(&settings, path); err != nil {
			return Settings{}, err
		}
	}

	return settings, nil
}

// applyFile overlays one TOML file onto settings. Fields absent from the
// file keep their current values.
func applyFile(settings *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, settings); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return nil
}

// ResolveRulesFile returns the absolute path of the rules settings document
// for the given workspace root.
func (s Settings) ResolveRulesFile(workspaceRoot string) string {
	if filepath.IsAbs(s.Rules.File) {
		return s.Rules.File
	}
	return filepath.Join(workspaceRoot, s.Rules.File)
}
