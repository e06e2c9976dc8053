// ABOUTME: Persists small user preferences across sessions
// ABOUTME: Stores volume and mute state as JSON under the user config dir
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Prefs are the settings that survive a restart.
type Prefs struct {
	Volume int  `json:"volume"`
	Muted  bool `json:"muted"`
}

// Default returns the preferences used when nothing is stored yet.
func Default() Prefs {
	return Prefs{Volume: 100}
}

// DefaultPath returns the per-user preferences file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "guessong", "prefs.json"), nil
}

// Load reads preferences from path. A missing or unreadable file yields the
// defaults; preferences are never worth failing startup over.
func Load(path string) Prefs {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	p := Default()
	if err := json.Unmarshal(data, &p); err != nil {
		return Default()
	}
	if p.Volume < 0 {
		p.Volume = 0
	}
	if p.Volume > 100 {
		p.Volume = 100
	}
	return p
}

// Save writes preferences to path, creating the directory if needed.
func Save(path string, p Prefs) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}
