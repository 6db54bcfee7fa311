package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const layoutSettingsKey = "layout.settings"

// Settings are the installation-wide options saved with the layout. Pointer
// fields are optional; nil leaves the environment default in place.
type Settings struct {
	BackgroundColor  string   `json:"background_color,omitempty"`
	BackgroundImage  string   `json:"background_image,omitempty"`
	Zoom             *float64 `json:"zoom,omitempty"`
	RotationDeg      *int     `json:"rotation,omitempty"`
	Mirror           *bool    `json:"mirror,omitempty"`
	DepthGate        *bool    `json:"depth_gate,omitempty"`
	DepthThresholdMM *float64 `json:"depth_threshold_mm,omitempty"`
	VisionSource     string   `json:"vision_source,omitempty"`
	BridgeURL        string   `json:"bridge_url,omitempty"`
	ShowSkeleton     *bool    `json:"show_skeleton,omitempty"`
}

// SettingsRepository reads and writes key-value settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value for key.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key, value string) error {
	return setSetting(r.db, key, value)
}

func setSetting(q execer, key, value string) error {
	_, err := q.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Layout returns the saved layout settings, or zero Settings if none exist.
func (r *SettingsRepository) Layout() (Settings, error) {
	raw, err := r.Get(layoutSettingsKey)
	if errors.Is(err, ErrNotFound) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Settings{}, fmt.Errorf("decode layout settings: %w", err)
	}
	return s, nil
}

// SaveLayout stores the layout settings.
func (r *SettingsRepository) SaveLayout(s Settings) error {
	return saveLayoutSettings(r.db, s)
}

func saveLayoutSettings(q execer, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return setSetting(q, layoutSettingsKey, string(data))
}
