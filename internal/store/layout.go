package store

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ayusman/gyre/internal/gesture"
)

// LayoutVersion is the layout document version written by Export.
const LayoutVersion = 1

// Layout is the portable layout document.
type Layout struct {
	Version  int                  `json:"version"`
	Circles  []gesture.ZoneConfig `json:"circles"`
	Settings Settings             `json:"settings"`
}

// DecodeLayout reads and validates a layout document.
func DecodeLayout(r io.Reader) (*Layout, error) {
	var l Layout
	if err := json.NewDecoder(r).Decode(&l); err != nil {
		return nil, fmt.Errorf("%w: decode layout: %v", ErrInvalid, err)
	}
	if l.Version == 0 {
		l.Version = LayoutVersion
	}
	if l.Version > LayoutVersion {
		return nil, fmt.Errorf("%w: layout version %d is newer than %d", ErrInvalid, l.Version, LayoutVersion)
	}

	seen := make(map[string]bool, len(l.Circles))
	for i := range l.Circles {
		if err := Normalize(&l.Circles[i]); err != nil {
			return nil, err
		}
		if seen[l.Circles[i].ID] {
			return nil, fmt.Errorf("%w: duplicate zone id %s", ErrInvalid, l.Circles[i].ID)
		}
		seen[l.Circles[i].ID] = true
	}
	return &l, nil
}

// Export returns the current zones and settings as a layout document.
func (s *Store) Export() (*Layout, error) {
	zones, err := s.Zones().List()
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	settings, err := s.Settings().Layout()
	if err != nil {
		return nil, err
	}
	return &Layout{Version: LayoutVersion, Circles: zones, Settings: settings}, nil
}

// Import replaces the zone set and the layout settings in one transaction.
// Zones whose IDs survive the import keep their activation history.
func (s *Store) Import(l *Layout) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	existing, err := listZones(tx)
	if err != nil {
		return fmt.Errorf("list zones: %w", err)
	}

	keep := make(map[string]bool, len(l.Circles))
	zones := make([]gesture.ZoneConfig, len(l.Circles))
	for i := range l.Circles {
		zones[i] = l.Circles[i]
		if err := Normalize(&zones[i]); err != nil {
			return err
		}
		keep[zones[i].ID] = true
	}

	for _, z := range existing {
		if keep[z.ID] {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM zones WHERE id = ?`, z.ID); err != nil {
			return fmt.Errorf("delete zone %s: %w", z.ID, err)
		}
	}

	now := time.Now()
	for i, z := range zones {
		_, err := tx.Exec(
			`INSERT INTO zones (id, position, center_x, center_y, radius, stroke, color, image, audio, volume, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				position = excluded.position, center_x = excluded.center_x, center_y = excluded.center_y,
				radius = excluded.radius, stroke = excluded.stroke, color = excluded.color,
				image = excluded.image, audio = excluded.audio, volume = excluded.volume,
				updated_at = excluded.updated_at`,
			z.ID, i, z.Center.X, z.Center.Y, z.Radius, z.Stroke, z.Color, z.ImageRef, z.AudioRef, z.Volume, now, now,
		)
		if err != nil {
			return fmt.Errorf("upsert zone %s: %w", z.ID, err)
		}
	}

	if err := saveLayoutSettings(tx, l.Settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	return tx.Commit()
}
