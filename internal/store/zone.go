package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/gyre/internal/gesture"
)

// Zone defaults applied on create and import.
const (
	DefaultStroke = 3
	DefaultColor  = "#00d1ff"
)

// execer is the subset of *sql.DB and *sql.Tx the repositories need.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// ZoneRepository provides CRUD operations for zones.
type ZoneRepository struct {
	db *sql.DB
}

// Zones returns the zone repository for this store.
func (s *Store) Zones() *ZoneRepository {
	return &ZoneRepository{db: s.db}
}

// Normalize fills defaults and validates z. A missing ID gets a new UUID.
func Normalize(z *gesture.ZoneConfig) error {
	if z.ID == "" {
		z.ID = uuid.NewString()
	}
	if z.Stroke == 0 {
		z.Stroke = DefaultStroke
	}
	if z.Color == "" {
		z.Color = DefaultColor
	}

	switch {
	case z.Radius <= 0:
		return fmt.Errorf("%w: zone %s radius must be positive", ErrInvalid, z.ID)
	case z.Stroke < 0:
		return fmt.Errorf("%w: zone %s stroke must not be negative", ErrInvalid, z.ID)
	case z.Volume < 0 || z.Volume > 1:
		return fmt.Errorf("%w: zone %s volume must be within [0, 1]", ErrInvalid, z.ID)
	}
	return nil
}

// Create inserts a new zone at the end of the display order.
func (r *ZoneRepository) Create(z *gesture.ZoneConfig) error {
	if err := Normalize(z); err != nil {
		return err
	}

	var position int
	if err := r.db.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM zones`).Scan(&position); err != nil {
		return err
	}

	now := time.Now()
	_, err := r.db.Exec(
		`INSERT INTO zones (id, position, center_x, center_y, radius, stroke, color, image, audio, volume, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		z.ID, position, z.Center.X, z.Center.Y, z.Radius, z.Stroke, z.Color, z.ImageRef, z.AudioRef, z.Volume, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert zone %s: %w", z.ID, err)
	}
	return nil
}

// GetByID retrieves a zone by its ID.
func (r *ZoneRepository) GetByID(id string) (*gesture.ZoneConfig, error) {
	z := &gesture.ZoneConfig{}
	err := r.db.QueryRow(
		`SELECT id, center_x, center_y, radius, stroke, color, image, audio, volume
		 FROM zones WHERE id = ?`,
		id,
	).Scan(&z.ID, &z.Center.X, &z.Center.Y, &z.Radius, &z.Stroke, &z.Color, &z.ImageRef, &z.AudioRef, &z.Volume)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return z, nil
}

// List retrieves all zones in display order.
func (r *ZoneRepository) List() ([]gesture.ZoneConfig, error) {
	return listZones(r.db)
}

func listZones(q execer) ([]gesture.ZoneConfig, error) {
	rows, err := q.Query(
		`SELECT id, center_x, center_y, radius, stroke, color, image, audio, volume
		 FROM zones ORDER BY position, created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zones := []gesture.ZoneConfig{}
	for rows.Next() {
		var z gesture.ZoneConfig
		if err := rows.Scan(&z.ID, &z.Center.X, &z.Center.Y, &z.Radius, &z.Stroke, &z.Color, &z.ImageRef, &z.AudioRef, &z.Volume); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return zones, nil
}

// Update replaces an existing zone's fields, keeping its position.
func (r *ZoneRepository) Update(z *gesture.ZoneConfig) error {
	if z.ID == "" {
		return fmt.Errorf("%w: zone id required", ErrInvalid)
	}
	if err := Normalize(z); err != nil {
		return err
	}

	result, err := r.db.Exec(
		`UPDATE zones SET center_x = ?, center_y = ?, radius = ?, stroke = ?, color = ?, image = ?, audio = ?, volume = ?, updated_at = ?
		 WHERE id = ?`,
		z.Center.X, z.Center.Y, z.Radius, z.Stroke, z.Color, z.ImageRef, z.AudioRef, z.Volume, time.Now(), z.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a zone and its history.
func (r *ZoneRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM zones WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
