package store

import (
	"database/sql"
	"time"
)

// ZoneEvent is one recorded activation edge.
type ZoneEvent struct {
	ID     int64     `json:"id"`
	ZoneID string    `json:"zone_id"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
}

// EventRepository records zone activation history.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Record appends an event. Events for zones that no longer exist are
// rejected by the foreign key.
func (r *EventRepository) Record(zoneID, kind string, at time.Time) error {
	_, err := r.db.Exec(
		`INSERT INTO zone_events (zone_id, kind, at) VALUES (?, ?, ?)`,
		zoneID, kind, at.UTC(),
	)
	return err
}

// Recent returns up to limit events, newest first.
func (r *EventRepository) Recent(limit int) ([]ZoneEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT id, zone_id, kind, at FROM zone_events ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []ZoneEvent{}
	for rows.Next() {
		var e ZoneEvent
		if err := rows.Scan(&e.ID, &e.ZoneID, &e.Kind, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountByZone returns how many activations zoneID has recorded.
func (r *EventRepository) CountByZone(zoneID string) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM zone_events WHERE zone_id = ? AND kind = 'activate'`,
		zoneID,
	).Scan(&n)
	return n, err
}
