package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nearfield-data/nearfield.report/internal/wifi"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if necessary) the observation log at path and
// ensures the base schema exists. Use ":memory:" for an ephemeral store.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scan_sessions (
			session_id TEXT PRIMARY KEY,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS ble_sightings (
			session_id TEXT,
			address TEXT,
			rssi INTEGER,
			distance DOUBLE,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES scan_sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS wifi_networks (
			session_id TEXT,
			ssid TEXT,
			security TEXT,
			signal INTEGER,
			frequency INTEGER,
			band TEXT,
			channel INTEGER,
			bssid TEXT,
			rssi INTEGER,
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES scan_sessions(session_id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// BeginSession records the start of a scan run and returns its identifier.
func (db *DB) BeginSession() (string, error) {
	id := uuid.NewString()
	_, err := db.Exec("INSERT INTO scan_sessions (session_id) VALUES (?)", id)
	if err != nil {
		return "", fmt.Errorf("begin session: %w", err)
	}
	return id, nil
}

// RecordSighting appends one BLE tag sighting to the session log.
func (db *DB) RecordSighting(sessionID, address string, rssi int, distance float64) error {
	_, err := db.Exec(
		"INSERT INTO ble_sightings (session_id, address, rssi, distance) VALUES (?, ?, ?, ?)",
		sessionID, address, rssi, distance,
	)
	if err != nil {
		return fmt.Errorf("record sighting: %w", err)
	}
	return nil
}

// RecordNetworks appends a batch of newly observed networks to the
// session log. A nil RSSI detail is stored as NULL.
func (db *DB) RecordNetworks(sessionID string, networks []wifi.Network) error {
	if len(networks) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("record networks: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO wifi_networks (session_id, ssid, security, signal, frequency, band, channel, bssid, rssi)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("record networks: %w", err)
	}
	defer stmt.Close()

	for _, n := range networks {
		var rssi any
		if n.RSSI != nil {
			rssi = *n.RSSI
		}
		if _, err := stmt.Exec(sessionID, n.SSID, n.Security, n.Signal, n.Frequency, string(n.Band), n.Channel, n.BSSID, rssi); err != nil {
			return fmt.Errorf("record networks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record networks: %w", err)
	}
	return nil
}

// SessionCounts summarizes what one session logged.
type SessionCounts struct {
	Sightings int       `json:"sightings"`
	Networks  int       `json:"networks"`
	StartedAt time.Time `json:"started_at"`
}

// Counts returns the log volume for a session.
func (db *DB) Counts(sessionID string) (SessionCounts, error) {
	var c SessionCounts
	err := db.QueryRow(
		"SELECT started_at FROM scan_sessions WHERE session_id = ?", sessionID,
	).Scan(&c.StartedAt)
	if err != nil {
		return c, fmt.Errorf("session counts: %w", err)
	}

	if err := db.QueryRow(
		"SELECT COUNT(*) FROM ble_sightings WHERE session_id = ?", sessionID,
	).Scan(&c.Sightings); err != nil {
		return c, fmt.Errorf("session counts: %w", err)
	}
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM wifi_networks WHERE session_id = ?", sessionID,
	).Scan(&c.Networks); err != nil {
		return c, fmt.Errorf("session counts: %w", err)
	}
	return c, nil
}
