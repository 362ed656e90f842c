package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nearfield-data/nearfield.report/internal/wifi"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBeginSession(t *testing.T) {
	db := newTestDB(t)

	first, err := db.BeginSession()
	require.NoError(t, err)
	second, err := db.BeginSession()
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second, "session identifiers must be unique")
}

func TestRecordSighting(t *testing.T) {
	db := newTestDB(t)
	session, err := db.BeginSession()
	require.NoError(t, err)

	require.NoError(t, db.RecordSighting(session, "AA:BB:CC:DD:EE:FF", -60, 1.25))
	require.NoError(t, db.RecordSighting(session, "AA:BB:CC:DD:EE:FF", -62, 1.40))

	counts, err := db.Counts(session)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Sightings)
	assert.Equal(t, 0, counts.Networks)
	assert.WithinDuration(t, time.Now().UTC(), counts.StartedAt, time.Minute)
}

func TestRecordNetworks(t *testing.T) {
	db := newTestDB(t)
	session, err := db.BeginSession()
	require.NoError(t, err)

	rssi := -52
	networks := []wifi.Network{
		{SSID: "MyNet", Security: "WPA2", Signal: 75, Frequency: 2437, Band: wifi.Band24GHz, Channel: 6, BSSID: "AA:BB:CC:DD:EE:FF", RSSI: &rssi},
		{SSID: "Cafe", Signal: 90, Frequency: 5180, Band: wifi.Band5GHz, Channel: 36, BSSID: "11:22:33:44:55:66"},
	}
	require.NoError(t, db.RecordNetworks(session, networks))
	require.NoError(t, db.RecordNetworks(session, nil), "empty batch is a no-op")

	counts, err := db.Counts(session)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Networks)

	var stored *int
	var band string
	err = db.QueryRow("SELECT rssi, band FROM wifi_networks WHERE ssid = 'MyNet'").Scan(&stored, &band)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, -52, *stored)
	assert.Equal(t, "2.4GHz", band)

	err = db.QueryRow("SELECT rssi FROM wifi_networks WHERE ssid = 'Cafe'").Scan(&stored)
	require.NoError(t, err)
	assert.Nil(t, stored, "missing RSSI detail stored as NULL")
}

func TestCountsUnknownSession(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Counts("no-such-session")
	assert.Error(t, err)
}
