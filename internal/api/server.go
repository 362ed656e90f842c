package api

import (
	"encoding/json"
	"net/http"

	"github.com/nearfield-data/nearfield.report/internal/ble"
	"github.com/nearfield-data/nearfield.report/internal/monitoring"
	"github.com/nearfield-data/nearfield.report/internal/wifi"
)

// Server exposes read-only JSON snapshots of the observation engine.
// Every handler serves copies; nothing reaches the live registries.
type Server struct {
	devices    *ble.DeviceRegistry
	networks   *wifi.Registry
	supervisor *ble.Supervisor
	scanner    *wifi.Scanner
}

func NewServer(devices *ble.DeviceRegistry, networks *wifi.Registry, supervisor *ble.Supervisor, scanner *wifi.Scanner) *Server {
	return &Server{
		devices:    devices,
		networks:   networks,
		supervisor: supervisor,
		scanner:    scanner,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/devices", s.listDevices)
	mux.HandleFunc("/api/networks", s.listNetworks)
	mux.HandleFunc("/api/stats", s.networkStats)
	mux.HandleFunc("/api/status", s.scanStatus)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Welcome to the Nearfield Observation Server!"))
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.devices.Snapshot())
}

func (s *Server) listNetworks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.networks.Snapshot())
}

func (s *Server) networkStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.networks.Stats())
}

// scanStatus aggregates both scan loops into one status document.
type statusResponse struct {
	BLE          ble.Status `json:"ble"`
	BLEActivity  []string   `json:"ble_activity"`
	DeviceCount  int        `json:"device_count"`
	WifiScans    int64      `json:"wifi_scans"`
	NetworkCount int        `json:"network_count"`
}

func (s *Server) scanStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, statusResponse{
		BLE:          s.supervisor.Status(),
		BLEActivity:  s.supervisor.Activity(),
		DeviceCount:  s.devices.Len(),
		WifiScans:    s.scanner.ScanCount(),
		NetworkCount: s.networks.Len(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: encode response: %v", err)
	}
}
