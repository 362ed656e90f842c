package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/nearfield-data/nearfield.report/internal/api"
	"github.com/nearfield-data/nearfield.report/internal/ble"
	"github.com/nearfield-data/nearfield.report/internal/config"
	"github.com/nearfield-data/nearfield.report/internal/db"
	"github.com/nearfield-data/nearfield.report/internal/monitoring"
	"github.com/nearfield-data/nearfield.report/internal/timeutil"
	"github.com/nearfield-data/nearfield.report/internal/wifi"
)

var (
	devMode       = flag.Bool("dev", false, "Run with fixture scanners instead of platform sources")
	listen        = flag.String("listen", ":8080", "Listen address")
	configPath    = flag.String("config", "", "Path to the JSON scan configuration")
	dbFile        = flag.String("db", "", "Path to the observation log database (overrides the config file)")
	iface         = flag.String("interface", "", "Wireless interface (overrides the config file)")
	bleSource     = flag.String("ble-source", "/var/run/nearfield/ble-events", "Path of the FIFO delivering BLE advertisement events (ignored in dev mode)")
	migrationsDir = flag.String("migrations", "", "Apply versioned schema migrations from this directory at startup")
)

// shutdownGrace bounds how long shutdown waits for the scan loops to
// drain before the process exits anyway.
const shutdownGrace = 5 * time.Second

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.DefaultScanConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *iface != "" {
		cfg.Interface = iface
	}

	dbPath := cfg.GetDBPath()
	if *dbFile != "" {
		dbPath = *dbFile
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create log directory: %v", err)
		}
	}
	store, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if *migrationsDir != "" {
		if err := store.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	}

	session, err := store.BeginSession()
	if err != nil {
		log.Fatalf("Failed to begin scan session: %v", err)
	}
	monitoring.Logf("scan session %s", session)

	clock := timeutil.RealClock{}

	var bleScanner ble.Scanner
	if *devMode {
		bleScanner = ble.NewMockScanner(devAdvertisements())
	} else {
		bleScanner = ble.NewFIFOScanner(*bleSource)
	}
	defer bleScanner.Close()

	devices := ble.NewDeviceRegistry(clock)
	supCfg := ble.DefaultSupervisorConfig()
	supCfg.DeviceTimeout = cfg.GetDeviceTimeout()
	supCfg.TxPower = cfg.GetTxPower()
	supervisor := ble.NewSupervisor(bleScanner, devices, clock, supCfg)
	supervisor.OnSighting = func(adv ble.Advertisement, distance float64) {
		if err := store.RecordSighting(session, adv.Address, adv.RSSI, distance); err != nil {
			monitoring.Logf("failed to record sighting: %v", err)
		}
	}

	var runner wifi.Runner
	if *devMode {
		runner = devRunner(cfg.GetInterface())
	} else {
		runner = wifi.ExecRunner{}
	}

	networks := wifi.NewRegistry()
	wifiScanner := wifi.NewScanner(cfg.GetInterface(), runner, clock, networks)
	if *devMode {
		wifiScanner.SettleDelay = 0
	}
	wifiScanner.OnNetworks = func(added []wifi.Network) {
		if err := store.RecordNetworks(session, added); err != nil {
			monitoring.Logf("failed to record networks: %v", err)
		}
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		supervisor.Run(ctx)
		log.Print("ble supervisor terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		wifiScanner.Run(ctx, cfg.GetScanInterval())
		log.Print("wifi scan loop terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(devices, networks, supervisor, wifiScanner).ServeMux()
		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	<-ctx.Done()
	if waitTimeout(&wg, shutdownGrace) {
		log.Printf("shutdown grace period elapsed; exiting with workers outstanding")
		return
	}
	log.Printf("Graceful shutdown complete")
}

// waitTimeout waits for wg with an upper bound; reports true if the
// bound elapsed first.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return false
	case <-time.After(d):
		return true
	}
}

// devAdvertisements is the fixture stream replayed in dev mode: two
// tracked tags at different ranges, one unregistered tag, and one
// non-tag Apple advertisement.
func devAdvertisements() []ble.Advertisement {
	return []ble.Advertisement{
		{
			Address: "DC:52:85:14:3A:01",
			RSSI:    -48,
			Name:    "AirTag",
			ManufacturerData: map[uint16][]byte{
				ble.AppleCompanyID: {0x12, 0x19, 0x10, 0x2b, 0x73, 0x1f, 0x00},
			},
		},
		{
			Address: "DC:52:85:14:3A:02",
			RSSI:    -74,
			ManufacturerData: map[uint16][]byte{
				ble.AppleCompanyID: {0x12, 0x19, 0x10, 0x9e, 0x41, 0x08, 0x00},
			},
		},
		{
			Address: "DC:52:85:14:3A:03",
			RSSI:    -61,
			ManufacturerData: map[uint16][]byte{
				ble.AppleCompanyID: {0x07, 0x19, 0x05, 0x00},
			},
		},
		{
			Address: "F4:0F:24:11:22:33",
			RSSI:    -55,
			ManufacturerData: map[uint16][]byte{
				ble.AppleCompanyID: {0x10, 0x05, 0x0a, 0x00},
			},
		},
	}
}

// devRunner replays canned nmcli/iwlist output so dev mode exercises
// the whole WiFi pipeline without a wireless interface.
func devRunner(iface string) *wifi.MockRunner {
	return &wifi.MockRunner{
		Outputs: map[string]string{
			"nmcli device wifi rescan": "",
			"nmcli -t -f SSID,SECURITY,SIGNAL,FREQ,BSSID,CHAN device wifi list": "HomeLab:WPA2:82:2437:AA\\:BB\\:CC\\:DD\\:EE\\:01:6\n" +
				"HomeLab-5G:WPA2:74:5180:AA\\:BB\\:CC\\:DD\\:EE\\:02:36\n" +
				"CoffeeShop::58:2412:AA\\:BB\\:CC\\:DD\\:EE\\:03:1\n",
			fmt.Sprintf("iwlist %s scan", iface): `          Cell 01 - Address: AA:BB:CC:DD:EE:01
                    ESSID:"HomeLab"
                    Quality=62/70  Signal level=-48 dBm
          Cell 02 - Address: AA:BB:CC:DD:EE:03
                    ESSID:"CoffeeShop"
                    Quality=38/70  Signal level=-68 dBm
`,
		},
	}
}
