package wifi

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nearfield-data/nearfield.report/internal/monitoring"
	"github.com/nearfield-data/nearfield.report/internal/timeutil"
)

// Runner executes an external command and returns its stdout. The
// scanner treats every failure as "no results", never as fatal.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands through os/exec with a per-command timeout.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(cctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(out), nil
}

// MockRunner replays canned command output keyed by the full command
// line, for tests and dev mode.
type MockRunner struct {
	Outputs map[string]string
	Errs    map[string]error

	mu    sync.Mutex
	calls []string
}

func (r *MockRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	r.mu.Lock()
	r.calls = append(r.calls, key)
	r.mu.Unlock()

	if err, ok := r.Errs[key]; ok {
		return "", err
	}
	return r.Outputs[key], nil
}

// Calls returns the command lines executed so far.
func (r *MockRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]string, len(r.calls))
	copy(result, r.calls)
	return result
}

// defaultSettleDelay is how long a cycle waits after triggering a
// rescan before reading results.
const defaultSettleDelay = 2 * time.Second

// Scanner drives the external WiFi scanning tool: one ScanOnce per
// cycle, feeding unique observations into the registry. It runs
// synchronously within whichever loop invokes it.
type Scanner struct {
	Interface   string
	Runner      Runner
	Clock       timeutil.Clock
	Registry    *Registry
	SettleDelay time.Duration

	// OnNetworks, when set, observes the newly accumulated observations
	// after each cycle.
	OnNetworks func(added []Network)

	mu        sync.Mutex
	scanCount int64
}

// NewScanner wires a scanner over the given command runner and registry.
func NewScanner(iface string, runner Runner, clock timeutil.Clock, registry *Registry) *Scanner {
	return &Scanner{
		Interface:   iface,
		Runner:      runner,
		Clock:       clock,
		Registry:    registry,
		SettleDelay: defaultSettleDelay,
	}
}

// ScanOnce performs one scan cycle: trigger a rescan, wait for the tool
// to settle, read best-effort RSSI detail, read the network list, parse
// each line, and accumulate unique observations. Command failures yield
// an empty cycle; a malformed line is skipped with a diagnostic and
// never aborts the batch.
func (s *Scanner) ScanOnce(ctx context.Context) []Network {
	// Every cycle counts, including ones that yield nothing, so the
	// status surface reflects attempts rather than successes.
	s.mu.Lock()
	s.scanCount++
	count := s.scanCount
	s.mu.Unlock()

	s.rescan(ctx)
	if !timeutil.WaitContext(ctx, s.Clock, s.SettleDelay) {
		return nil
	}

	levels := s.signalLevels(ctx)

	out, err := s.Runner.Run(ctx, "nmcli", "-t", "-f", "SSID,SECURITY,SIGNAL,FREQ,BSSID,CHAN", "device", "wifi", "list")
	if err != nil {
		monitoring.Logf("wifi: network list unavailable: %v", err)
		return nil
	}

	now := s.Clock.Now()
	var networks []Network
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		network, ok := ParseScanLine(line, now)
		if !ok {
			if strings.TrimSpace(line) != "" {
				monitoring.Logf("wifi: skipping malformed scan line: %.50q", line)
			}
			continue
		}
		if rssi, ok := levels[network.SSID]; ok {
			network.RSSI = &rssi
		}
		networks = append(networks, network)
	}

	added := s.Registry.AddUnique(networks)
	monitoring.Logf("wifi: scan #%d: %d networks visible, %d new", count, len(networks), len(added))

	if s.OnNetworks != nil && len(added) > 0 {
		s.OnNetworks(added)
	}
	return networks
}

// Run performs scan cycles on the given interval until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.ScanOnce(ctx)
		if !timeutil.WaitContext(ctx, s.Clock, interval) {
			return
		}
	}
}

// ScanCount returns the number of completed scan cycles.
func (s *Scanner) ScanCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanCount
}

// rescan asks the external tool to refresh its cache. Failures are
// non-fatal; the subsequent list read simply sees older results.
func (s *Scanner) rescan(ctx context.Context) {
	if _, err := s.Runner.Run(ctx, "nmcli", "device", "wifi", "rescan"); err != nil {
		monitoring.Logf("wifi: rescan failed: %v", err)
	}
}

// signalLevels returns best-effort dBm readings keyed by SSID. Any
// failure omits RSSI for the cycle rather than failing it.
func (s *Scanner) signalLevels(ctx context.Context) map[string]int {
	out, err := s.Runner.Run(ctx, "iwlist", s.Interface, "scan")
	if err != nil {
		return nil
	}
	return parseSignalLevels(out)
}

// parseSignalLevels extracts "ESSID"/"Signal level" pairs from iwlist
// scan output.
func parseSignalLevels(out string) map[string]int {
	levels := make(map[string]int)
	var current string
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "ESSID:"):
			_, after, _ := strings.Cut(line, "ESSID:")
			current = strings.Trim(strings.TrimSpace(after), `"`)
		case strings.Contains(line, "Signal level=") && current != "":
			_, after, _ := strings.Cut(line, "Signal level=")
			fields := strings.Fields(after)
			if len(fields) == 0 {
				continue
			}
			if rssi, err := strconv.Atoi(fields[0]); err == nil {
				levels[current] = rssi
			}
		}
	}
	return levels
}
