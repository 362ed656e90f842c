package wifi

import "sync"

// Registry is the append-only accumulation of unique network
// observations across scan cycles. Duplicates (same SSID+BSSID) are
// discarded, not merged; insertion order is preserved.
type Registry struct {
	mu       sync.Mutex
	networks []Network
	seen     map[string]bool
}

// NewRegistry creates an empty network registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]bool)}
}

// AddUnique appends every observation whose SSID+BSSID key has not been
// seen before, including duplicates within the batch itself. It returns
// the observations actually appended, in input order.
func (r *Registry) AddUnique(batch []Network) []Network {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added []Network
	for _, network := range batch {
		key := network.Key()
		if r.seen[key] {
			continue
		}
		r.seen[key] = true
		r.networks = append(r.networks, network)
		added = append(added, network)
	}
	return added
}

// Snapshot returns a copy of the accumulated observations in insertion
// order.
func (r *Registry) Snapshot() []Network {
	r.mu.Lock()
	defer r.mu.Unlock()

	networks := make([]Network, len(r.networks))
	copy(networks, r.networks)
	return networks
}

// Len returns the number of accumulated observations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.networks)
}

// Stats summarizes the accumulated observations for the presentation
// layer.
type Stats struct {
	Total  int          `json:"total"`
	Open   int          `json:"open"`
	ByBand map[Band]int `json:"by_band"`
}

// Stats computes the observation summary.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{ByBand: make(map[Band]int)}
	for _, network := range r.networks {
		stats.Total++
		if network.IsOpen() {
			stats.Open++
		}
		stats.ByBand[network.Band]++
	}
	return stats
}
