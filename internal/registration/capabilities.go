package registration

import "github.com/darmiel/satellite/internal/config"

const (
	TypeLogistik = "logistik"
	TypeVinci    = "vinci"
	TypePixel    = "pixel"
)

var typeCapabilities = map[string][]string{
	TypeLogistik: {"order_management", "shipping_tracking"},
	TypeVinci:    {"broker_management", "job_tracking"},
	TypePixel:    {"qr_generation", "scan_tracking"},
}

// Capabilities lists what this satellite offers to the hub.
func Capabilities(cfg *config.Config) map[string]bool {
	caps := map[string]bool{
		"tenant_management": true,
		"user_sync":         true,
		"remote_commands":   true,
		"cache_management":  true,
		"metrics_reporting": cfg.Metrics.Enabled,
		"health_monitoring": cfg.Health.Enabled,
		"sync_support":      cfg.Sync.Enabled,
	}
	for _, c := range typeCapabilities[cfg.Satellite.Type] {
		caps[c] = true
	}
	return caps
}
