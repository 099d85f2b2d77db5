package domain

import (
	"strings"
	"time"
)

// Thermostat is the logical device reconstructed from up to three raw
// nodes. It is only built when a UI node is present; the heating and
// hot-water links are optional.
type Thermostat struct {
	UIID       string
	Name       string
	HeatingID  string
	HotWaterID string
}

// RadiatorValve is an independent logical device, one per TRV node.
type RadiatorValve struct {
	ID   string
	Name string
}

// DiscoveredDevices is one discovery pass's result. Only one thermostat
// per account is supported; see the classifier for the tie-break rule.
type DiscoveredDevices struct {
	Thermostat *Thermostat
	Valves     []RadiatorValve
}

func (d DiscoveredDevices) Empty() bool {
	return d.Thermostat == nil && len(d.Valves) == 0
}

// DeviceReading is one logical device's state, recomputed in full on
// every successful fetch.
type DeviceReading struct {
	DeviceID string
	// Status is the operating mode text: the raw remote mode when no
	// override is active, otherwise "Boost" or the interlock text.
	Status  string
	Current float64
	Target  float64
	Heating bool
	// Override reports a temporary mode override. When it was imposed
	// by hardware it is read-only and has no remaining time.
	Override          bool
	OverrideReadOnly  bool
	OverrideRemaining int64 // minutes, meaningful only for user boosts
	BatteryLevel      *float64
	HotWaterOn        *bool
}

// StatusSnapshot is the unit served to all concurrent status callers.
// Only the fetch routine replaces it, atomically and as a whole.
type StatusSnapshot struct {
	Readings  []DeviceReading
	IsValid   bool
	FetchedAt time.Time
}

func (s StatusSnapshot) Reading(deviceID string) *DeviceReading {
	for i := range s.Readings {
		if s.Readings[i].DeviceID == deviceID {
			return &s.Readings[i]
		}
	}
	return nil
}

// DeviceSlug turns a remote node id into an MQTT-safe identifier.
func DeviceSlug(nodeID string) string {
	return strings.ToLower(strings.ReplaceAll(nodeID, "-", "_"))
}
