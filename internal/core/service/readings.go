package service

import (
	"time"

	"hive2mqtt/internal/core/domain"
	"hive2mqtt/pkg/hiveapi"

	"go.uber.org/zap"
)

const (
	StatusBoost        = "Boost"
	StatusTRVInterlock = "TRV Calling For Heat"
)

// ReadingDeriver turns one fetch cycle's raw nodes into per-device
// readings. A node missing a required attribute produces no reading at
// all, but never stops the other nodes in the same cycle from
// producing theirs.
type ReadingDeriver struct {
	Logger *zap.Logger
	// Now is replaceable for boost countdown tests.
	Now func() time.Time
}

func (d *ReadingDeriver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *ReadingDeriver) Derive(devices domain.DiscoveredDevices, nodes []hiveapi.Node) []domain.DeviceReading {
	byID := make(map[string]hiveapi.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var readings []domain.DeviceReading
	if t := devices.Thermostat; t != nil && t.HeatingID != "" {
		if reading, ok := d.thermostatReading(t, byID); ok {
			readings = append(readings, reading)
		}
	}
	for _, v := range devices.Valves {
		node, ok := byID[v.ID]
		if !ok {
			d.Logger.Warn("readings: valve node missing from fetch", zap.String("node", v.ID))
			continue
		}
		if reading, ok := d.valveReading(v, node); ok {
			readings = append(readings, reading)
		}
	}
	return readings
}

// thermostatReading is keyed to the heating node: that node carries
// the temperature sensor, the setpoint and the relay state. The UI and
// hot water nodes only contribute optional extras.
func (d *ReadingDeriver) thermostatReading(t *domain.Thermostat, byID map[string]hiveapi.Node) (domain.DeviceReading, bool) {
	node, ok := byID[t.HeatingID]
	if !ok {
		d.Logger.Warn("readings: heating node missing from fetch", zap.String("node", t.HeatingID))
		return domain.DeviceReading{}, false
	}

	reading := domain.DeviceReading{DeviceID: node.ID}
	if !d.applyHeating(&reading, node) {
		return domain.DeviceReading{}, false
	}

	if ui, ok := byID[t.UIID]; ok {
		if level, ok := floatAttr(ui, hiveapi.FeatureBatteryDevice, hiveapi.AttrBatteryLevel); ok {
			reading.BatteryLevel = &level
		}
	}
	if t.HotWaterID != "" {
		if hwNode, ok := byID[t.HotWaterID]; ok {
			state, ok := stringAttr(hwNode, hiveapi.FeatureWaterHeater, hiveapi.AttrOperatingState)
			if ok {
				on := state == hiveapi.OperatingStateHeat || state == "ON"
				reading.HotWaterOn = &on
			}
		}
	}

	return reading, true
}

// applyHeating fills the heating half of a reading: current, target,
// demand, mode text and override state. A missing required attribute
// aborts the whole reading.
func (d *ReadingDeriver) applyHeating(reading *domain.DeviceReading, node hiveapi.Node) bool {
	current, ok := floatAttr(node, hiveapi.FeatureTemperatureSensor, hiveapi.AttrTemperature)
	if !ok {
		d.dropReading(node, hiveapi.AttrTemperature)
		return false
	}
	target, ok := floatAttr(node, hiveapi.FeatureHeatingThermostat, hiveapi.AttrTargetHeatTemperature)
	if !ok {
		d.dropReading(node, hiveapi.AttrTargetHeatTemperature)
		return false
	}
	state, ok := stringAttr(node, hiveapi.FeatureHeatingThermostat, hiveapi.AttrOperatingState)
	if !ok {
		d.dropReading(node, hiveapi.AttrOperatingState)
		return false
	}
	override, ok := stringAttr(node, hiveapi.FeatureHeatingThermostat, hiveapi.AttrTemporaryOverride)
	if !ok {
		d.dropReading(node, hiveapi.AttrTemporaryOverride)
		return false
	}

	reading.Current = current
	reading.Target = target
	reading.Heating = state == hiveapi.OperatingStateHeat

	if override != hiveapi.OverrideTransient {
		mode, ok := stringAttr(node, hiveapi.FeatureHeatingThermostat, hiveapi.AttrOperatingMode)
		if !ok {
			d.dropReading(node, hiveapi.AttrOperatingMode)
			return false
		}
		reading.Status = mode
		return true
	}

	reading.Override = true
	reason, _ := stringAttr(node, hiveapi.FeatureHeatingThermostat, hiveapi.AttrOperatingStateReason)
	if reason == hiveapi.ReasonBoilerModuleInterlock {
		// Hardware-imposed override: a TRV is demanding heat. There
		// is no end time and nothing for the user to cancel.
		reading.Status = StatusTRVInterlock
		reading.OverrideReadOnly = true
		return true
	}

	reading.Status = StatusBoost
	remaining, ok := d.boostMinutesRemaining(node)
	if !ok {
		d.dropReading(node, hiveapi.AttrEndDatetime)
		return false
	}
	reading.OverrideRemaining = remaining
	return true
}

func (d *ReadingDeriver) boostMinutesRemaining(node hiveapi.Node) (int64, bool) {
	raw, ok := stringAttr(node, hiveapi.FeatureTransientMode, hiveapi.AttrEndDatetime)
	if !ok {
		return 0, false
	}
	end, err := time.Parse(hiveapi.EndDatetimeLayout, raw)
	if err != nil {
		d.Logger.Warn("readings: unparseable boost end time",
			zap.String("node", node.ID), zap.String("endDatetime", raw))
		return 0, false
	}
	remaining := int64(end.Sub(d.now()).Minutes())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

func (d *ReadingDeriver) valveReading(v domain.RadiatorValve, node hiveapi.Node) (domain.DeviceReading, bool) {
	reading := domain.DeviceReading{DeviceID: v.ID}
	if !d.applyHeating(&reading, node) {
		return domain.DeviceReading{}, false
	}
	if level, ok := floatAttr(node, hiveapi.FeatureBatteryDevice, hiveapi.AttrBatteryLevel); ok {
		reading.BatteryLevel = &level
	}
	return reading, true
}

func (d *ReadingDeriver) dropReading(node hiveapi.Node, attr string) {
	d.Logger.Warn("readings: node dropped, missing attribute",
		zap.String("node", node.ID), zap.String("attribute", attr))
}

func floatAttr(node hiveapi.Node, feature, attr string) (float64, bool) {
	a, ok := node.Attribute(feature, attr)
	if !ok {
		return 0, false
	}
	return a.ReportedFloat()
}

func stringAttr(node hiveapi.Node, feature, attr string) (string, bool) {
	a, ok := node.Attribute(feature, attr)
	if !ok {
		return "", false
	}
	return a.ReportedString(), true
}
