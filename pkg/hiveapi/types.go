package hiveapi

import (
	"fmt"
	"strconv"
)

// Node class URLs as reported by the omnia API.
const (
	NodeTypeThermostat   = "http://alertme.com/schema/json/node.class.thermostat.json#"
	NodeTypeThermostatUI = "http://alertme.com/schema/json/node.class.thermostatui.json#"
	NodeTypeTRV          = "http://alertme.com/schema/json/node.class.trv.json#"
)

// Feature and attribute names used by the bridge.
const (
	FeatureDeviceManagement   = "device_management_v1"
	FeatureTemperatureSensor  = "temperature_sensor_v1"
	FeatureHeatingThermostat  = "heating_thermostat_v1"
	FeatureWaterHeater        = "water_heater_v1"
	FeatureTransientMode      = "transient_mode_v1"
	FeatureBatteryDevice      = "battery_device_v1"
	AttrProductType           = "productType"
	AttrTemperature           = "temperature"
	AttrTargetHeatTemperature = "targetHeatTemperature"
	AttrOperatingState        = "operatingState"
	AttrOperatingMode         = "operatingMode"
	AttrOperatingStateReason  = "operatingStateReason"
	AttrTemporaryOverride     = "temporaryOperatingModeOverride"
	AttrEndDatetime           = "endDatetime"
	AttrBatteryLevel          = "batteryLevel"
)

// Well-known attribute values.
const (
	ProductTypeHeating          = "HEATING"
	ProductTypeHotWater         = "HOT_WATER"
	OperatingStateHeat          = "HEAT"
	OverrideTransient           = "TRANSIENT"
	ReasonBoilerModuleInterlock = "BM_INTERLOCK"
)

// EndDatetimeLayout is the time layout of transient_mode_v1.endDatetime.
const EndDatetimeLayout = "2006-01-02T15:04:05.000-0700"

// Attribute is one reported/display value pair. reportedValue is the
// authoritative machine value and may be a JSON number, string or bool
// depending on the attribute.
type Attribute struct {
	ReportedValue any `json:"reportedValue"`
	DisplayValue  any `json:"displayValue"`
}

// ReportedString renders the reported value as a string.
func (a Attribute) ReportedString() string {
	switch v := a.ReportedValue.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ReportedFloat parses the reported value as a float64.
func (a Attribute) ReportedFloat() (float64, bool) {
	switch v := a.ReportedValue.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// DisplayString renders the display value as a string.
func (a Attribute) DisplayString() string {
	switch v := a.DisplayValue.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Feature is a named group of attributes reported by one node.
type Feature map[string]Attribute

// Node is one remote-reported device or device-feature-set. It only
// lives within one fetch cycle's response.
type Node struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	NodeType string             `json:"nodeType"`
	Features map[string]Feature `json:"features"`
}

// Attribute looks up one attribute of one feature. The second return
// is false when either the feature or the attribute is missing.
func (n Node) Attribute(feature, attr string) (Attribute, bool) {
	f, ok := n.Features[feature]
	if !ok {
		return Attribute{}, false
	}
	a, ok := f[attr]
	return a, ok
}

type nodesEnvelope struct {
	Nodes []Node `json:"nodes"`
}

type loginCredentials struct {
	Caller   string `json:"caller"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Sessions []loginCredentials `json:"sessions"`
}

type loginSession struct {
	ID                        string `json:"id"`
	Username                  string `json:"username"`
	UserID                    string `json:"userId"`
	ExtCustomerLevel          string `json:"extCustomerLevel"`
	LatestSupportedAPIVersion string `json:"latestSupportedApiVersion"`
	SessionID                 string `json:"sessionId"`
}

type loginResponse struct {
	Sessions []loginSession `json:"sessions"`
}
