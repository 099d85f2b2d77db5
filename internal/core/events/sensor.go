package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	. "hive2mqtt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE = "bridge"

	// Per-device sensor id suffixes. The full sensor id is the device
	// slug joined with a suffix, so two valves never collide.
	SENSOR_CURRENT_TEMPERATURE = "current_temperature"
	SENSOR_TARGET_TEMPERATURE  = "target_temperature"
	SENSOR_HEATING             = "heating"
	SENSOR_MODE                = "mode"
	SENSOR_BOOST_REMAINING     = "boost_remaining"
	SENSOR_BATTERY             = "battery"
	SENSOR_HOT_WATER           = "hot_water"
	SWITCH_BOOST               = "boost"
	INPUT_NUMBER_TARGET_TEMP   = "set_target_temperature"

	STATE_CLASS_DURATION      = "duration"
	STATE_CLASS_MEASUREMENT   = "measurement"
	DEVICE_CLASS_BATTERY      = "battery"
	DEVICE_CLASS_DURATION     = "duration"
	DEVICE_CLASS_TEMPERATURE  = "temperature"
	DEVICE_CLASS_HEAT         = "heat"
	DEVICE_CLASS_RUNNING      = "running"
	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
	ENTITY_CLASS_CONFIG       = "config"
	SENSOR_TYPE_SENSOR        = "sensor"
	SENSOR_TYPE_BINARY        = "binary_sensor"
	INPUT_NUMBER_MODE_BOX     = "box"
	INPUT_NUMBER_MODE_SLIDER  = "slider"
)

// DeviceSensorId builds the event stream / MQTT id for one sensor of
// one logical device.
func DeviceSensorId(deviceID, suffix string) string {
	return fmt.Sprintf("%s_%s", DeviceSlug(deviceID), suffix)
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("hive_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "hive2mqtt",
		Model:        "Hive2MQTT",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Hive2MQTT %s", md5HashShort(baseTopic)),
	}
}

func ThermostatDevice(t *Thermostat) Device {
	name := t.Name
	if name == "" {
		name = "Hive Thermostat"
	}
	return Device{
		Id:           fmt.Sprintf("hive_thermostat_%s", md5HashShort(t.UIID)),
		Manufacturer: "Hive",
		Model:        "Thermostat",
		Name:         name,
	}
}

func ValveDevice(v RadiatorValve) Device {
	name := v.Name
	if name == "" {
		name = "Hive Radiator Valve"
	}
	return Device{
		Id:           fmt.Sprintf("hive_trv_%s", md5HashShort(v.ID)),
		Manufacturer: "Hive",
		Model:        "Radiator Valve",
		Name:         name,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// ThermostatSensors are keyed to the heating node id, since readings
// are derived from that node. A thermostat without a heating link has
// no publishable state.
func ThermostatSensors(device Device, t *Thermostat) []GenericSensor {

	if t.HeatingID == "" {
		return nil
	}

	var sensors []GenericSensor

	// Current temperature
	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                DeviceSensorId(t.HeatingID, SENSOR_CURRENT_TEMPERATURE),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Current temperature",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_TEMPERATURE,
		UnitOfMeasurement: "°C",
		UniqueId:          uniqueId(device.Id, SENSOR_CURRENT_TEMPERATURE),
	})

	// Operating mode text
	sensors = append(sensors, GenericSensor{
		Device:     device,
		Id:         DeviceSensorId(t.HeatingID, SENSOR_MODE),
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Operating mode",
		UniqueId:   uniqueId(device.Id, SENSOR_MODE),
	})

	// Target temperature
	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                DeviceSensorId(t.HeatingID, SENSOR_TARGET_TEMPERATURE),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Target temperature",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_TEMPERATURE,
		UnitOfMeasurement: "°C",
		UniqueId:          uniqueId(device.Id, SENSOR_TARGET_TEMPERATURE),
	})

	// Heating demand
	sensors = append(sensors, GenericSensor{
		Device:      device,
		Id:          DeviceSensorId(t.HeatingID, SENSOR_HEATING),
		SensorType:  SENSOR_TYPE_BINARY,
		Name:        "Heating",
		DeviceClass: DEVICE_CLASS_HEAT,
		Icon:        "mdi:radiator",
		UniqueId:    uniqueId(device.Id, SENSOR_HEATING),
	})

	// Boost minutes remaining
	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                DeviceSensorId(t.HeatingID, SENSOR_BOOST_REMAINING),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Boost remaining",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_DURATION,
		UnitOfMeasurement: "min",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(device.Id, SENSOR_BOOST_REMAINING),
	})

	if t.HotWaterID != "" {
		// Hot water relay
		sensors = append(sensors, GenericSensor{
			Device:      device,
			Id:          DeviceSensorId(t.HeatingID, SENSOR_HOT_WATER),
			SensorType:  SENSOR_TYPE_BINARY,
			Name:        "Hot water",
			DeviceClass: DEVICE_CLASS_RUNNING,
			Icon:        "mdi:water-boiler",
			UniqueId:    uniqueId(device.Id, SENSOR_HOT_WATER),
		})
	}

	// Battery level
	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                DeviceSensorId(t.HeatingID, SENSOR_BATTERY),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(device.Id, SENSOR_BATTERY),
	})

	return sensors
}

func ValveSensors(device Device, v RadiatorValve) []GenericSensor {

	var sensors []GenericSensor

	// Current temperature
	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                DeviceSensorId(v.ID, SENSOR_CURRENT_TEMPERATURE),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Current temperature",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_TEMPERATURE,
		UnitOfMeasurement: "°C",
		UniqueId:          uniqueId(device.Id, SENSOR_CURRENT_TEMPERATURE),
	})

	// Target temperature
	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                DeviceSensorId(v.ID, SENSOR_TARGET_TEMPERATURE),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Target temperature",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_TEMPERATURE,
		UnitOfMeasurement: "°C",
		UniqueId:          uniqueId(device.Id, SENSOR_TARGET_TEMPERATURE),
	})

	// Heating demand
	sensors = append(sensors, GenericSensor{
		Device:      device,
		Id:          DeviceSensorId(v.ID, SENSOR_HEATING),
		SensorType:  SENSOR_TYPE_BINARY,
		Name:        "Heating",
		DeviceClass: DEVICE_CLASS_HEAT,
		Icon:        "mdi:radiator",
		UniqueId:    uniqueId(device.Id, SENSOR_HEATING),
	})

	// Battery level
	sensors = append(sensors, GenericSensor{
		Device:            device,
		Id:                DeviceSensorId(v.ID, SENSOR_BATTERY),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(device.Id, SENSOR_BATTERY),
	})

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func ThermostatSwitches(device Device, t *Thermostat) []GenericSwitch {

	if t.HeatingID == "" {
		return nil
	}

	var switches []GenericSwitch

	// Heating boost
	switches = append(switches, GenericSwitch{
		Device:   device,
		Id:       DeviceSensorId(t.HeatingID, SWITCH_BOOST),
		Name:     "Heating boost",
		UniqueId: uniqueId(device.Id, SWITCH_BOOST),
		Icon:     "mdi:fire",
	})

	return switches
}

func ThermostatInputNumbers(device Device, t *Thermostat) []GenericInputNumber {

	if t.HeatingID == "" {
		return nil
	}

	var inputNumbers []GenericInputNumber

	// Target temperature setpoint
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       device,
		Id:           DeviceSensorId(t.HeatingID, INPUT_NUMBER_TARGET_TEMP),
		Name:         "Set target temperature",
		UniqueId:     uniqueId(device.Id, INPUT_NUMBER_TARGET_TEMP),
		Icon:         "mdi:thermometer",
		Max:          32,
		Min:          5,
		Step:         0.5,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: 20,
	})

	return inputNumbers
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
