package events

import (
	. "hive2mqtt/internal/core/domain"
)

func ReadingToUpdateEvents(r DeviceReading) []any {
	var events []any

	// Current temperature
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: DeviceSensorId(r.DeviceID, SENSOR_CURRENT_TEMPERATURE),
		},
		Value:    r.Current,
		Decimals: 1,
	})
	// Target temperature
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: DeviceSensorId(r.DeviceID, SENSOR_TARGET_TEMPERATURE),
		},
		Value:    r.Target,
		Decimals: 1,
	})
	// Operating mode text
	events = append(events, TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: DeviceSensorId(r.DeviceID, SENSOR_MODE),
		},
		Value: r.Status,
	})
	// Heating demand
	events = append(events, BinarySensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: DeviceSensorId(r.DeviceID, SENSOR_HEATING),
		},
		Value: r.Heating,
	})
	// Boost minutes remaining. Zero when no user boost is active.
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: DeviceSensorId(r.DeviceID, SENSOR_BOOST_REMAINING),
		},
		Value:    float64(r.OverrideRemaining),
		Decimals: 0,
	})
	// Boost switch state mirrors the writable override
	events = append(events, SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: DeviceSensorId(r.DeviceID, SWITCH_BOOST),
		},
		Value: r.Override && !r.OverrideReadOnly,
	})
	if r.BatteryLevel != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: DeviceSensorId(r.DeviceID, SENSOR_BATTERY),
			},
			Value:    *r.BatteryLevel,
			Decimals: 0,
		})
	}
	if r.HotWaterOn != nil {
		events = append(events, BinarySensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: DeviceSensorId(r.DeviceID, SENSOR_HOT_WATER),
			},
			Value: *r.HotWaterOn,
		})
	}

	return events
}

func SnapshotToUpdateEvents(s StatusSnapshot) []any {
	var events []any
	if !s.IsValid {
		return events
	}
	for _, r := range s.Readings {
		events = append(events, ReadingToUpdateEvents(r)...)
	}
	return events
}
