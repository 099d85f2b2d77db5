package domain

import "hive2mqtt/pkg/hiveapi"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_HIVE         = "hive"
	ACTOR_ID_STATUS_CACHE = "status_cache"
	ACTOR_ID_POLLER       = "poller"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type FetchNodesRequest struct {
	ActorRequestMixIn
}

type FetchNodesResponse struct {
	ActorResponseMixIn
	Nodes []hiveapi.Node
}

// GetStatusRequest asks the status cache for a snapshot. Force bypasses
// the freshness window and always triggers a remote fetch.
type GetStatusRequest struct {
	ActorRequestMixIn
	Force bool
}

type GetStatusResponse struct {
	ActorResponseMixIn
	Snapshot StatusSnapshot
}

type GetDevicesRequest struct {
	ActorRequestMixIn
}

type GetDevicesResponse struct {
	ActorResponseMixIn
	Devices DiscoveredDevices
}

type SetTargetTemperatureRequest struct {
	ActorRequestMixIn
	NodeID string
	Value  float64
}

type SetTargetTemperatureResponse struct {
	ActorResponseMixIn
}

type SetBoostRequest struct {
	ActorRequestMixIn
	NodeID          string
	On              bool
	DurationMinutes int
}

type SetBoostResponse struct {
	ActorResponseMixIn
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
