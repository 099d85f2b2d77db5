package actor

import (
	"errors"
	"fmt"
	"time"

	"hive2mqtt/internal/config"
	"hive2mqtt/internal/core/domain"
	"hive2mqtt/internal/core/events"
	"hive2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// HADiscoveryActor publishes the Home Assistant discovery documents for
// every discovered device, once at startup and again whenever the
// device set changes.
type HADiscoveryActor struct {
	config      *config.Config
	behavior    actor.Behavior
	stash       *actorutil.Stash
	statusCache *actor.PID
	mqttActor   *actor.PID
	eventStream *eventstream.EventStream

	eventStreamSub     *eventstream.Subscription
	statusCacheHealthy bool
	mqttActorHealthy   bool
	healthyRecv        int

	logger *zap.Logger
}

type republishDiscovery struct {
	devices domain.DiscoveredDevices
}

func NewHADiscoveryActor(config *config.Config, statusCache *actor.PID, mqttActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		statusCache: statusCache,
		mqttActor:   mqttActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// republish whenever the device set changes
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if ev, ok := value.(domain.DeviceDiscoveryEvent); ok {
				ctx.Send(ctx.Self(), republishDiscovery{devices: ev.Devices})
			}
		})

		// check status cache and MQTT actor healthy
		state.healthyRecv = 0
		state.statusCacheHealthy = false
		state.mqttActorHealthy = false
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.statusCache, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_STATUS_CACHE,
				Healthy: false,
			}
		})
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_STATUS_CACHE:
				state.statusCacheHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {
			if state.statusCacheHealthy && state.mqttActorHealthy {
				timeout := time.Duration(state.config.Monitor.StatusWaitCeilingMillis)*time.Millisecond + 5*time.Second
				actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.statusCache, domain.GetDevicesRequest{}, timeout), func(err error) any {
					return domain.GetDevicesResponse{
						ActorResponseMixIn: domain.ActorResponseMixIn{
							ResponseError: err,
						},
					}
				})
				state.behavior.Become(state.WaitingDevicesReceive)
			} else {
				panic(errors.New("MQTT actor or status cache are not healthy"))
			}
		}
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingDevicesReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDevicesResponse:
		if msg.HasResponseError() {
			// upstream may still be down at startup; the next device
			// discovery event retries the publish
			state.logger.Error("hadiscovery@devices GetDevicesResponse error", zap.Error(msg.GetResponseError()))
		} else {
			state.logger.Debug("hadiscovery@devices GetDevicesResponse")
			state.publishDiscovery(ctx, msg.Devices)
		}
		state.behavior.Become(state.IdleReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@devices stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) IdleReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   "idle",
		})
	case republishDiscovery:
		state.logger.Info("hadiscovery@idle device set changed, republishing")
		state.publishDiscovery(ctx, msg.devices)
	case *actor.Restarting:
		state.unsubscribe()
	case *actor.Stopping:
		state.unsubscribe()
	default:
		state.logger.Debug("hadiscovery@idle ignore", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) publishDiscovery(ctx actor.Context, devices domain.DiscoveredDevices) {
	var sensors []domain.GenericSensor
	var switches []domain.GenericSwitch
	var inputNumbers []domain.GenericInputNumber

	bridgeDevice := events.BridgeDevice(state.config.MQTT.BaseTopic)
	sensors = append(sensors, events.BridgeSensors(bridgeDevice)...)

	if devices.Thermostat != nil {
		thermostatDevice := events.ThermostatDevice(devices.Thermostat)
		thermostatDevice.ViaDevice = bridgeDevice.Id
		thermostatSensors := events.ThermostatSensors(thermostatDevice, devices.Thermostat)
		for i := range thermostatSensors {
			if i > 0 {
				thermostatSensors[i].Device = events.IdDevice(thermostatDevice)
			}
			sensors = append(sensors, thermostatSensors[i])
		}
		switches = append(switches, events.ThermostatSwitches(events.IdDevice(thermostatDevice), devices.Thermostat)...)
		inputNumbers = append(inputNumbers, events.ThermostatInputNumbers(events.IdDevice(thermostatDevice), devices.Thermostat)...)
	}

	for _, valve := range devices.Valves {
		valveDevice := events.ValveDevice(valve)
		valveDevice.ViaDevice = bridgeDevice.Id
		valveSensors := events.ValveSensors(valveDevice, valve)
		for i := range valveSensors {
			if i > 0 {
				valveSensors[i].Device = events.IdDevice(valveDevice)
			}
			sensors = append(sensors, valveSensors[i])
		}
	}

	state.logger.Info("hadiscovery: publishing discovery documents",
		zap.Int("sensors", len(sensors)),
		zap.Int("switches", len(switches)),
		zap.Int("inputNumbers", len(inputNumbers)))

	ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
		Sensors:      sensors,
		Switches:     switches,
		InputNumbers: inputNumbers,
	})
}

func (state *HADiscoveryActor) unsubscribe() {
	if state.eventStreamSub != nil {
		state.eventStream.Unsubscribe(state.eventStreamSub)
		state.eventStreamSub = nil
	}
}
