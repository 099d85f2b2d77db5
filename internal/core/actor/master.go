package actor

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	adactor "hive2mqtt/internal/adapter/actor"
	"hive2mqtt/internal/config"
	"hive2mqtt/internal/core/domain"
	"hive2mqtt/internal/core/events"
	"hive2mqtt/internal/mqtt"
	. "hive2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// DEFAULT_BOOST_MINUTES is used when a boost command arrives without an
// explicit duration, matching the Hive app default.
const DEFAULT_BOOST_MINUTES = 60

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

type HiveActorProvider func() *adactor.HiveActor

// MasterOfPuppetsActor spawns and supervises the actor tree, fans out
// health checks and routes MQTT commands to the hive actor.
type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck healthCheckResult
	eventStream        *eventstream.EventStream
	eventStreamSub     *eventstream.Subscription
	hiveActor          *actor.PID
	mqttActor          *actor.PID
	statusCacheActor   *actor.PID
	pollerActor        *actor.PID
	hiveActorProvider  HiveActorProvider
	mqttActorProvider  MQTTActorProvider

	nodeBySlug map[string]string

	logger *zap.Logger
}

type healthCheckResult struct {
	hiveActorHealthy        bool
	mqttActorHealthy        bool
	statusCacheActorHealthy bool
	pollerActorHealthy      bool
	checksReceived          int
	respondTo               *actor.PID
}

type deviceSetChanged struct {
	devices domain.DiscoveredDevices
}

func NewMasterOfPuppetsActor(config config.Config, hiveActorProvider HiveActorProvider, mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:            config,
		behavior:          actor.NewBehavior(),
		stash:             &Stash{},
		logger:            ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:       &eventstream.EventStream{},
		hiveActorProvider: hiveActorProvider,
		mqttActorProvider: mqttActorProvider,
		nodeBySlug:        map[string]string{},
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// track the device set for command routing
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			if ev, ok := value.(domain.DeviceDiscoveryEvent); ok {
				ctx.Send(ctx.Self(), deviceSetChanged{devices: ev.Devices})
			}
		})

		// start Hive child
		hiveActorPID, err := state.startHiveActor(ctx)
		if err != nil {
			panic(err)
		}
		state.hiveActor = hiveActorPID

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start StatusCache child
		statusCachePID, err := state.startStatusCacheActor(ctx)
		if err != nil {
			panic(err)
		}
		state.statusCacheActor = statusCachePID

		// start Poller child
		pollerPID, err := state.startPollerActor(ctx)
		if err != nil {
			panic(err)
		}
		state.pollerActor = pollerPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			_, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		// Hive Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.hiveActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_HIVE,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		// StatusCache Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.statusCacheActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_STATUS_CACHE,
				Healthy: false,
			}
		})
		// Poller Actor Request
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.pollerActor, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_POLLER,
				Healthy: false,
			}
		})

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case deviceSetChanged:
		state.logger.Debug("master@default deviceSetChanged")
		state.updateCommandTargets(msg.devices)
	case domain.GetStatusRequest:
		ctx.RequestWithCustomSender(state.statusCacheActor, msg, ctx.Sender())
	case domain.GetDevicesRequest:
		ctx.RequestWithCustomSender(state.statusCacheActor, msg, ctx.Sender())
	case domain.SetTargetTemperatureRequest:
		ctx.RequestWithCustomSender(state.hiveActor, msg, ctx.Sender())
	case domain.SetBoostRequest:
		ctx.RequestWithCustomSender(state.hiveActor, msg, ctx.Sender())
	case adactor.ParsedCommand:
		// redirect parsedCommand to the hive actor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			state.routeCommand(ctx, *msg.Command)
		}
	case domain.SetTargetTemperatureResponse:
		// a write went through, refresh the snapshot
		if msg.HasResponseError() {
			state.logger.Error("master@default SetTargetTemperatureResponse error", zap.Error(msg.GetResponseError()))
		} else {
			ctx.Send(state.statusCacheActor, domain.GetStatusRequest{Force: true})
		}
	case domain.SetBoostResponse:
		if msg.HasResponseError() {
			state.logger.Error("master@default SetBoostResponse error", zap.Error(msg.GetResponseError()))
		} else {
			ctx.Send(state.statusCacheActor, domain.GetStatusRequest{Force: true})
		}
	case *actor.Terminated:
		// if some actor fails on boot, terminate
		if msg.Who.Id == fmt.Sprintf("%s/%s", domain.ACTOR_ID_MASTER, domain.ACTOR_ID_HIVE) {
			state.logger.Error("master@default hive error")
			panic(errors.New("hive terminated"))
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_HIVE:
				state.currentHealthCheck.hiveActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.currentHealthCheck.mqttActorHealthy = true
			case domain.ACTOR_ID_STATUS_CACHE:
				state.currentHealthCheck.statusCacheActorHealthy = true
			case domain.ACTOR_ID_POLLER:
				state.currentHealthCheck.pollerActorHealthy = true
			}
		}
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// updateCommandTargets rebuilds the slug to node id table used to route
// MQTT commands back to remote nodes.
func (state *MasterOfPuppetsActor) updateCommandTargets(devices domain.DiscoveredDevices) {
	table := map[string]string{}
	if devices.Thermostat != nil && devices.Thermostat.HeatingID != "" {
		table[domain.DeviceSlug(devices.Thermostat.HeatingID)] = devices.Thermostat.HeatingID
	}
	for _, valve := range devices.Valves {
		table[domain.DeviceSlug(valve.ID)] = valve.ID
	}
	state.nodeBySlug = table
}

func (state *MasterOfPuppetsActor) routeCommand(ctx actor.Context, cmd mqtt.ParsedMQTTCommand) {
	switch {
	case cmd.Command == "switch" && strings.HasSuffix(cmd.DeviceId, "_"+events.SWITCH_BOOST):
		slug := strings.TrimSuffix(cmd.DeviceId, "_"+events.SWITCH_BOOST)
		nodeID, ok := state.nodeBySlug[slug]
		if !ok {
			state.logger.Warn("master: boost command for unknown device", zap.String("device", cmd.DeviceId))
			return
		}
		ctx.Request(state.hiveActor, domain.SetBoostRequest{
			NodeID:          nodeID,
			On:              strings.EqualFold(cmd.Payload, mqtt.MQTT_PAYLOAD_ON),
			DurationMinutes: DEFAULT_BOOST_MINUTES,
		})
	case cmd.Command == "number" && strings.HasSuffix(cmd.DeviceId, "_"+events.INPUT_NUMBER_TARGET_TEMP):
		slug := strings.TrimSuffix(cmd.DeviceId, "_"+events.INPUT_NUMBER_TARGET_TEMP)
		nodeID, ok := state.nodeBySlug[slug]
		if !ok {
			state.logger.Warn("master: target temperature command for unknown device", zap.String("device", cmd.DeviceId))
			return
		}
		value, err := strconv.ParseFloat(cmd.Payload, 64)
		if err != nil {
			state.logger.Warn("master: invalid target temperature payload", zap.String("payload", cmd.Payload))
			return
		}
		ctx.Request(state.hiveActor, domain.SetTargetTemperatureRequest{
			NodeID: nodeID,
			Value:  value,
		})
	default:
		state.logger.Debug("master: unhandled command", zap.Any("command", cmd))
	}
}

func (state *MasterOfPuppetsActor) startHiveActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	hiveProps := actor.PropsFromProducer(func() actor.Actor {
		return state.hiveActorProvider()
	}, actor.WithSupervisor(supervisor))
	hiveActorPID, err := ctx.SpawnNamed(hiveProps, domain.ACTOR_ID_HIVE)
	if err != nil {
		return nil, err
	}

	return hiveActorPID, nil
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterOfPuppetsActor) startStatusCacheActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	statusCacheProps := actor.PropsFromProducer(func() actor.Actor {
		return NewStatusCacheActor(&state.config, state.hiveActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	statusCachePID, err := ctx.SpawnNamed(statusCacheProps, domain.ACTOR_ID_STATUS_CACHE)
	if err != nil {
		return nil, err
	}

	return statusCachePID, nil
}

func (state *MasterOfPuppetsActor) startPollerActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewAllForOneStrategy(1, 10*time.Second, decider)

	pollerProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&state.config, state.statusCacheActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	pollerPID, err := ctx.SpawnNamed(pollerProps, domain.ACTOR_ID_POLLER)
	if err != nil {
		return nil, err
	}

	return pollerPID, nil
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		log.Printf("handling failure for child. reason: %v", reason)
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.statusCacheActor, state.mqttActor, state.eventStream, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *healthCheckResult) reset() {
	state.hiveActorHealthy = false
	state.mqttActorHealthy = false
	state.statusCacheActorHealthy = false
	state.pollerActorHealthy = false
	state.checksReceived = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived == 4
}

func (state *healthCheckResult) allHealthy() bool {
	return state.hiveActorHealthy && state.mqttActorHealthy &&
		state.statusCacheActorHealthy && state.pollerActorHealthy
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
