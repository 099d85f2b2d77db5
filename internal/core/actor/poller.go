package actor

import (
	"fmt"
	"time"

	"hive2mqtt/internal/config"
	"hive2mqtt/internal/core/domain"
	. "hive2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// A device is marked offline after more than maxConsecutiveFailures
// refresh rounds without a reading for it.
const maxConsecutiveFailures = 2

// PollerActor drives the refresh loop: a fast tick that forces a status
// fetch and a slower tick that re-reads the discovered device set. It
// tracks per-device failure streaks and publishes availability events.
type PollerActor struct {
	ActorWithStates
	scheduler *scheduler.TimerScheduler
	stash     *Stash

	config      *config.Config
	statusCache *actor.PID
	eventStream *eventstream.EventStream

	devices domain.DiscoveredDevices
	health  map[string]*deviceHealth

	logger *zap.Logger
}

type deviceHealth struct {
	failures  uint
	offline   bool
	announced bool
}

type pollTick struct {
}

type discoveryTick struct {
}

func NewPollerActor(config *config.Config, statusCache *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		config:      config,
		statusCache: statusCache,
		eventStream: eventStream,
		stash:       &Stash{},
		health:      map[string]*deviceHealth{},
		logger:      ActorLogger(domain.ACTOR_ID_POLLER, logger),
		ActorWithStates: ActorWithStates{
			Behavior: actor.NewBehavior(),
		},
	}
	act.Become(PollerStartingState{
		actor: act,
	})
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type PollerStartingState struct {
	ActorState
	actor *PollerActor
}

func (state PollerStartingState) Name() string {
	return "starting"
}

func (state PollerStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("poller@starting started")
		state.actor.scheduler = scheduler.NewTimerScheduler(ctx)
		initialDelay := time.Duration(state.actor.config.Monitor.PollInitialDelayMillis) * time.Millisecond
		state.actor.scheduler.RequestOnce(initialDelay, ctx.Self(), discoveryTick{})
		state.actor.scheduler.RequestOnce(initialDelay, ctx.Self(), pollTick{})
		state.actor.Become(PollerIdleState{
			actor: state.actor,
		})
		state.actor.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.actor.logger.Debug("poller@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state

type PollerIdleState struct {
	ActorState
	actor *PollerActor
}

func (state PollerIdleState) Name() string {
	return "idle"
}

func (state PollerIdleState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.actor.logger.Debug("poller@idle ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POLLER,
			Healthy: true,
			State:   state.Name(),
		})
	case pollTick:
		state.actor.logger.Debug("poller@idle tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.statusCache, domain.GetStatusRequest{Force: true}, state.actor.statusTimeout()), func(err error) any {
			return domain.GetStatusResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		// schedule next tick
		state.actor.scheduler.RequestOnce(time.Duration(state.actor.config.Monitor.PollIntervalMillis)*time.Millisecond, ctx.Self(), pollTick{})
		state.actor.BecomeStacked(PollerWaitingStatusState{
			actor: state.actor,
		})
	case discoveryTick:
		state.actor.logger.Debug("poller@idle discovery tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.actor.statusCache, domain.GetDevicesRequest{}, state.actor.statusTimeout()), func(err error) any {
			return domain.GetDevicesResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.actor.scheduler.RequestOnce(time.Duration(state.actor.config.Monitor.DiscoveryIntervalMillis)*time.Millisecond, ctx.Self(), discoveryTick{})
		state.actor.BecomeStacked(PollerWaitingDevicesState{
			actor: state.actor,
		})
	default:
		state.actor.logger.Debug("poller@idle stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Waiting status state

type PollerWaitingStatusState struct {
	ActorState
	actor *PollerActor
}

func (state PollerWaitingStatusState) Name() string {
	return "waitingStatus"
}

func (state PollerWaitingStatusState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetStatusResponse:
		state.actor.logger.Debug("poller@waitingStatus GetStatusResponse", zap.Bool("valid", msg.Snapshot.IsValid))
		state.actor.trackSnapshot(msg)
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("poller@waitingStatus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Waiting devices state

type PollerWaitingDevicesState struct {
	ActorState
	actor *PollerActor
}

func (state PollerWaitingDevicesState) Name() string {
	return "waitingDevices"
}

func (state PollerWaitingDevicesState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDevicesResponse:
		if msg.HasResponseError() {
			state.actor.logger.Error("poller@waitingDevices GetDevicesResponse error", zap.Error(msg.GetResponseError()))
		} else {
			state.actor.logger.Debug("poller@waitingDevices GetDevicesResponse")
			state.actor.updateDevices(msg.Devices)
		}
		state.actor.UnbecomeStacked()
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("poller@waitingDevices stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) statusTimeout() time.Duration {
	return time.Duration(state.config.Monitor.StatusWaitCeilingMillis)*time.Millisecond + 5*time.Second
}

func (state *PollerActor) trackSnapshot(msg domain.GetStatusResponse) {
	failedRound := msg.HasResponseError() || !msg.Snapshot.IsValid
	for _, id := range state.deviceIDs() {
		if failedRound || msg.Snapshot.Reading(id) == nil {
			state.deviceFailure(id)
		} else {
			state.deviceRecovered(id)
		}
	}
}

func (state *PollerActor) updateDevices(devices domain.DiscoveredDevices) {
	state.devices = devices
	current := map[string]bool{}
	for _, id := range state.deviceIDs() {
		current[id] = true
	}
	for id := range state.health {
		if !current[id] {
			delete(state.health, id)
		}
	}
}

func (state *PollerActor) deviceIDs() []string {
	var ids []string
	if state.devices.Thermostat != nil && state.devices.Thermostat.HeatingID != "" {
		ids = append(ids, state.devices.Thermostat.HeatingID)
	}
	for _, valve := range state.devices.Valves {
		ids = append(ids, valve.ID)
	}
	return ids
}

func (state *PollerActor) deviceFailure(id string) {
	health := state.deviceHealth(id)
	health.failures++
	if health.failures > maxConsecutiveFailures && !health.offline {
		state.logger.Warn("poller: device offline", zap.String("device", id), zap.Uint("failures", health.failures))
		health.offline = true
		health.announced = true
		state.eventStream.Publish(domain.DeviceAvailabilityEvent{DeviceID: id, Online: false})
	}
}

func (state *PollerActor) deviceRecovered(id string) {
	health := state.deviceHealth(id)
	if health.offline || !health.announced {
		if health.offline {
			state.logger.Info("poller: device back online", zap.String("device", id))
		}
		health.announced = true
		state.eventStream.Publish(domain.DeviceAvailabilityEvent{DeviceID: id, Online: true})
	}
	health.offline = false
	health.failures = 0
}

func (state *PollerActor) deviceHealth(id string) *deviceHealth {
	health, ok := state.health[id]
	if !ok {
		health = &deviceHealth{}
		state.health[id] = health
	}
	return health
}
