package actor

import (
	"errors"
	"fmt"
	"time"

	"hive2mqtt/internal/config"
	"hive2mqtt/internal/core/domain"
	"hive2mqtt/internal/core/events"
	"hive2mqtt/internal/core/service"
	. "hive2mqtt/internal/util/actorutil"
	"hive2mqtt/pkg/hiveapi"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// StatusCacheActor owns the last classified devices and the last status
// snapshot. Concurrent status requests coalesce into a single upstream
// fetch: every request received while a fetch is in flight is answered
// exactly once by that fetch's outcome.
type StatusCacheActor struct {
	behavior actor.Behavior
	stash    *Stash

	config      *config.Config
	hiveActor   *actor.PID
	eventStream *eventstream.EventStream
	classifier  service.NodeClassifier
	deriver     service.ReadingDeriver

	devices  domain.DiscoveredDevices
	snapshot domain.StatusSnapshot

	// bridgeOffline is set after a login rejection so the bridge state
	// topic flips to offline exactly once, and back on recovery.
	bridgeOffline bool

	statusWaiters []*actor.PID
	deviceWaiters []*actor.PID

	logger *zap.Logger
}

func NewStatusCacheActor(config *config.Config, hiveActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *StatusCacheActor {
	logger = ActorLogger(domain.ACTOR_ID_STATUS_CACHE, logger)
	act := &StatusCacheActor{
		config:      config,
		hiveActor:   hiveActor,
		eventStream: eventStream,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		classifier:  service.NodeClassifier{Logger: logger},
		deriver:     service.ReadingDeriver{Logger: logger},
		logger:      logger,
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *StatusCacheActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *StatusCacheActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("statuscache@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_STATUS_CACHE,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetStatusRequest:
		if !msg.Force && state.snapshotFresh() {
			state.logger.Debug("statuscache@default GetStatusRequest cache hit")
			ForRequest(msg).Respond(ctx, domain.GetStatusResponse{Snapshot: state.snapshot})
			return
		}
		state.logger.Debug("statuscache@default GetStatusRequest fetch", zap.Bool("force", msg.Force))
		state.addStatusWaiter(ForRequest(msg).ReplyTo(ctx))
		state.startFetch(ctx)
	case domain.GetDevicesRequest:
		if !state.devices.Empty() {
			state.logger.Debug("statuscache@default GetDevicesRequest cache hit")
			ForRequest(msg).Respond(ctx, domain.GetDevicesResponse{Devices: state.devices})
			return
		}
		state.logger.Debug("statuscache@default GetDevicesRequest fetch")
		state.addDeviceWaiter(ForRequest(msg).ReplyTo(ctx))
		state.startFetch(ctx)
	default:
		state.logger.Debug("statuscache@default ignore", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// FetchingReceive coalesces requests while a fetch is in flight instead
// of stashing them, so one upstream call answers every caller.
func (state *StatusCacheActor) FetchingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetStatusRequest:
		state.logger.Debug("statuscache@fetching GetStatusRequest coalesced")
		state.addStatusWaiter(ForRequest(msg).ReplyTo(ctx))
	case domain.GetDevicesRequest:
		state.logger.Debug("statuscache@fetching GetDevicesRequest coalesced")
		state.addDeviceWaiter(ForRequest(msg).ReplyTo(ctx))
	case domain.FetchNodesResponse:
		if msg.HasResponseError() {
			state.fetchFailed(ctx, msg)
		} else {
			state.fetchSucceeded(ctx, msg)
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("statuscache@fetching stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *StatusCacheActor) startFetch(ctx actor.Context) {
	timeout := time.Duration(state.config.Monitor.StatusWaitCeilingMillis) * time.Millisecond
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.hiveActor, domain.FetchNodesRequest{}, timeout), func(err error) any {
		return domain.FetchNodesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
	state.behavior.BecomeStacked(state.FetchingReceive)
}

func (state *StatusCacheActor) fetchFailed(ctx actor.Context, msg domain.FetchNodesResponse) {
	state.logger.Error("statuscache@fetching FetchNodesResponse error", zap.Error(msg.GetResponseError()))
	if errors.Is(msg.GetResponseError(), hiveapi.ErrLoginFailed) && !state.bridgeOffline {
		state.logger.Error("statuscache: login rejected, marking bridge offline (configuration error)")
		state.bridgeOffline = true
		state.eventStream.Publish(domain.BridgeStateUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: events.SENSOR_ID_BRIDGE_STATE},
			Value:                  false,
		})
	}
	// The last good snapshot stays cached; waiters of this fetch get an
	// invalid one so they never block past the fetch outcome.
	invalid := domain.StatusSnapshot{IsValid: false, FetchedAt: time.Now()}
	for _, waiter := range state.statusWaiters {
		ctx.Send(waiter, domain.GetStatusResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: msg.GetResponseError(),
			},
			Snapshot: invalid,
		})
	}
	for _, waiter := range state.deviceWaiters {
		ctx.Send(waiter, domain.GetDevicesResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: msg.GetResponseError(),
			},
			Devices: state.devices,
		})
	}
	state.statusWaiters = nil
	state.deviceWaiters = nil
}

func (state *StatusCacheActor) fetchSucceeded(ctx actor.Context, msg domain.FetchNodesResponse) {
	state.logger.Debug("statuscache@fetching FetchNodesResponse", zap.Int("nodes", len(msg.Nodes)))

	if state.bridgeOffline {
		state.logger.Info("statuscache: fetch recovered, marking bridge online")
		state.bridgeOffline = false
		state.eventStream.Publish(domain.BridgeStateUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: events.SENSOR_ID_BRIDGE_STATE},
			Value:                  true,
		})
	}

	devices := state.classifier.Classify(msg.Nodes)
	if !sameDevices(state.devices, devices) {
		state.logger.Info("statuscache: device set changed",
			zap.Bool("thermostat", devices.Thermostat != nil),
			zap.Int("valves", len(devices.Valves)))
		state.eventStream.Publish(domain.DeviceDiscoveryEvent{Devices: devices})
	}
	state.devices = devices

	state.snapshot = domain.StatusSnapshot{
		Readings:  state.deriver.Derive(devices, msg.Nodes),
		IsValid:   true,
		FetchedAt: time.Now(),
	}

	for _, ev := range events.SnapshotToUpdateEvents(state.snapshot) {
		state.eventStream.Publish(ev)
	}

	for _, waiter := range state.statusWaiters {
		ctx.Send(waiter, domain.GetStatusResponse{Snapshot: state.snapshot})
	}
	for _, waiter := range state.deviceWaiters {
		ctx.Send(waiter, domain.GetDevicesResponse{Devices: state.devices})
	}
	state.statusWaiters = nil
	state.deviceWaiters = nil
}

func (state *StatusCacheActor) snapshotFresh() bool {
	if !state.snapshot.IsValid {
		return false
	}
	maxAge := time.Duration(state.config.Monitor.CacheMaxAgeMillis) * time.Millisecond
	return time.Since(state.snapshot.FetchedAt) < maxAge
}

func (state *StatusCacheActor) addStatusWaiter(pid *actor.PID) {
	// fire-and-forget refreshes have no reply target
	if pid != nil {
		state.statusWaiters = append(state.statusWaiters, pid)
	}
}

func (state *StatusCacheActor) addDeviceWaiter(pid *actor.PID) {
	if pid != nil {
		state.deviceWaiters = append(state.deviceWaiters, pid)
	}
}

func sameDevices(a, b domain.DiscoveredDevices) bool {
	if (a.Thermostat == nil) != (b.Thermostat == nil) {
		return false
	}
	if a.Thermostat != nil && *a.Thermostat != *b.Thermostat {
		return false
	}
	if len(a.Valves) != len(b.Valves) {
		return false
	}
	for i := range a.Valves {
		if a.Valves[i] != b.Valves[i] {
			return false
		}
	}
	return true
}
