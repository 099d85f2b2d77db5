package actor

import (
	"errors"
	"fmt"
	"time"

	"hive2mqtt/internal/core/domain"
	"hive2mqtt/internal/util/actorutil"
	"hive2mqtt/pkg/hiveapi"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HiveActor serializes all traffic to the omnia API. One remote call
// runs at a time; everything else is stashed until it finishes, which
// keeps the rate-sensitive remote from ever seeing parallel requests
// from this bridge.
type HiveActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	client   hiveapi.Client
	timeout  time.Duration
	// authFailed is set when the remote rejects our credentials and
	// cleared on the next successful call. While set, the actor reports
	// itself unhealthy so the bridge shows up as offline with a
	// configuration error rather than a transient network blip.
	authFailed bool
	logger     *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewHiveActor(client hiveapi.Client, callTimeout time.Duration, logger *zap.Logger) *HiveActor {
	act := &HiveActor{
		client:   client,
		timeout:  callTimeout,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger(domain.ACTOR_ID_HIVE, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HiveActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HiveActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hive@starting started")
		// login is lazy: the first request triggers it
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
	default:
		state.logger.Debug("hive@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HiveActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("hive@default: ActorHealthRequest")
		healthState := "idle"
		if state.authFailed {
			healthState = "auth_failed"
		}
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HIVE,
			Healthy: !state.authFailed,
			State:   healthState,
		})
	case domain.FetchNodesRequest:
		state.logger.Debug("hive@default: FetchNodesRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.fetchNodes),
			mapTaskResult[domain.FetchNodesResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.FetchNodesResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingHive)
	case domain.SetTargetTemperatureRequest:
		state.logger.Debug("hive@default: SetTargetTemperatureRequest",
			zap.String("node", msg.NodeID), zap.Float64("value", msg.Value))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.SetTargetTemperatureResponse {
			a := state.setTargetTemperature(msg.NodeID, msg.Value)
			return &a
		}),
			mapTaskResult[domain.SetTargetTemperatureResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetTargetTemperatureResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingHive)
	case domain.SetBoostRequest:
		state.logger.Debug("hive@default: SetBoostRequest",
			zap.String("node", msg.NodeID), zap.Bool("on", msg.On))
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.SetBoostResponse {
			a := state.setBoost(msg.NodeID, msg.On, msg.DurationMinutes)
			return &a
		}),
			mapTaskResult[domain.SetBoostResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.SetBoostResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingHive)
	default:
		state.logger.Debug("hive@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HiveActor) WaitingHive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("hive@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		// boost writes are disabled remotely, their outcome says nothing
		// about the credentials
		switch resp := msg.message.(type) {
		case domain.FetchNodesResponse:
			state.trackAuthOutcome(resp.GetResponseError())
		case domain.SetTargetTemperatureResponse:
			state.trackAuthOutcome(resp.GetResponseError())
		}
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hive@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HiveActor) trackAuthOutcome(err error) {
	switch {
	case err == nil:
		if state.authFailed {
			state.logger.Info("hive: login recovered, bridge back online")
		}
		state.authFailed = false
	case errors.Is(err, hiveapi.ErrLoginFailed):
		if !state.authFailed {
			state.logger.Error("hive: credentials rejected, marking bridge offline (configuration error)")
		}
		state.authFailed = true
	}
}

func (a *HiveActor) fetchNodes() (*domain.FetchNodesResponse, error) {
	nodes, err := a.client.ListNodes()
	if err != nil {
		a.logger.Error("hive: node fetch failed", zap.Error(err))
		return nil, err
	}
	return &domain.FetchNodesResponse{
		Nodes: nodes,
	}, nil
}

func (a *HiveActor) setTargetTemperature(nodeID string, value float64) domain.SetTargetTemperatureResponse {
	err := a.client.SetTargetTemperature(nodeID, value)
	if err != nil {
		a.logger.Error("hive: set target failed", zap.String("node", nodeID), zap.Error(err))
		return domain.SetTargetTemperatureResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	}
	return domain.SetTargetTemperatureResponse{}
}

func (a *HiveActor) setBoost(nodeID string, on bool, durationMinutes int) domain.SetBoostResponse {
	err := a.client.SetBoost(nodeID, on, durationMinutes)
	if err != nil {
		a.logger.Error("hive: set boost failed", zap.String("node", nodeID), zap.Error(err))
		return domain.SetBoostResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	}
	return domain.SetBoostResponse{}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
