package actor

import (
	"testing"
	"time"

	"hive2mqtt/internal/core/domain"
	"hive2mqtt/internal/util/actorutil"
	"hive2mqtt/pkg/hiveapi"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestFetchNodesHiveActor(t *testing.T) {

	assert := assert.New(t)

	client := hiveapi.CreateTestClient()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewHiveActor(client, 15*time.Second, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.FetchNodesRequest{}
	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.FetchNodesResponse)

	assert.False(resp.HasResponseError(), "fetch error")
	assert.Equal(3, len(resp.Nodes), "node count")
	assert.Equal(1, client.ListCalls(), "remote list calls")

	context.Stop(pid)

	as.Shutdown()
}

func TestHiveActorHealthReflectsAuthFailure(t *testing.T) {

	assert := assert.New(t)

	client := hiveapi.CreateTestClient()
	client.SetErr(hiveapi.ErrLoginFailed)

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewHiveActor(client, 15*time.Second, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	// the rejected login must surface through the health check
	_, err := context.RequestFuture(pid, domain.FetchNodesRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}

	result, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	health := result.(domain.ActorHealthResponse)
	assert.False(health.Healthy, "unhealthy while credentials are rejected")
	assert.Equal("auth_failed", health.State, "health state")

	// a successful call clears the condition
	client.SetErr(nil)
	_, err = context.RequestFuture(pid, domain.FetchNodesRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}

	result, err = context.RequestFuture(pid, domain.ActorHealthRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	health = result.(domain.ActorHealthResponse)
	assert.True(health.Healthy, "healthy again after recovery")
	assert.Equal("idle", health.State, "health state")

	context.Stop(pid)

	as.Shutdown()
}

func TestSetTargetTemperatureHiveActor(t *testing.T) {

	assert := assert.New(t)

	client := hiveapi.CreateTestClient()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewHiveActor(client, 15*time.Second, logger) })
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.SetTargetTemperatureRequest{NodeID: "H1", Value: 21.5}
	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.SetTargetTemperatureResponse)

	assert.False(resp.HasResponseError(), "set target error")

	calls := client.TargetTemperatureCalls()
	if assert.Equal(1, len(calls), "set target calls") {
		assert.Equal("H1", calls[0].NodeID, "set target node")
		assert.Equal(21.5, calls[0].Value, "set target value")
	}

	context.Stop(pid)

	as.Shutdown()
}
