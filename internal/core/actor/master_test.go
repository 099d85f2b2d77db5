package actor

import (
	"fmt"
	"testing"
	"time"

	adactor "hive2mqtt/internal/adapter/actor"
	"hive2mqtt/internal/core/domain"
	"hive2mqtt/internal/util"
	"hive2mqtt/pkg/hiveapi"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	client := hiveapi.CreateTestClient()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.HiveActor {
			return adactor.NewHiveActor(client, 15*time.Second, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)
	assert.NotNil(t, healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")

	// status round trip through the master
	res, err = context.RequestFuture(pid, domain.GetStatusRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	statusResp, ok := res.(domain.GetStatusResponse)
	assert.True(t, ok)
	assert.True(t, statusResp.Snapshot.IsValid, "snapshot valid")
	assert.NotNil(t, statusResp.Snapshot.Reading("H1"), "thermostat reading")

	context.Stop(pid)

	as.Shutdown()
}

func TestMasterActorUnhealthyOnAuthFailure(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	client := hiveapi.CreateTestClient()
	client.SetErr(hiveapi.ErrLoginFailed)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.HiveActor {
			return adactor.NewHiveActor(client, 15*time.Second, logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.GetStatusRequest{Force: true}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	statusResp, ok := res.(domain.GetStatusResponse)
	assert.True(t, ok)
	assert.True(t, statusResp.HasResponseError(), "login failure reported")

	// rejected credentials are a configuration error, not a blip: the
	// bridge as a whole must report unhealthy
	res, err = context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.False(t, healthResp.Healthy, "unhealthy while credentials are rejected")

	context.Stop(pid)

	as.Shutdown()
}
