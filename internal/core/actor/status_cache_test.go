package actor

import (
	"errors"
	"testing"
	"time"

	adactor "hive2mqtt/internal/adapter/actor"
	"hive2mqtt/internal/config"
	"hive2mqtt/internal/core/domain"
	"hive2mqtt/internal/util"
	"hive2mqtt/internal/util/actorutil"
	"hive2mqtt/pkg/hiveapi"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func spawnStatusCache(t *testing.T, client *hiveapi.TestClient) (*actor.ActorSystem, *actor.RootContext, *actor.PID, *eventstream.EventStream) {
	t.Helper()
	return spawnStatusCacheWithConfig(t, client, util.LoadTestConfig())
}

func spawnStatusCacheWithConfig(t *testing.T, client *hiveapi.TestClient, cfg config.Config) (*actor.ActorSystem, *actor.RootContext, *actor.PID, *eventstream.EventStream) {
	t.Helper()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	es := &eventstream.EventStream{}

	hiveProps := actor.PropsFromProducer(func() actor.Actor { return adactor.NewHiveActor(client, 15*time.Second, logger) })
	hivePid := context.Spawn(hiveProps)

	cacheProps := actor.PropsFromProducer(func() actor.Actor { return NewStatusCacheActor(&cfg, hivePid, es, logger) })
	cachePid := context.Spawn(cacheProps)

	time.Sleep(500 * time.Millisecond)

	return as, context, cachePid, es
}

func TestStatusCacheSingleFlight(t *testing.T) {

	assert := assert.New(t)

	client := hiveapi.CreateTestClient()
	client.Delay = 500 * time.Millisecond

	as, context, cachePid, _ := spawnStatusCache(t, client)
	defer as.Shutdown()

	futures := make([]*actor.Future, 5)
	for i := range futures {
		futures[i] = context.RequestFuture(cachePid, domain.GetStatusRequest{Force: true}, 15*time.Second)
	}

	for _, future := range futures {
		result, err := future.Result()
		if err != nil {
			t.Error(err)
			return
		}
		resp := result.(domain.GetStatusResponse)
		assert.False(resp.HasResponseError(), "status error")
		assert.True(resp.Snapshot.IsValid, "snapshot valid")
		assert.NotNil(resp.Snapshot.Reading("H1"), "thermostat reading")
	}

	assert.Equal(1, client.ListCalls(), "coalesced remote calls")
}

func TestStatusCacheServesCachedSnapshot(t *testing.T) {

	assert := assert.New(t)

	client := hiveapi.CreateTestClient()

	as, context, cachePid, _ := spawnStatusCache(t, client)
	defer as.Shutdown()

	for i := 0; i < 2; i++ {
		result, err := context.RequestFuture(cachePid, domain.GetStatusRequest{}, 15*time.Second).Result()
		if err != nil {
			t.Error(err)
			return
		}
		resp := result.(domain.GetStatusResponse)
		assert.True(resp.Snapshot.IsValid, "snapshot valid")
	}

	assert.Equal(1, client.ListCalls(), "second request served from cache")
}

func TestStatusCacheForceBypassesCache(t *testing.T) {

	assert := assert.New(t)

	client := hiveapi.CreateTestClient()

	as, context, cachePid, _ := spawnStatusCache(t, client)
	defer as.Shutdown()

	_, err := context.RequestFuture(cachePid, domain.GetStatusRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}

	result, err := context.RequestFuture(cachePid, domain.GetStatusRequest{Force: true}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetStatusResponse)
	assert.True(resp.Snapshot.IsValid, "snapshot valid")

	assert.Equal(2, client.ListCalls(), "forced refresh hits remote")
}

func TestStatusCacheInvalidSnapshotOnFailure(t *testing.T) {

	assert := assert.New(t)

	client := hiveapi.CreateTestClient()
	client.SetErr(errors.New("upstream down"))

	as, context, cachePid, _ := spawnStatusCache(t, client)
	defer as.Shutdown()

	result, err := context.RequestFuture(cachePid, domain.GetStatusRequest{Force: true}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetStatusResponse)
	assert.True(resp.HasResponseError(), "status error")
	assert.False(resp.Snapshot.IsValid, "snapshot invalid")
}

func TestStatusCacheWaitCeilingYieldsInvalidSnapshot(t *testing.T) {

	assert := assert.New(t)

	client := hiveapi.CreateTestClient()
	client.Delay = 2 * time.Second

	cfg := util.LoadTestConfig()
	cfg.Monitor.StatusWaitCeilingMillis = 300

	as, context, cachePid, _ := spawnStatusCacheWithConfig(t, client, cfg)
	defer as.Shutdown()

	futures := make([]*actor.Future, 3)
	for i := range futures {
		futures[i] = context.RequestFuture(cachePid, domain.GetStatusRequest{Force: true}, 15*time.Second)
	}

	for _, future := range futures {
		result, err := future.Result()
		if err != nil {
			t.Error(err)
			return
		}
		resp := result.(domain.GetStatusResponse)
		assert.True(resp.HasResponseError(), "ceiling expiry reported as error")
		assert.False(resp.Snapshot.IsValid, "snapshot invalid after ceiling expiry")
	}

	// the fetch state must be cleared: once the slow call drains, a new
	// request goes through and succeeds
	time.Sleep(2 * time.Second)
	client.SetDelay(0)

	result, err := context.RequestFuture(cachePid, domain.GetStatusRequest{Force: true}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetStatusResponse)
	assert.False(resp.HasResponseError(), "status error after recovery")
	assert.True(resp.Snapshot.IsValid, "snapshot valid after recovery")
	assert.Equal(2, client.ListCalls(), "one coalesced slow call plus one retry")
}

func TestStatusCacheBridgeStateOnLoginFailure(t *testing.T) {

	assert := assert.New(t)

	client := hiveapi.CreateTestClient()
	client.SetErr(hiveapi.ErrLoginFailed)

	as, context, cachePid, es := spawnStatusCache(t, client)
	defer as.Shutdown()

	bridgeState := make(chan bool, 2)
	sub := es.Subscribe(func(value any) {
		if ev, ok := value.(domain.BridgeStateUpdateEvent); ok {
			select {
			case bridgeState <- ev.Value:
			default:
			}
		}
	})
	defer es.Unsubscribe(sub)

	result, err := context.RequestFuture(cachePid, domain.GetStatusRequest{Force: true}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetStatusResponse)
	assert.True(resp.HasResponseError(), "login failure reported")

	select {
	case online := <-bridgeState:
		assert.False(online, "bridge marked offline on login failure")
	case <-time.After(5 * time.Second):
		t.Error("no bridge state event on login failure")
	}

	// recovery flips the bridge back online
	client.SetErr(nil)
	_, err = context.RequestFuture(cachePid, domain.GetStatusRequest{Force: true}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}

	select {
	case online := <-bridgeState:
		assert.True(online, "bridge back online after recovery")
	case <-time.After(5 * time.Second):
		t.Error("no bridge state event on recovery")
	}
}

func TestStatusCacheDevices(t *testing.T) {

	assert := assert.New(t)

	client := hiveapi.CreateTestClient()

	as, context, cachePid, _ := spawnStatusCache(t, client)
	defer as.Shutdown()

	result, err := context.RequestFuture(cachePid, domain.GetDevicesRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetDevicesResponse)
	assert.False(resp.HasResponseError(), "devices error")
	if assert.NotNil(resp.Devices.Thermostat, "thermostat discovered") {
		assert.Equal("H1", resp.Devices.Thermostat.HeatingID, "heating node")
	}
	assert.Equal(1, len(resp.Devices.Valves), "valve count")
}

func TestStatusCacheDiscoveryEvent(t *testing.T) {

	assert := assert.New(t)

	client := hiveapi.CreateTestClient()

	as, context, cachePid, es := spawnStatusCache(t, client)
	defer as.Shutdown()

	discovered := make(chan domain.DiscoveredDevices, 1)
	sub := es.Subscribe(func(value any) {
		if ev, ok := value.(domain.DeviceDiscoveryEvent); ok {
			select {
			case discovered <- ev.Devices:
			default:
			}
		}
	})
	defer es.Unsubscribe(sub)

	_, err := context.RequestFuture(cachePid, domain.GetStatusRequest{Force: true}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}

	select {
	case devices := <-discovered:
		assert.NotNil(devices.Thermostat, "discovered thermostat")
	case <-time.After(5 * time.Second):
		t.Error("no discovery event published")
	}
}
