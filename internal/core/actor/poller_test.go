package actor

import (
	"errors"
	"sync"
	"testing"
	"time"

	adactor "hive2mqtt/internal/adapter/actor"
	"hive2mqtt/internal/core/domain"
	"hive2mqtt/internal/util"
	"hive2mqtt/internal/util/actorutil"
	"hive2mqtt/pkg/hiveapi"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type availabilityRecorder struct {
	mu     sync.Mutex
	events []domain.DeviceAvailabilityEvent
}

func (r *availabilityRecorder) record(value any) {
	if ev, ok := value.(domain.DeviceAvailabilityEvent); ok {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	}
}

func (r *availabilityRecorder) lastFor(deviceID string) *domain.DeviceAvailabilityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].DeviceID == deviceID {
			ev := r.events[i]
			return &ev
		}
	}
	return nil
}

func TestPollerAvailabilityTracking(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.Monitor.PollIntervalMillis = 200
	cfg.Monitor.PollInitialDelayMillis = 50
	cfg.Monitor.DiscoveryIntervalMillis = 60000
	cfg.Monitor.CacheMaxAgeMillis = 1

	client := hiveapi.CreateTestClient()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()
	context := as.Root

	es := &eventstream.EventStream{}

	recorder := &availabilityRecorder{}
	sub := es.Subscribe(recorder.record)
	defer es.Unsubscribe(sub)

	hiveProps := actor.PropsFromProducer(func() actor.Actor { return adactor.NewHiveActor(client, 15*time.Second, logger) })
	hivePid := context.Spawn(hiveProps)

	cacheProps := actor.PropsFromProducer(func() actor.Actor { return NewStatusCacheActor(&cfg, hivePid, es, logger) })
	cachePid := context.Spawn(cacheProps)

	pollerProps := actor.PropsFromProducer(func() actor.Actor { return NewPollerActor(&cfg, cachePid, es, logger) })
	pollerPid := context.Spawn(pollerProps)
	defer context.Stop(pollerPid)

	// first rounds succeed, devices announce as online
	time.Sleep(1 * time.Second)

	heating := recorder.lastFor("H1")
	if assert.NotNil(heating, "thermostat availability announced") {
		assert.True(heating.Online, "thermostat online")
	}
	valve := recorder.lastFor("V1")
	if assert.NotNil(valve, "valve availability announced") {
		assert.True(valve.Online, "valve online")
	}

	// upstream goes down, streak of failed rounds marks devices offline
	client.SetErr(errors.New("upstream down"))
	time.Sleep(2 * time.Second)

	heating = recorder.lastFor("H1")
	if assert.NotNil(heating) {
		assert.False(heating.Online, "thermostat offline after failures")
	}

	// recovery flips availability back
	client.SetErr(nil)
	time.Sleep(1 * time.Second)

	heating = recorder.lastFor("H1")
	if assert.NotNil(heating) {
		assert.True(heating.Online, "thermostat online after recovery")
	}
}
