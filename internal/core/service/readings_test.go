package service

import (
	"testing"
	"time"

	"hive2mqtt/internal/core/domain"
	"hive2mqtt/pkg/hiveapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDeriver(now time.Time) *ReadingDeriver {
	return &ReadingDeriver{
		Logger: zap.NewNop(),
		Now:    func() time.Time { return now },
	}
}

func classifyAndDerive(t *testing.T, d *ReadingDeriver, nodes []hiveapi.Node) []domain.DeviceReading {
	t.Helper()
	devices := testClassifier().Classify(nodes)
	return d.Derive(devices, nodes)
}

func withHeatingAttr(node hiveapi.Node, attr string, value any) hiveapi.Node {
	node.Features[hiveapi.FeatureHeatingThermostat][attr] = hiveapi.Attribute{ReportedValue: value, DisplayValue: value}
	return node
}

func boostedHeatingNode(id string, reason, endDatetime string) hiveapi.Node {
	node := hiveapi.TestHeatingNode(id, 19.5, 22.0, "SCHEDULE")
	node = withHeatingAttr(node, hiveapi.AttrTemporaryOverride, hiveapi.OverrideTransient)
	if reason != "" {
		node = withHeatingAttr(node, hiveapi.AttrOperatingStateReason, reason)
	}
	if endDatetime != "" {
		node.Features[hiveapi.FeatureTransientMode] = hiveapi.Feature{
			hiveapi.AttrEndDatetime: hiveapi.Attribute{ReportedValue: endDatetime, DisplayValue: endDatetime},
		}
	}
	return node
}

func TestDeriveScheduledThermostat(t *testing.T) {

	require := require.New(t)

	d := testDeriver(time.Now())
	readings := classifyAndDerive(t, d, hiveapi.TestNodes())

	require.Len(readings, 2)

	thermo := readings[0]
	assert.Equal(t, "H1", thermo.DeviceID)
	assert.Equal(t, 19.5, thermo.Current)
	assert.Equal(t, 21.0, thermo.Target)
	assert.Equal(t, "SCHEDULE", thermo.Status)
	assert.False(t, thermo.Heating)
	assert.False(t, thermo.Override)
	require.NotNil(thermo.BatteryLevel)
	assert.Equal(t, 78.0, *thermo.BatteryLevel)
	assert.Nil(t, thermo.HotWaterOn)

	valve := readings[1]
	assert.Equal(t, "V1", valve.DeviceID)
	assert.Equal(t, 18.0, valve.Current)
	assert.Equal(t, 20.0, valve.Target)
	require.NotNil(valve.BatteryLevel)
	assert.Equal(t, 64.0, *valve.BatteryLevel)
}

func TestDeriveHeatingRelayOn(t *testing.T) {

	nodes := []hiveapi.Node{
		hiveapi.TestUINode("U1"),
		withHeatingAttr(hiveapi.TestHeatingNode("H1", 19.5, 21.0, "MANUAL"),
			hiveapi.AttrOperatingState, hiveapi.OperatingStateHeat),
	}

	readings := classifyAndDerive(t, testDeriver(time.Now()), nodes)

	require.Len(t, readings, 1)
	assert.True(t, readings[0].Heating)
	assert.Equal(t, "MANUAL", readings[0].Status)
}

func TestDeriveUserBoostCountdown(t *testing.T) {

	require := require.New(t)

	// end 14:32:45, now 14:00:00 -> 32 whole minutes left
	now := time.Date(2023, 11, 4, 14, 0, 0, 0, time.UTC)
	nodes := []hiveapi.Node{
		hiveapi.TestUINode("U1"),
		boostedHeatingNode("H1", "", "2023-11-04T14:32:45.000+0000"),
	}

	readings := classifyAndDerive(t, testDeriver(now), nodes)

	require.Len(readings, 1)
	r := readings[0]
	assert.Equal(t, StatusBoost, r.Status)
	assert.True(t, r.Override)
	assert.False(t, r.OverrideReadOnly)
	assert.Equal(t, int64(32), r.OverrideRemaining)
}

func TestDeriveExpiredBoostClampsToZero(t *testing.T) {

	now := time.Date(2023, 11, 4, 15, 0, 0, 0, time.UTC)
	nodes := []hiveapi.Node{
		hiveapi.TestUINode("U1"),
		boostedHeatingNode("H1", "", "2023-11-04T14:32:45.000+0000"),
	}

	readings := classifyAndDerive(t, testDeriver(now), nodes)

	require.Len(t, readings, 1)
	assert.Equal(t, int64(0), readings[0].OverrideRemaining)
}

func TestDeriveInterlockOverride(t *testing.T) {

	require := require.New(t)

	nodes := []hiveapi.Node{
		hiveapi.TestUINode("U1"),
		boostedHeatingNode("H1", hiveapi.ReasonBoilerModuleInterlock, ""),
	}

	readings := classifyAndDerive(t, testDeriver(time.Now()), nodes)

	require.Len(readings, 1)
	r := readings[0]
	assert.Equal(t, StatusTRVInterlock, r.Status)
	assert.True(t, r.Override)
	assert.True(t, r.OverrideReadOnly)
	assert.Equal(t, int64(0), r.OverrideRemaining)
}

func TestDeriveHotWaterRelay(t *testing.T) {

	require := require.New(t)

	hw := hiveapi.TestHotWaterNode("W1")
	hw.Features[hiveapi.FeatureWaterHeater][hiveapi.AttrOperatingState] =
		hiveapi.Attribute{ReportedValue: "ON", DisplayValue: "ON"}
	nodes := []hiveapi.Node{
		hiveapi.TestUINode("U1"),
		hiveapi.TestHeatingNode("H1", 19.5, 21.0, "SCHEDULE"),
		hw,
	}

	readings := classifyAndDerive(t, testDeriver(time.Now()), nodes)

	require.Len(readings, 1)
	require.NotNil(readings[0].HotWaterOn)
	assert.True(t, *readings[0].HotWaterOn)
}

func TestDeriveMalformedNodeDoesNotBlockOthers(t *testing.T) {

	require := require.New(t)

	broken := hiveapi.TestHeatingNode("H1", 19.5, 21.0, "SCHEDULE")
	delete(broken.Features, hiveapi.FeatureTemperatureSensor)
	nodes := []hiveapi.Node{
		hiveapi.TestUINode("U1"),
		broken,
		hiveapi.TestValveNode("V1", "Hall TRV"),
	}

	readings := classifyAndDerive(t, testDeriver(time.Now()), nodes)

	// the broken heating node yields nothing, the valve still reads
	require.Len(readings, 1)
	assert.Equal(t, "V1", readings[0].DeviceID)
}

func TestDeriveUnparseableBoostEndDropsReading(t *testing.T) {

	nodes := []hiveapi.Node{
		hiveapi.TestUINode("U1"),
		boostedHeatingNode("H1", "", "not-a-timestamp"),
		hiveapi.TestValveNode("V1", "Hall TRV"),
	}

	readings := classifyAndDerive(t, testDeriver(time.Now()), nodes)

	require.Len(t, readings, 1)
	assert.Equal(t, "V1", readings[0].DeviceID)
}

func TestDeriveUIOnlyThermostatHasNoReading(t *testing.T) {

	readings := classifyAndDerive(t, testDeriver(time.Now()), []hiveapi.Node{hiveapi.TestUINode("U1")})

	assert.Empty(t, readings)
}
