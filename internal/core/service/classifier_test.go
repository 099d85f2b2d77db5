package service

import (
	"testing"

	"hive2mqtt/pkg/hiveapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClassifier() *NodeClassifier {
	return &NodeClassifier{Logger: zap.NewNop()}
}

func TestClassifyFullAccount(t *testing.T) {

	require := require.New(t)

	nodes := []hiveapi.Node{
		hiveapi.TestUINode("U1"),
		hiveapi.TestHeatingNode("H1", 19.5, 21.0, "SCHEDULE"),
		hiveapi.TestHotWaterNode("W1"),
		hiveapi.TestValveNode("V1", "Living Room TRV"),
		hiveapi.TestValveNode("V2", "Bedroom TRV"),
	}

	devices := testClassifier().Classify(nodes)

	require.NotNil(devices.Thermostat)
	assert.Equal(t, "U1", devices.Thermostat.UIID)
	assert.Equal(t, "H1", devices.Thermostat.HeatingID)
	assert.Equal(t, "W1", devices.Thermostat.HotWaterID)
	require.Len(devices.Valves, 2)
	assert.Equal(t, "V1", devices.Valves[0].ID)
	assert.Equal(t, "Living Room TRV", devices.Valves[0].Name)
	assert.Equal(t, "V2", devices.Valves[1].ID)
}

func TestClassifyFirstSeenWins(t *testing.T) {

	require := require.New(t)

	nodes := []hiveapi.Node{
		hiveapi.TestHeatingNode("H1", 19.5, 21.0, "SCHEDULE"),
		hiveapi.TestUINode("U1"),
		hiveapi.TestHeatingNode("H2", 18.0, 20.0, "MANUAL"),
		hiveapi.TestUINode("U2"),
		hiveapi.TestHotWaterNode("W1"),
		hiveapi.TestHotWaterNode("W2"),
	}

	devices := testClassifier().Classify(nodes)

	require.NotNil(devices.Thermostat)
	assert.Equal(t, "U1", devices.Thermostat.UIID)
	assert.Equal(t, "H1", devices.Thermostat.HeatingID)
	assert.Equal(t, "W1", devices.Thermostat.HotWaterID)
}

func TestClassifyNoUINodeNoThermostat(t *testing.T) {

	nodes := []hiveapi.Node{
		hiveapi.TestHeatingNode("H1", 19.5, 21.0, "SCHEDULE"),
		hiveapi.TestValveNode("V1", "Hall TRV"),
	}

	devices := testClassifier().Classify(nodes)

	assert.Nil(t, devices.Thermostat)
	assert.Len(t, devices.Valves, 1)
}

func TestClassifyUIOnlyThermostat(t *testing.T) {

	require := require.New(t)

	devices := testClassifier().Classify([]hiveapi.Node{hiveapi.TestUINode("U1")})

	require.NotNil(devices.Thermostat)
	assert.Equal(t, "U1", devices.Thermostat.UIID)
	assert.Empty(t, devices.Thermostat.HeatingID)
	assert.Empty(t, devices.Thermostat.HotWaterID)
}

func TestClassifyDeterministicForFixedOrder(t *testing.T) {

	nodes := []hiveapi.Node{
		hiveapi.TestUINode("U1"),
		hiveapi.TestHeatingNode("H1", 19.5, 21.0, "SCHEDULE"),
		hiveapi.TestHeatingNode("H2", 18.0, 20.0, "MANUAL"),
		hiveapi.TestValveNode("V1", "Hall TRV"),
	}

	first := testClassifier().Classify(nodes)
	for range 10 {
		assert.Equal(t, first, testClassifier().Classify(nodes))
	}
}

func TestClassifyIgnoresThermostatWithoutProductType(t *testing.T) {

	bare := hiveapi.Node{
		ID:       "X1",
		NodeType: hiveapi.NodeTypeThermostat,
	}
	nodes := []hiveapi.Node{bare, hiveapi.TestUINode("U1")}

	devices := testClassifier().Classify(nodes)

	require.NotNil(t, devices.Thermostat)
	assert.Empty(t, devices.Thermostat.HeatingID)
}

func TestClassifyEmptyList(t *testing.T) {

	devices := testClassifier().Classify(nil)

	assert.True(t, devices.Empty())
}
