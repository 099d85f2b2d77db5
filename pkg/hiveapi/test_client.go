package hiveapi

import (
	"sync"
	"time"
)

// TestClient is a canned in-memory Client for tests.
type TestClient struct {
	mu    sync.Mutex
	Nodes []Node
	Err   error
	// Delay is applied to each ListNodes call before returning, to keep
	// a fetch in flight while concurrent callers arrive.
	Delay time.Duration

	listCalls   int
	targetCalls []TargetTemperatureCall
}

type TargetTemperatureCall struct {
	NodeID string
	Value  float64
}

func CreateTestClient() *TestClient {
	return &TestClient{Nodes: TestNodes()}
}

func (c *TestClient) ListNodes() ([]Node, error) {
	c.mu.Lock()
	delay := c.Delay
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalls++
	if c.Err != nil {
		return nil, c.Err
	}
	nodes := make([]Node, len(c.Nodes))
	copy(nodes, c.Nodes)
	return nodes, nil
}

func (c *TestClient) SetTargetTemperature(nodeID string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.targetCalls = append(c.targetCalls, TargetTemperatureCall{NodeID: nodeID, Value: value})
	return nil
}

func (c *TestClient) SetBoost(nodeID string, on bool, durationMinutes int) error {
	return nil
}

func (c *TestClient) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

func (c *TestClient) SetDelay(delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Delay = delay
}

func (c *TestClient) ListCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listCalls
}

func (c *TestClient) TargetTemperatureCalls() []TargetTemperatureCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	calls := make([]TargetTemperatureCall, len(c.targetCalls))
	copy(calls, c.targetCalls)
	return calls
}

// TestNodes is one account's node list: a thermostat UI node, its
// heating node and one radiator valve.
func TestNodes() []Node {
	return []Node{
		TestUINode("U1"),
		TestHeatingNode("H1", 19.5, 21.0, "SCHEDULE"),
		TestValveNode("V1", "Living Room TRV"),
	}
}

func TestUINode(id string) Node {
	return Node{
		ID:       id,
		Name:     "Thermostat UI",
		NodeType: NodeTypeThermostatUI,
		Features: map[string]Feature{
			FeatureBatteryDevice: {
				AttrBatteryLevel: Attribute{ReportedValue: 78.0, DisplayValue: "78"},
			},
		},
	}
}

func TestHeatingNode(id string, current, target float64, mode string) Node {
	return Node{
		ID:       id,
		Name:     "Your Receiver",
		NodeType: NodeTypeThermostat,
		Features: map[string]Feature{
			FeatureDeviceManagement: {
				AttrProductType: Attribute{ReportedValue: ProductTypeHeating, DisplayValue: ProductTypeHeating},
			},
			FeatureTemperatureSensor: {
				AttrTemperature: Attribute{ReportedValue: current, DisplayValue: current},
			},
			FeatureHeatingThermostat: {
				AttrTargetHeatTemperature: Attribute{ReportedValue: target, DisplayValue: target},
				AttrOperatingState:        Attribute{ReportedValue: "OFF", DisplayValue: "OFF"},
				AttrOperatingMode:         Attribute{ReportedValue: mode, DisplayValue: mode},
				AttrTemporaryOverride:     Attribute{ReportedValue: "NONE", DisplayValue: "NONE"},
			},
		},
	}
}

func TestHotWaterNode(id string) Node {
	return Node{
		ID:       id,
		Name:     "Hot Water",
		NodeType: NodeTypeThermostat,
		Features: map[string]Feature{
			FeatureDeviceManagement: {
				AttrProductType: Attribute{ReportedValue: ProductTypeHotWater, DisplayValue: ProductTypeHotWater},
			},
			FeatureWaterHeater: {
				AttrOperatingState: Attribute{ReportedValue: "OFF", DisplayValue: "OFF"},
			},
		},
	}
}

func TestValveNode(id, name string) Node {
	return Node{
		ID:       id,
		Name:     name,
		NodeType: NodeTypeTRV,
		Features: map[string]Feature{
			FeatureTemperatureSensor: {
				AttrTemperature: Attribute{ReportedValue: 18.0, DisplayValue: 18.0},
			},
			FeatureHeatingThermostat: {
				AttrTargetHeatTemperature: Attribute{ReportedValue: 20.0, DisplayValue: 20.0},
				AttrOperatingState:        Attribute{ReportedValue: "OFF", DisplayValue: "OFF"},
				AttrOperatingMode:         Attribute{ReportedValue: "SCHEDULE", DisplayValue: "SCHEDULE"},
				AttrTemporaryOverride:     Attribute{ReportedValue: "NONE", DisplayValue: "NONE"},
			},
			FeatureBatteryDevice: {
				AttrBatteryLevel: Attribute{ReportedValue: 64.0, DisplayValue: "64"},
			},
		},
	}
}
