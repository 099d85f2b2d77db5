package service

import (
	"hive2mqtt/internal/core/domain"
	"hive2mqtt/pkg/hiveapi"

	"go.uber.org/zap"
)

// NodeClassifier folds a raw node list into logical devices. The fold
// is order-dependent on purpose: for every thermostat role the first
// matching node wins and later candidates are ignored, so one account
// always yields at most one logical thermostat.
type NodeClassifier struct {
	Logger *zap.Logger
}

func (c *NodeClassifier) Classify(nodes []hiveapi.Node) domain.DiscoveredDevices {
	var ui, heating, hotWater *hiveapi.Node
	var valves []domain.RadiatorValve

	for i := range nodes {
		node := &nodes[i]
		switch node.NodeType {
		case hiveapi.NodeTypeThermostatUI:
			if ui != nil {
				c.Logger.Debug("classifier: extra UI node ignored", zap.String("node", node.ID))
				continue
			}
			ui = node
		case hiveapi.NodeTypeThermostat:
			switch productType(node) {
			case hiveapi.ProductTypeHeating:
				if heating != nil {
					c.Logger.Debug("classifier: extra heating node ignored", zap.String("node", node.ID))
					continue
				}
				heating = node
			case hiveapi.ProductTypeHotWater:
				if hotWater != nil {
					c.Logger.Debug("classifier: extra hot water node ignored", zap.String("node", node.ID))
					continue
				}
				hotWater = node
			default:
				c.Logger.Debug("classifier: thermostat node without product type ignored",
					zap.String("node", node.ID))
			}
		case hiveapi.NodeTypeTRV:
			valves = append(valves, domain.RadiatorValve{
				ID:   node.ID,
				Name: node.Name,
			})
		}
	}

	devices := domain.DiscoveredDevices{Valves: valves}

	// The UI node is the thermostat's identity. Heating or hot water
	// nodes without one are unlinkable and dropped for this cycle.
	if ui == nil {
		if heating != nil || hotWater != nil {
			c.Logger.Warn("classifier: heating/hot water nodes present but no UI node, no thermostat built")
		}
		return devices
	}

	thermostat := &domain.Thermostat{
		UIID: ui.ID,
		Name: ui.Name,
	}
	if heating != nil {
		thermostat.HeatingID = heating.ID
	}
	if hotWater != nil {
		thermostat.HotWaterID = hotWater.ID
	}
	devices.Thermostat = thermostat
	return devices
}

func productType(node *hiveapi.Node) string {
	attr, ok := node.Attribute(hiveapi.FeatureDeviceManagement, hiveapi.AttrProductType)
	if !ok {
		return ""
	}
	return attr.ReportedString()
}
