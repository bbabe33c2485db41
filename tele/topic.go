package tele

import (
	"fmt"
	"strconv"
	"strings"
)

const TopicTelemetryAll = "fleet/+/telemetry"

func TopicTelemetry(vehicleID uint16) string { return fmt.Sprintf("fleet/%d/telemetry", vehicleID) }
func TopicCommand(vehicleID uint16) string   { return fmt.Sprintf("fleet/%d/command", vehicleID) }
func ClientID(vehicleID uint16) string       { return fmt.Sprintf("sim_client_%d", vehicleID) }

// ParseTopicVehicle extracts vehicle id from fleet/<id>/<kind> topic.
func ParseTopicVehicle(topic string) (uint16, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "fleet" {
		return 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(id), true
}
