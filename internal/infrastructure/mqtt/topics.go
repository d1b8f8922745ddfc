package mqtt

import "fmt"

// statusLevel is appended to the namespace for the server status topic.
// Its last level is not a measurement kind, so zone subscriptions never
// route it to devices.
const statusLevel = "server/status"

// Topics builds the topics owned by the MQTT client itself.
// Device topics live with the fleet package, which owns their semantics.
//
//	topics := mqtt.Topics{Namespace: "fse2021/200012345"}
//	topics.SystemStatus() // "fse2021/200012345/server/status"
type Topics struct {
	Namespace string
}

// SystemStatus returns the retained server status topic (online/offline/LWT).
//
// Example: fse2021/200012345/server/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/%s", t.Namespace, statusLevel)
}

