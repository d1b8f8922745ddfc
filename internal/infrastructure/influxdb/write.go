package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the server.
const (
	measurementDevice = "device_metrics"
	measurementFleet  = "fleet"
)

// WriteDeviceMetric writes a single device reading to InfluxDB.
//
// This is the primary method for recording device telemetry data.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "AA:BB:CC:DD:EE:01")
//   - measurement: The reading kind (e.g., "temperature", "humidity")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteDeviceMetric("AA:BB:CC:DD:EE:01", "temperature", 21.5)
//	client.WriteDeviceMetric("AA:BB:CC:DD:EE:01", "humidity", 40)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	c.writePoint(measurementDevice,
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
	)
}

// WriteFleetStats records the size of the fleet.
//
// Parameters:
//   - active: devices confirmed by a client registration
//   - pending: devices announced but not registered, or soft-deleted
func (c *Client) WriteFleetStats(active, pending int) {
	if !c.IsConnected() {
		return
	}

	c.writePoint(measurementFleet, nil, map[string]interface{}{
		"active":  active,
		"pending": pending,
		"total":   active + pending,
	})
}

// writePoint queues one point stamped now on the batching write API.
func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

