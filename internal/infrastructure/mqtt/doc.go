// Package mqtt provides MQTT client connectivity for the central server.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Devices announce themselves and report measurements over MQTT; the
// central server subscribes to those topics and publishes registration
// directives and actuator commands back.
//
//	Devices ↔ MQTT Broker ↔ Central Server ↔ Dashboards (WebSocket)
//
// Subscriptions are tracked and restored after every reconnect, and message
// handlers run behind panic recovery so one bad payload cannot take the
// client down.
//
// # Security Considerations
//
//   - TLS should be enabled for deployments outside a lab network (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Fleet.Namespace)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("fse2021/200012345/devices/+", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish("fse2021/200012345/kitchen/command", []byte(`{"out":1}`), 1, false)
package mqtt
