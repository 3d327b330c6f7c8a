// Package mqtt provides a transport-level MQTT client for a room controller.
//
// This package manages:
//   - Connection to the room's broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Connection health monitoring
//
// It knows nothing about the room's topic namespace, device catalog, or
// feedback semantics — that domain logic lives in internal/mqttcoord, which
// wraps this client. This package only moves bytes.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff with a configurable ceiling
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.ClientID())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("devices/+/status", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish("room1/light", []byte(`{"id":"hall-light","on":true}`), 1, false)
package mqtt
