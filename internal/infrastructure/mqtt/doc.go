// Package mqtt provides MQTT connectivity for the field node.
//
// This package manages:
//   - One shared broker connection per node (Session), dialed with backoff
//   - Message publishing with QoS guarantees
//   - Topic subscriptions and per-topic routing of received messages
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// Every device runtime on the node shares one Client. Telemetry goes out
// on /json/{key}/{id}/attrs; commands arrive on /{key}/{id}/cmd and are
// routed to the owning device's handler. Paho delivers routed messages in
// order on a single goroutine, so handlers must not block.
//
//	device runtimes ↔ Channel ↔ Client ↔ MQTT broker ↔ IoT agent
//
// # Security Considerations
//
//   - TLS should be enabled when the broker is not on the local network
//   - Command payloads are not authenticated beyond broker ACLs
//
// # Usage
//
//	session := mqtt.NewSession(cfg.MQTT, cfg.Node.ID, logger)
//	client, err := session.Connect(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	ch := mqtt.NewChannel(client)
//	ch.RegisterHandler(cmdTopic, handleCommand)
//	ch.Subscribe(cmdTopic)
//	ch.Publish(attrsTopic, []byte(`{"t":21.5,"rh":40,"ci":5}`))
package mqtt
