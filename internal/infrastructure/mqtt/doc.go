// Package mqtt provides MQTT connectivity for StarterKit Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Publishing database operation events and setting changes
//
// # Topics
//
// All topics live under a configurable prefix (default "starterkit"):
//
//	starterkit/system/status               retained online/offline status
//	starterkit/db/operations/{operation}   one message per WithConnection/WithTransaction call
//	starterkit/settings/{key}              retained current value of a setting
//
// # Security Considerations
//
//   - Enable TLS for anything beyond a local broker (cfg.Broker.TLS=true)
//   - Operation payloads carry error text, which may include SQL fragments
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	pub := mqtt.NewOperationPublisher(client, client.Topics(), byte(cfg.MQTT.QoS), cfg.App.Name)
//	go pub.Run(ctx)
//	db.SetObserver(pub)
package mqtt
