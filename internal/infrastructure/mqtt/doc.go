// Package mqtt provides MQTT client connectivity for Gray Logic Valves.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// MQTT is the only path to hardware. Entity state arrives from Gray Logic
// protocol bridges (graylogic/state/...) and from zigbee2mqtt; valve
// writes leave as bridge commands or zigbee2mqtt set messages.
//
//	valves service ↔ MQTT broker ↔ bridges / zigbee2mqtt ↔ radiator valves
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllBridgeStates(), 1, store.HandleBridgeState)
//
//	topic := mqtt.Topics{}.BridgeCommand("homematic", "bedroom_trv")
//	client.Publish(topic, payload, 1, false)
package mqtt
