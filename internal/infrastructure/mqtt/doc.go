// Package mqtt connects dtuhub to the broker that DTUs publish through.
//
// This package manages:
//   - Connection with auto-reconnect and re-subscription of recorded filters
//   - Retained presence documents (online, planned offline, LWT offline)
//   - Publishing with QoS acknowledgement
//   - A broadcast Hub that fans every inbound message out to filtered listeners
//
// # Architecture
//
// paho calls one default handler, on one goroutine, for every inbound
// message. That handler hands the message to the Hub, which offers it to
// each Listener's filter and queues it on the listener's channel without
// blocking. The telemetry ingest loop and every in-flight request each own
// a listener.
//
//	broker -> paho -> Hub.Deliver -> [filter] -> Listener.C -> consumer
//
// A listener that falls behind loses messages rather than stalling
// delivery for everyone else.
//
// # Topics
//
//	<prefix>/<dtu_sn>/inbox            commands to a DTU
//	<prefix>/<dtu_sn>/outbox           responses and telemetry from a DTU
//	rpc/rpc_client/<name>/online_status  presence, retained
//
// # Usage
//
//	hub := mqtt.NewHub(cfg.Gateway.ListenerBuffer)
//	client, err := mqtt.Connect(cfg.MQTT, hub)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{Prefix: cfg.Gateway.TopicPrefix}
//	l := client.Listen(0, func(m mqtt.Message) bool {
//	    return mqtt.MatchTopic(topics.AllOutboxes(), m.Topic)
//	})
//	defer l.Close()
//	_ = client.Subscribe(topics.AllOutboxes(), 1)
package mqtt
