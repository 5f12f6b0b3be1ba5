// Package mqtt provides connectivity to a Bambu printer's LAN-mode MQTT broker.
//
// This package manages:
//   - TLS connection to the printer (port 8883, user "bblp") with auto-reconnect
//   - Subscription to the printer's job report topic
//   - Full report ("pushall") requests on every connect
//   - Connection health monitoring
//
// # Architecture
//
// The printer runs its own broker. Job reports arrive on
// device/<serial>/report and commands are accepted on device/<serial>/request.
//
//	Bambi ↔ Printer broker (device/<serial>/...)
//
// # Security Considerations
//
//   - The MQTT password is the printer's LAN access code
//   - The printer's certificate is self-signed, so verification is usually disabled
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.WatchPrinter(cfg.Printer.Serial,
//	    func(topic string, payload []byte) error {
//	        controller.HandleReport(payload)
//	        return nil
//	    })
package mqtt
