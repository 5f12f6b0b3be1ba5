// Package door implements the enclosure door automation.
//
// Machine holds the decision rules. For each merged printer report it:
//
//  1. arms the job on RUNNING, and warns once per job if no material
//     profile is active
//  2. opens the door once, when progress is above 80% and the bed has
//     cooled to the profile's open temperature
//  3. arms the close timer on FINISH or COMPLETED
//
// When the close timer fires the door closes and the cooldown timer is
// armed; when that fires the bot restarts the printer if it is still
// FINISH or IDLE.
//
// Controller owns a Machine and serialises all inputs onto one goroutine:
//
//	MQTT report ──┐
//	device line ──┤
//	timer fired ──┼──▶ events ──▶ Run loop ──▶ Machine ──▶ Dispatcher / bot
//	bot finished ─┤                  │
//	API request ──┘                  └──▶ StatusSink (WebSocket hub)
//
// Usage:
//
//	ctrl, err := door.New(door.Deps{Config: cfg, Dispatcher: d, Bot: exec, Logger: log})
//	go ctrl.Run(ctx)
//	mqttClient.WatchPrinter(cfg.Printer.Serial, func(_ string, p []byte) error {
//	    ctrl.HandleReport(p)
//	    return nil
//	})
package door
