// Package bot replays the pointer-click sequence that starts the next
// print job in the slicer.
//
// A run walks the steps in order, clicking each step's coordinates through
// a Sink and then waiting the step's delay. At most one run is in flight;
// a second request is rejected with ErrRunInProgress while the first
// carries on. Click failures are logged and the run continues.
//
// Sinks:
//
//   - CommandSink: runs an external program per click (xdotool, cliclick,
//     a PowerShell script, ...) with {x} and {y} substituted into its
//     arguments
//   - NoopSink: logs clicks only, used when no click command is configured
//
// Usage:
//
//	exec := bot.NewExecutor(sink, logger)
//	exec.SetOnComplete(func(r bot.Result) { ... })
//	if err := exec.Start(ctx, seq); err != nil { ... }
package bot
