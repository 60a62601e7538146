// Package coordinator schedules the periodic ticks of every enabled target.
//
// Each enabled target gets its own loop running under a suture supervisor.
// A loop runs one tick immediately and then one per configured interval.
// Ticks of the same target never overlap: the manager's per-target lock
// rejects a tick while another one is running, whether it was started by the
// loop or by an administrator through TriggerUpdate.
//
// # Usage
//
//	coord, err := coordinator.New(managers, cfg)
//	if err != nil {
//	    return err
//	}
//	go func() { _ = coord.Start(ctx) }()
//	...
//	_ = coord.Stop()
//
// A tick that panics or a loop that returns unexpectedly is restarted by the
// supervisor with the usual suture backoff. Errors of individual ticks are
// logged and never stop the loop.
package coordinator
