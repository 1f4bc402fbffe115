// Package mem implements an in-memory external task engine, used for testing and local development.
/*
mem provides a full implementation of the [engine.Engine] interface.

Create an Engine

Since testing must be deterministic, a mem engine is created without a lock sweeper, not running a goroutine.
If expired locks should be released periodically, a CRON expression can be configured via [mem.Options].Common.LockSweepCron.

	e, err := mem.New(func(o *mem.Options) {
		o.Common.EngineId = "my-mem-engine"
	})
	if err != nil {
		log.Fatalf("failed to create mem engine: %v", err)
	}

	defer e.Shutdown()

A fetch and lock request, which waits for new tasks, is woken up as soon as a task of any topic is created or unlocked.
*/
package mem
