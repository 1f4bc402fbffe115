package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/gclaussn/go-extask/engine"
)

func NewLockSweeper(e engine.Engine, cron string, onFailure func(error)) *LockSweeper {
	sweepCtx, sweepCancel := context.WithCancel(context.Background())

	return &LockSweeper{
		engine:    e,
		cron:      cron,
		onFailure: onFailure,

		sweepCtx:    sweepCtx,
		sweepCancel: sweepCancel,
		done:        make(chan struct{}),
	}
}

// LockSweeper unlocks pending tasks, whose lock expired, according to a CRON expression.
type LockSweeper struct {
	engine    engine.Engine
	cron      string
	onFailure func(error)

	sweepCtx    context.Context
	sweepCancel context.CancelFunc
	done        chan struct{}
}

func (s *LockSweeper) Execute() {
	go func() {
		defer close(s.done)

		for {
			next, err := gronx.NextTickAfter(s.cron, time.Now(), false)
			if err != nil {
				s.fail(fmt.Errorf("failed to evaluate CRON expression %q: %v", s.cron, err))
				return
			}

			timer := time.NewTimer(time.Until(next))

			select {
			case <-timer.C:
				if _, err := s.engine.UnlockExternalTasks(s.sweepCtx, engine.UnlockExternalTasksCmd{Expired: true}); err != nil {
					s.fail(err)
				}
			case <-s.sweepCtx.Done():
				timer.Stop()
				return
			}
		}
	}()
}

func (s *LockSweeper) Stop() {
	s.sweepCancel()
	<-s.done
}

func (s *LockSweeper) fail(err error) {
	if s.onFailure != nil {
		s.onFailure(err)
	}
}
