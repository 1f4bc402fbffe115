package internal

import (
	"context"
	"sync"
	"time"

	"github.com/gclaussn/go-extask/engine"
)

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// Notifier wakes up all long polling requests, waiting for new tasks.
type Notifier struct {
	mutex sync.Mutex
	ch    chan struct{}
}

func (n *Notifier) Notify() {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	close(n.ch)
	n.ch = make(chan struct{})
}

func (n *Notifier) wait() <-chan struct{} {
	if n == nil {
		return nil
	}

	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.ch
}

// LongPoll calls fetch until at least one task is returned, the timeout elapsed or the context is done.
//
// Between two calls, it waits for the interval or for a notification, if a notifier is provided.
func LongPoll(
	ctx context.Context,
	timeout time.Duration,
	interval time.Duration,
	notifier *Notifier,
	fetch func() ([]engine.ExternalTask, error),
) ([]engine.ExternalTask, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		notified := notifier.wait() // before fetch, otherwise a notification can be missed

		tasks, err := fetch()
		if err != nil || len(tasks) != 0 || timeout <= 0 {
			return tasks, err
		}

		ticker := time.NewTimer(interval)

		select {
		case <-notified:
			ticker.Stop()
		case <-ticker.C:
		case <-deadline.C:
			ticker.Stop()
			return tasks, nil
		case <-ctx.Done():
			ticker.Stop()
			return tasks, nil
		}
	}
}
