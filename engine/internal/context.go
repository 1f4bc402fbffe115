package internal

import (
	"time"

	"github.com/gclaussn/go-extask/engine"
)

type Context interface {
	Options() engine.Options

	Time() time.Time

	ExternalTasks() ExternalTaskRepository
}
