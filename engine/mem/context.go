package mem

import (
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/engine/internal"
)

func newMemContext(options Options) *memContext {
	return &memContext{options: options}
}

type memContext struct {
	options Options

	time time.Time

	externalTasks externalTaskRepository
}

func (c *memContext) Options() engine.Options {
	return c.options.Common
}

func (c *memContext) Time() time.Time {
	return c.time
}

func (c *memContext) ExternalTasks() internal.ExternalTaskRepository {
	return &c.externalTasks
}

func (c *memContext) clear() {
	c.externalTasks.entities = nil
}
