package cli

import (
	"fmt"
	"time"

	"github.com/gclaussn/go-extask/engine"
)

// externalTaskStateValue is a custom flag value for an external task state.
type externalTaskStateValue engine.ExternalTaskState

func (v *externalTaskStateValue) Set(s string) error {
	state := engine.MapExternalTaskState(s)
	if state == 0 {
		return fmt.Errorf("invalid external task state %s", s)
	}

	*v = externalTaskStateValue(state)
	return nil
}

func (v externalTaskStateValue) String() string {
	return engine.ExternalTaskState(v).String()
}

func (v externalTaskStateValue) Type() string {
	return "externalTaskState"
}

type timeValue time.Time

func (v *timeValue) Set(s string) error {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}

	*v = timeValue(t)
	return nil
}

func (v timeValue) String() string {
	if time.Time(v).IsZero() {
		return ""
	}
	return time.Time(v).Format(time.RFC3339)
}

func (v timeValue) Type() string {
	return "time"
}
