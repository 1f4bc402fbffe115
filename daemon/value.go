package daemon

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// confValue parses the value of a configuration option into the option field it is bound to.
// String returns the field's current value, which is used as default value.
type confValue interface {
	Set(string) error
	String() string
}

type boolValue bool

func (v *boolValue) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*v = boolValue(b)
	return nil
}

func (v *boolValue) String() string {
	return strconv.FormatBool(bool(*v))
}

// cronValue is a CRON expression. An empty expression is valid.
type cronValue string

func (v *cronValue) Set(s string) error {
	if s != "" && !gronx.IsValid(s) {
		return errors.New("is invalid")
	}
	*v = cronValue(s)
	return nil
}

func (v *cronValue) String() string {
	return string(*v)
}

type durationValue time.Duration

func (v *durationValue) Set(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*v = durationValue(d)
	return nil
}

func (v *durationValue) String() string {
	return time.Duration(*v).String()
}

type intValue int

func (v *intValue) Set(s string) error {
	i, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return err
	}
	*v = intValue(i)
	return nil
}

func (v *intValue) String() string {
	return strconv.Itoa(int(*v))
}

// stringValue must not be empty.
type stringValue string

func (v *stringValue) Set(s string) error {
	if s == "" {
		return errors.New("is empty")
	}
	*v = stringValue(s)
	return nil
}

func (v *stringValue) String() string {
	return string(*v)
}

// tokensValue is a comma-separated list, which must contain at least one non-blank token.
type tokensValue []string

func (v *tokensValue) Set(s string) error {
	var tokens []string
	for _, token := range strings.Split(s, ",") {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}

	if len(tokens) == 0 {
		return errors.New("is empty")
	}

	*v = tokens
	return nil
}

func (v *tokensValue) String() string {
	return strings.Join(*v, ",")
}
