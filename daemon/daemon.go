package daemon

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/http/server"
)

const (
	envPrefix = "GO_EXTASK_"

	optDefaultQueryLimit   = "DEFAULT_QUERY_LIMIT"
	optEngineId            = "ENGINE_ID"
	optLockSweepCron       = "LOCK_SWEEP_CRON"
	optLongPollingInterval = "LONG_POLLING_INTERVAL"

	optHttpBindAddress    = "HTTP_BIND_ADDRESS"
	optHttpHandlerTimeout = "HTTP_HANDLER_TIMEOUT"
	optHttpReadTimeout    = "HTTP_READ_TIMEOUT"
	optHttpWriteTimeout   = "HTTP_WRITE_TIMEOUT"
	optSetTimeEnabled     = "SET_TIME_ENABLED"
)

var (
	version = "unknown-version"
)

func newConf() *conf {
	env := env{}
	for _, value := range os.Environ() {
		env.Set(value)
	}

	return &conf{
		envFile: envFile{env},
		opts:    make(map[string]*confOpt),
	}
}

func listConf(conf *conf) int {
	log.SetFlags(0)
	for _, opt := range conf.sortedOpts() {
		log.Printf("%s=%s", opt.key, opt.value())
	}

	return 0
}

func listConfErrors(conf *conf) int {
	code := 0

	log.SetFlags(0)
	for _, opt := range conf.sortedOpts() {
		if opt.err == nil {
			continue
		}

		if value := opt.value(); value == "" {
			log.Printf("%s: %v", opt.key, opt.err)
		} else {
			log.Printf("%s=%s: %v", opt.key, value, opt.err)
		}

		code = 1
	}

	return code
}

func listConfOpts(conf *conf) int {
	var sb strings.Builder

	tw := tabwriter.NewWriter(&sb, 0, 0, 3, ' ', 0)
	for _, opt := range conf.sortedOpts() {
		key := opt.key
		if opt.required {
			key = key + "*"
		}

		if opt.defaultValue != "" {
			fmt.Fprintf(tw, "%s\t%s - default: %s\n", key, opt.description, opt.defaultValue)
		} else {
			fmt.Fprintf(tw, "%s\t%s\n", key, opt.description)
		}
	}

	tw.Flush()

	log.SetFlags(0)
	log.Print(sb.String())

	return 0
}

// parseArgs parses the flags, shared by all daemons, and executes a requested informational command.
// If the daemon should be started, -1 is returned. Otherwise the exit code.
func parseArgs(flags *flag.FlagSet, conf *conf, args []string) int {
	flags.SetOutput(log.Writer())

	flags.Var(&conf.envFile.env, "env", "set environment variables")
	flags.Var(&conf.envFile, "env-file", "read in a file of environment variables")

	var doListConfOpts bool
	flags.BoolVar(&doListConfOpts, "list-conf-opts", false, "list configuration options")
	var doListConf bool
	flags.BoolVar(&doListConf, "list-conf", false, "list configuration")
	var doVersion bool
	flags.BoolVar(&doVersion, "version", false, "show version")

	if err := flags.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		} else {
			return 1
		}
	}

	switch {
	case doListConfOpts:
		return listConfOpts(conf)
	case doListConf:
		return listConf(conf)
	case doVersion:
		return showVersion()
	default:
		return -1
	}
}

// serve serves the engine's HTTP API until an interrupt or termination signal is received.
// When the server is shut down, the engine is shut down as well.
func serve(e engine.Engine, serverOptions server.Options) int {
	s, err := server.New(e, func(o *server.Options) {
		*o = serverOptions
	})
	if err != nil {
		log.Printf("failed to create HTTP server: %v", err)
		e.Shutdown()
		return 1
	}

	s.ListenAndServe()

	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGTERM)

	<-signalC

	s.Shutdown()
	log.Println("engine shut down")

	return 0
}

func showVersion() int {
	log.Println(version)
	return 0
}

type conf struct {
	envFile envFile
	opts    map[string]*confOpt
}

// addOption adds an option, which is not bound to a field. Its value must be read via [confOpt.value].
func (c *conf) addOption(key string, description string) *confOpt {
	co := confOpt{
		env:         c.envFile.env,
		key:         envPrefix + key,
		description: description,
	}

	c.opts[key] = &co
	return &co
}

// bind adds an option, which is bound to a field. The field's current value becomes the default value.
func (c *conf) bind(key string, description string, target confValue) *confOpt {
	co := c.addOption(key, description)
	co.defaultValue = target.String()
	co.target = target
	return co
}

func (c *conf) bindEngineOptions(o *engine.Options) {
	c.bind(optDefaultQueryLimit, "default limit for queries, executed without an explicit limit", (*intValue)(&o.DefaultQueryLimit))
	c.bind(optEngineId, "ID of the engine", (*stringValue)(&o.EngineId))
	c.bind(optLockSweepCron, "CRON expression, scheduling the unlocking of tasks with an expired lock", (*cronValue)(&o.LockSweepCron))
	c.bind(optLongPollingInterval, "interval between checks for new tasks, while a fetch and lock request is waiting", (*durationValue)(&o.LongPollingInterval))
}

func (c *conf) bindServerOptions(o *server.Options) {
	c.bind(optHttpBindAddress, "TCP address of the engine's HTTP API to listen on", (*stringValue)(&o.BindAddress))
	c.bind(optHttpHandlerTimeout, "time limit for HTTP handler - must exceed the maximum long polling timeout", (*durationValue)(&o.HandlerTimeout))
	c.bind(optHttpReadTimeout, "maximum duration for reading the entire request - see http.Server#ReadTimeout", (*durationValue)(&o.ReadTimeout))
	c.bind(optHttpWriteTimeout, "maximum duration before timing out writing the response - see http.Server#WriteTimeout", (*durationValue)(&o.WriteTimeout))
	c.bind(optSetTimeEnabled, "enable or disable the setTime operation", (*boolValue)(&o.SetTimeEnabled))
}

// resolve sets the bound fields. A failure is kept per option and reported by listConfErrors.
func (c *conf) resolve() {
	for _, opt := range c.opts {
		if opt.target != nil {
			opt.err = opt.target.Set(opt.value())
		}
	}
}

func (c *conf) sortedOpts() []*confOpt {
	return slices.SortedFunc(maps.Values(c.opts), func(a *confOpt, b *confOpt) int {
		return strings.Compare(a.key, b.key)
	})
}

type confOpt struct {
	env env

	key          string
	description  string
	required     bool
	defaultValue string
	target       confValue

	err error
}

func (o *confOpt) value() string {
	if value := o.env[o.key]; value != "" {
		return value
	}
	return o.defaultValue
}

type env map[string]string

func (v env) Set(value string) error {
	s := strings.SplitN(value, "=", 2)
	if len(s) != 2 {
		return fmt.Errorf("required format %s", v)
	}
	v[s[0]] = s[1]
	return nil
}

func (v env) String() string {
	return "<key>=<value>"
}

type envFile struct {
	env env
}

func (v envFile) Set(value string) error {
	file, err := os.Open(value)
	if err != nil {
		return err
	}

	defer file.Close()

	scanner := bufio.NewScanner(file)

	i := 0
	for scanner.Scan() {
		i++
		line := scanner.Text()
		if err := v.env.Set(line); err != nil {
			return fmt.Errorf("wrong format in line %d: required format %s", i, v.env)
		}
	}

	return nil
}

func (v envFile) String() string {
	return "<file>"
}
