package daemon

import (
	"flag"
	"log"

	"github.com/gclaussn/go-extask/engine/mem"
	"github.com/gclaussn/go-extask/http/server"
)

func RunMem(args []string) int {
	engineOptions := mem.NewOptions()
	engineOptions.Common.LockSweepCron = "*/1 * * * *"

	serverOptions := server.NewOptions()

	conf := newConf()
	conf.bindEngineOptions(&engineOptions.Common)
	conf.bindServerOptions(&serverOptions)

	httpTokens := conf.bind("HTTP_TOKENS", "comma-separated list of accepted bearer tokens", (*tokensValue)(&serverOptions.Tokens))
	httpTokens.required = true

	flags := flag.NewFlagSet("go-extask-memd", flag.ContinueOnError)
	if code := parseArgs(flags, conf, args); code != -1 {
		return code
	}

	conf.resolve()

	if code := listConfErrors(conf); code != 0 {
		return code
	}

	e, err := mem.New(func(o *mem.Options) {
		*o = engineOptions

		o.Common.OnLockSweepFailure = func(err error) {
			log.Printf("failed to unlock external tasks with an expired lock: %v", err)
		}
	})
	if err != nil {
		log.Printf("failed to create mem engine: %v", err)
		return 1
	}

	return serve(e, serverOptions)
}
