/*
go-extask is a CLI for interacting with an external task engine via HTTP.

Usage:

	go-extask [flags]
	go-extask [command]

Available Commands:

	completion  Generate the autocompletion script for the specified shell
	help        Help about any command
	set-time    Set the engine's time
	subscribe   Subscribe to a topic and execute its external tasks
	task        Manage and query external tasks
	version     Show version

Flags:

	    --debug              Log HTTP requests and responses
	-h, --help               help for go-extask
	    --timeout duration   Time limit for requests made by the HTTP client (default 40s)
	    --url string         HTTP server URL
	    --worker-id string   Worker ID (default "go-extask")

Authorization:

	GO_EXTASK_TOKEN          Plain token, accepted by go-extask-memd
	GO_EXTASK_AUTHORIZATION  API key, created via go-extask-pgd -create-api-key

Use "go-extask [command] --help" for more information about a command.
*/
package main

import (
	"os"

	"github.com/gclaussn/go-extask/cli"
)

var (
	version = "unknown-version"
)

func main() {
	cli := cli.New(version)
	os.Exit(cli.Execute())
}
