/*
go-extask-pgd is a daemon, running a PostgreSQL based external task engine that is accessible via HTTP.

Usage:

	-create-api-key
		create a new API key
	-delete-api-key
		delete an existing API key
	-env value
		set environment variables
	-env-file value
		read in a file of environment variables
	-list-api-keys
		list API keys
	-list-conf
		list configuration
	-list-conf-opts
		list configuration options
	-secret-id string
		secret ID, required when creating or deleting an API key
	-version
		show version
*/
package main

import (
	"log"
	"os"

	"github.com/gclaussn/go-extask/daemon"
)

func main() {
	log.SetOutput(os.Stdout)

	code := daemon.RunPg(os.Args[1:])
	os.Exit(code)
}
