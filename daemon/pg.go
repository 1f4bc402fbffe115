package daemon

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gclaussn/go-extask/engine/pg"
	"github.com/gclaussn/go-extask/http/server"
)

func RunPg(args []string) int {
	engineOptions := pg.NewOptions()
	serverOptions := server.NewOptions()

	var databaseUrl string

	conf := newConf()
	conf.bindEngineOptions(&engineOptions.Common)
	conf.bindServerOptions(&serverOptions)

	pgDatabaseUrl := conf.bind("PG_DATABASE_URL", "format: postgres://<username>:<password>@<host>:<port>/<database>?search_path=<schema>", (*stringValue)(&databaseUrl))
	pgDatabaseUrl.required = true

	conf.bind("PG_TIMEOUT", "time limit for database transactions", (*durationValue)(&engineOptions.Timeout))

	flags := flag.NewFlagSet("go-extask-pgd", flag.ContinueOnError)

	var doCreateApiKey bool
	flags.BoolVar(&doCreateApiKey, "create-api-key", false, "create a new API key")
	var doDeleteApiKey bool
	flags.BoolVar(&doDeleteApiKey, "delete-api-key", false, "delete an existing API key")
	var doListApiKeys bool
	flags.BoolVar(&doListApiKeys, "list-api-keys", false, "list API keys")
	var secretId string
	flags.StringVar(&secretId, "secret-id", "", "secret ID, required when creating or deleting an API key")

	if code := parseArgs(flags, conf, args); code != -1 {
		return code
	}

	conf.resolve()

	if code := listConfErrors(conf); code != 0 {
		return code
	}

	manageApiKeys := doCreateApiKey || doDeleteApiKey || doListApiKeys

	engineStartTime := time.Now()

	e, err := pg.New(databaseUrl, func(o *pg.Options) {
		*o = engineOptions

		if manageApiKeys {
			// disable lock sweeping, when the engine is only started for API key management
			o.Common.LockSweepCron = ""
		}

		o.Common.OnLockSweepFailure = func(err error) {
			log.Printf("failed to unlock external tasks with an expired lock: %v", err)
		}
	})
	if err != nil {
		log.Printf("failed to create pg engine: %v", err)
		return 1
	}

	apiKeyManager := e.(pg.ApiKeyManager)
	if manageApiKeys {
		defer e.Shutdown()

		switch {
		case doCreateApiKey:
			return createApiKey(apiKeyManager, secretId)
		case doDeleteApiKey:
			return deleteApiKey(apiKeyManager, secretId)
		default:
			return listApiKeys(apiKeyManager)
		}
	}

	log.Printf("pg engine started in %dms", time.Since(engineStartTime).Milliseconds())

	serverOptions.ApiKeyManager = apiKeyManager

	return serve(e, serverOptions)
}

func createApiKey(apiKeyManager pg.ApiKeyManager, secretId string) int {
	_, authorization, err := apiKeyManager.CreateApiKey(context.Background(), secretId)
	if err != nil {
		log.Printf("failed to create API key: %v", err)
		return 1
	}

	// authorization must be the only output
	log.SetFlags(0)
	log.Writer().Write([]byte(authorization))
	return 0
}

func deleteApiKey(apiKeyManager pg.ApiKeyManager, secretId string) int {
	if err := apiKeyManager.DeleteApiKey(context.Background(), secretId); err != nil {
		log.Printf("failed to delete API key: %v", err)
		return 1
	}

	log.Printf("API key %s deleted", secretId)
	return 0
}

func listApiKeys(apiKeyManager pg.ApiKeyManager) int {
	apiKeys, err := apiKeyManager.ListApiKeys(context.Background())
	if err != nil {
		log.Printf("failed to list API keys: %v", err)
		return 1
	}

	var sb strings.Builder

	tw := tabwriter.NewWriter(&sb, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "SECRET ID\tCREATED AT")
	for _, apiKey := range apiKeys {
		fmt.Fprintf(tw, "%s\t%s\n", apiKey.SecretId, apiKey.CreatedAt.Format(time.RFC3339))
	}

	tw.Flush()

	log.SetFlags(0)
	log.Print(sb.String())
	return 0
}
