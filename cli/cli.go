package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/http/client"
	"github.com/gclaussn/go-extask/http/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	envLookupAllowed = "envLookupAllowed" // flag level annotation that allows an environment variable lookup
	envPrefix        = "GO_EXTASK_"
	noEngineRequired = "noEngineRequired" // annotation, indicating that no engine is required to run the command
	program          = "go-extask"

	envAuthorization = envPrefix + "AUTHORIZATION"
	envToken         = envPrefix + "TOKEN"
)

func New(version string) *Cli {
	cli := Cli{version: version}

	cli.rootCmd = newRootCmd(&cli)

	return &cli
}

type Cli struct {
	version string

	rootCmd *cobra.Command

	e            engine.Engine
	identity     engine.Identity
	debugEnabled bool
	workerId     string
}

func (c *Cli) Execute() int {
	if err := c.rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func (c *Cli) help(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

func newRootCmd(cli *Cli) *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)

	c := cobra.Command{
		Use:   program,
		Short: "A client for go-extask HTTP servers",
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			c.SilenceUsage = true

			if _, ok := c.Annotations[noEngineRequired]; ok {
				return nil
			}

			if cli.e != nil {
				return nil // skip client creation when testing
			}

			c.Flags().VisitAll(func(f *pflag.Flag) {
				if f.Changed {
					return
				}
				if _, ok := f.Annotations[envLookupAllowed]; !ok {
					return
				}

				// e.g. worker-id -> GO_EXTASK_WORKER_ID
				key := envPrefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")

				if value, ok := os.LookupEnv(key); ok {
					f.Value.Set(value)
				}
			})

			identity, err := lookupIdentity()
			if err != nil {
				return err
			}

			e, err := client.New(url, func(o *client.Options) {
				o.Identity = identity
				o.Timeout = timeout

				if cli.debugEnabled {
					debugger := newHttpDebugger(c.ErrOrStderr())
					o.OnRequest = debugger.onRequest
					o.OnResponse = debugger.onResponse
				}
			})
			if err != nil {
				return fmt.Errorf("failed to create HTTP client: %v", err)
			}

			cli.e = e
			cli.identity = identity
			return nil
		},
		RunE: cli.help,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cli.e != nil {
				cli.e.Shutdown()
			}
		},
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.PersistentFlags().StringVar(&url, "url", "", "HTTP server URL")
	c.PersistentFlags().StringVar(&cli.workerId, "worker-id", program, "Worker ID")
	c.PersistentFlags().DurationVar(&timeout, "timeout", 40*time.Second, "Time limit for requests made by the HTTP client")
	c.PersistentFlags().BoolVar(&cli.debugEnabled, "debug", false, "Log HTTP requests and responses")

	c.PersistentFlags().SetAnnotation("url", envLookupAllowed, nil)
	c.PersistentFlags().SetAnnotation("worker-id", envLookupAllowed, nil)
	c.PersistentFlags().SetAnnotation("timeout", envLookupAllowed, nil)
	c.PersistentFlags().SetAnnotation("debug", envLookupAllowed, nil)

	c.AddCommand(newTaskCmd(cli))
	c.AddCommand(newSubscribeCmd(cli))
	c.AddCommand(newSetTimeCmd(cli))
	c.AddCommand(newVersionCmd(cli))

	return &c
}

// lookupIdentity creates the identity, used for authentication, from an environment variable.
func lookupIdentity() (engine.Identity, error) {
	if authorization := os.Getenv(envAuthorization); authorization != "" {
		identity, err := engine.ParseAuthorization("Bearer " + authorization)
		if err != nil {
			return engine.Identity{}, fmt.Errorf("invalid authorization: %v", err)
		}
		return identity, nil
	}

	if token := os.Getenv(envToken); token != "" {
		return engine.NewIdentity(token), nil
	}

	return engine.Identity{}, fmt.Errorf(
		"no authorization set.\n\nfor pg:  use environment variable %s (API key)\nfor mem: use environment variable %s\n ",
		envAuthorization,
		envToken,
	)
}

func newSetTimeCmd(cli *Cli) *cobra.Command {
	var (
		timeV timeValue

		cmd engine.SetTimeCmd
	)

	c := cobra.Command{
		Use:   "set-time",
		Short: "Set the engine's time",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.Time = time.Time(timeV)

			return cli.e.SetTime(context.Background(), cmd)
		},
	}

	c.Flags().Var(&timeV, "time", "A future point in time")

	return &c
}

func newVersionCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(c *cobra.Command, _ []string) {
			c.Println(cli.version)
		},
		Annotations: map[string]string{noEngineRequired: ""},
	}

	return &c
}

// httpDebugger logs HTTP requests and responses, including their bodies.
type httpDebugger struct {
	logger *slog.Logger
}

func newHttpDebugger(w io.Writer) *httpDebugger {
	return &httpDebugger{
		logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
}

func (d *httpDebugger) onRequest(req *http.Request) error {
	body, err := readBody(&req.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body: %v", err)
	}

	d.logger.Debug("request", "method", req.Method, "url", req.URL.String(), "body", compactJson(body))
	return nil
}

func (d *httpDebugger) onResponse(res *http.Response) error {
	body, err := readBody(&res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}

	d.logger.Debug("response",
		"status", res.StatusCode,
		"content_type", res.Header.Get(common.HeaderContentType),
		"body", compactJson(body),
	)
	return nil
}

// readBody reads a body and replaces it, so that it can be read again.
func readBody(body *io.ReadCloser) ([]byte, error) {
	if *body == nil || *body == http.NoBody {
		return nil, nil
	}

	b, err := io.ReadAll(*body)
	(*body).Close()
	if err != nil {
		return nil, err
	}

	*body = io.NopCloser(bytes.NewReader(b))
	return b, nil
}

func compactJson(b []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return string(b)
	}
	return buf.String()
}
