package cli

import (
	"bytes"
	"testing"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/engine/mem"
)

func mustCreateEngine(t *testing.T) engine.Engine {
	e, err := mem.New()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

// mustExecute executes a command on behalf of the default identity and returns its output.
func mustExecute(t *testing.T, e engine.Engine, args []string) string {
	rootCmd := newRootCmd(&Cli{e: e, identity: engine.DefaultIdentity(), workerId: program})
	rootCmd.PersistentPostRun = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("failed to execute %v: %v\n%s", args, err, out.String())
	}

	return out.String()
}
