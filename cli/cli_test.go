package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/stretchr/testify/assert"
)

func TestHelp(t *testing.T) {
	assert := assert.New(t)

	e := mustCreateEngine(t)
	defer e.Shutdown()

	rootCmd := newRootCmd(&Cli{e: e, identity: engine.DefaultIdentity()})

	rootCmd.SetArgs([]string{})
	assert.NoError(rootCmd.Execute())

	rootCmd.SetArgs([]string{"task"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"version"})
	assert.NoError(rootCmd.Execute())

	rootCmd.SetArgs([]string{"task", "create", "--help"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"task", "fetch-and-lock", "--help"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"subscribe", "--help"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"set-time", "--help"})
	assert.NoError(rootCmd.Execute())
}

func TestLookupIdentity(t *testing.T) {
	assert := assert.New(t)

	t.Run("token", func(t *testing.T) {
		t.Setenv(envAuthorization, "")
		t.Setenv(envToken, "secret")

		identity, err := lookupIdentity()
		assert.Nil(err)
		assert.Equal(engine.NewIdentity("secret"), identity)
	})

	t.Run("authorization", func(t *testing.T) {
		t.Setenv(envAuthorization, engine.NewIdentity("secret-id:secret").Token)
		t.Setenv(envToken, "secret")

		identity, err := lookupIdentity()
		assert.Nil(err)
		assert.Equal("secret-id:secret", identity.UserId)
	})

	t.Run("returns error when authorization is not base64 encoded", func(t *testing.T) {
		t.Setenv(envAuthorization, "not base64!")

		_, err := lookupIdentity()
		assert.ErrorContains(err, "invalid authorization")
	})

	t.Run("returns error when not set", func(t *testing.T) {
		t.Setenv(envAuthorization, "")
		t.Setenv(envToken, "")

		_, err := lookupIdentity()
		assert.ErrorContains(err, "no authorization set")
	})
}

func TestSetTime(t *testing.T) {
	assert := assert.New(t)

	e := mustCreateEngine(t)
	defer e.Shutdown()

	// given
	future := time.Now().Add(time.Hour).UTC()

	// when
	mustExecute(t, e, []string{"set-time", "--time", future.Format(time.RFC3339)})

	// then
	task, err := e.CreateExternalTask(context.Background(), engine.CreateExternalTaskCmd{Topic: "test"})
	assert.Nil(err)
	assert.False(task.CreatedAt.Before(future.Truncate(time.Second)))
}

func TestHttpDebugger(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	debugger := newHttpDebugger(&buf)

	t.Run("request", func(t *testing.T) {
		buf.Reset()

		req, err := http.NewRequest(http.MethodPost, "http://localhost:8080/tasks", strings.NewReader(`{ "topic": "test" }`))
		if err != nil {
			t.Fatalf("failed to create request: %v", err)
		}

		assert.Nil(debugger.onRequest(req))

		assert.Contains(buf.String(), "method=POST")
		assert.Contains(buf.String(), "url=http://localhost:8080/tasks")
		assert.Contains(buf.String(), `{\"topic\":\"test\"}`)

		b, err := io.ReadAll(req.Body)
		assert.Nil(err)
		assert.Equal(`{ "topic": "test" }`, string(b), "body must be readable again")
	})

	t.Run("response", func(t *testing.T) {
		buf.Reset()

		res := &http.Response{
			StatusCode: http.StatusNoContent,
			Header:     http.Header{},
			Body:       http.NoBody,
		}

		assert.Nil(debugger.onResponse(res))

		assert.Contains(buf.String(), "status=204")
		assert.Equal(http.NoBody, res.Body)
	})
}
