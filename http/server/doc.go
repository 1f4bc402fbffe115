// Package server implements the external task HTTP API of an engine.
/*
server implements handlers for each external task operation, using the [net/http] package.
All operations are served under the base path "/api/external_task/v1".

Run a Server

A server requires an engine.
Moreover for authentication, either a [pg.ApiKeyManager] (implemented by a pg engine) or a list of accepted tokens must be set.
Requests are authenticated via an "Authorization: Bearer <token>" header, where the token is base64 encoded.
The readiness and the metrics endpoint can be requested without authorization.

A server is listening on "127.0.0.1:8080".
The TCP bind address as well as various timeouts can be configured by customizing the configuration.
Since fetch and lock requests are long polling, the handler timeout must exceed the maximum long polling timeout of 60 seconds.

	server, err := server.New(e, func(o *server.Options) {
		o.Tokens = []string{engine.DefaultToken}
	})
	if err != nil {
		log.Fatalf("failed to create HTTP server: %v", err)
	}

	server.ListenAndServe()

	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGTERM)

	<-signalC

	server.Shutdown()
*/
package server
