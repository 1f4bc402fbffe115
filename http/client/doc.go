// Package client is used to interact with an engine via HTTP.
/*
client provides a full implementation of the [engine.Engine] interface.

Create a Client

A client requires the base URL of a HTTP server.

Operations of the [engine.ExternalTaskApi] are performed on behalf of the identity, which is passed per call.
All other operations use the identity of the client options, which defaults to [engine.DefaultIdentity].

When running against a pg engine, the authorization of an API key must be used as token.
An API key is created via the "go-extask-pgd" command - for example: "go-extask-pgd -create-api-key -secret-id my-worker".

	client, err := client.New("http://localhost:8080", func(o *client.Options) {
		o.Identity = engine.Identity{Token: authorization}
	})
	if err != nil {
		log.Fatalf("failed to create HTTP client: %v", err)
	}

	defer client.Shutdown()
*/
package client
