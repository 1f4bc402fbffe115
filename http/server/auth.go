package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/engine/pg"
	"github.com/gclaussn/go-extask/http/common"
)

// identityKey is used as context value key by the auth handlers.
type identityKey struct{}

// authHandler authenticates requests, using the API keys of a pg engine.
type authHandler struct {
	apiKeyManager pg.ApiKeyManager
	handler       http.Handler
}

func (h *authHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if common.IsPublicPath(r.URL.Path) {
		h.handler.ServeHTTP(w, r)
		return
	}

	identity, err := engine.ParseAuthorization(r.Header.Get(common.HeaderAuthorization))
	if err != nil {
		encodeUnauthorizedResponseBody(w, r, err)
		return
	}

	apiKey, err := h.apiKeyManager.GetApiKey(r.Context(), identity.Token)
	if err != nil {
		encodeUnauthorizedResponseBody(w, r, err)
		return
	}

	identity.UserId = apiKey.SecretId

	ctx := context.WithValue(r.Context(), identityKey{}, identity)
	h.handler.ServeHTTP(w, r.WithContext(ctx))
}

// tokenAuthHandler authenticates requests, using a static list of plain tokens.
type tokenAuthHandler struct {
	tokens  []string
	handler http.Handler
}

func (h *tokenAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if common.IsPublicPath(r.URL.Path) {
		h.handler.ServeHTTP(w, r)
		return
	}

	identity, err := engine.ParseAuthorization(r.Header.Get(common.HeaderAuthorization))
	if err != nil {
		encodeUnauthorizedResponseBody(w, r, err)
		return
	}

	if !slices.Contains(h.tokens, identity.UserId) {
		encodeUnauthorizedResponseBody(w, r, errors.New("token is not accepted"))
		return
	}

	ctx := context.WithValue(r.Context(), identityKey{}, identity)
	h.handler.ServeHTTP(w, r.WithContext(ctx))
}

// identityFromContext returns the identity of an authenticated request.
func identityFromContext(ctx context.Context) engine.Identity {
	identity, _ := ctx.Value(identityKey{}).(engine.Identity)
	return identity
}

func validateTokens(tokens []string) error {
	if len(tokens) == 0 {
		return errors.New("api key manager or at least one token must be provided")
	}
	for _, token := range tokens {
		if strings.TrimSpace(token) == "" {
			return errors.New("token must not be empty or blank")
		}
	}
	return nil
}
