package engine

import (
	"encoding/base64"
	"errors"
	"strings"
)

const (
	DefaultToken = "dummy_token" // Token of the default identity, accepted by a local engine.

	bearerPrefix = "Bearer "
)

// Identity is the authentication identity, an engine operation is performed on behalf of.
//
// An identity is not related to the ID of a worker. Multiple workers can share the same identity.
type Identity struct {
	Token  string // Encoded token, sent as bearer token.
	UserId string // ID of the user, the token has been issued for.
}

// NewIdentity creates an identity for a plain token. The token is base64 encoded.
func NewIdentity(token string) Identity {
	return Identity{
		Token:  base64.StdEncoding.EncodeToString([]byte(token)),
		UserId: token,
	}
}

// DefaultIdentity returns the identity, used for a local engine.
func DefaultIdentity() Identity {
	return NewIdentity(DefaultToken)
}

// ParseAuthorization parses the value of an Authorization header, using the bearer scheme.
func ParseAuthorization(authorization string) (Identity, error) {
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return Identity{}, errors.New("authorization scheme must be Bearer")
	}

	token := strings.TrimSpace(authorization[len(bearerPrefix):])
	if token == "" {
		return Identity{}, errors.New("bearer token must not be empty or blank")
	}

	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Identity{}, errors.New("bearer token must be base64 encoded")
	}

	return Identity{Token: token, UserId: string(b)}, nil
}

// Authorization returns the value of an Authorization header, using the bearer scheme.
func (v Identity) Authorization() string {
	return bearerPrefix + v.Token
}

func (v Identity) IsZero() bool {
	return v.Token == ""
}

func (v Identity) String() string {
	return v.UserId
}
