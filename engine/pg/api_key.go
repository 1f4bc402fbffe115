package pg

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const apiKeySecretLength = 24

// ApiKeyManager creates, verifies and revokes API keys, used as bearer tokens by workers.
//
// The authorization of an API key is the base64 encoding of secret ID and secret, separated by a colon.
// Therefore it can be used as token of an [engine.Identity].
type ApiKeyManager interface {
	// CreateApiKey creates an API key and returns it together with its authorization.
	// The authorization is only returned once, since only a hash of the secret is stored.
	CreateApiKey(ctx context.Context, secretId string) (ApiKey, string, error)

	// DeleteApiKey revokes the API key of a secret ID.
	// Requests, using the key's authorization, are not authenticated anymore.
	DeleteApiKey(ctx context.Context, secretId string) error

	// GetApiKey returns the API key, matching an authorization. If there is no such key, [pgx.ErrNoRows] is returned.
	GetApiKey(ctx context.Context, authorization string) (ApiKey, error)

	// ListApiKeys returns all API keys, ordered by secret ID.
	ListApiKeys(ctx context.Context) ([]ApiKey, error)
}

type ApiKey struct {
	Id int32

	CreatedAt time.Time
	SecretId  string
}

func createApiKey(ctx *pgContext, secretId string) (ApiKey, string, error) {
	if strings.TrimSpace(secretId) == "" {
		return ApiKey{}, "", errors.New("secret ID must not be empty or blank")
	}
	if strings.Contains(secretId, ":") {
		return ApiKey{}, "", errors.New("secret ID must not contain a colon")
	}

	b := make([]byte, apiKeySecretLength)
	if _, err := rand.Read(b); err != nil {
		return ApiKey{}, "", fmt.Errorf("failed to generate secret: %v", err)
	}

	secret := base64.RawURLEncoding.EncodeToString(b)

	apiKey := ApiKey{CreatedAt: ctx.Time(), SecretId: secretId}

	row := ctx.tx.QueryRow(ctx.txCtx, `
INSERT INTO api_key (
	created_at,
	secret_hash,
	secret_id
) VALUES (
	$1,
	$2,
	$3
) ON CONFLICT DO NOTHING RETURNING id
`, apiKey.CreatedAt, hashSecret(secret), apiKey.SecretId)

	if err := row.Scan(&apiKey.Id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ApiKey{}, "", fmt.Errorf("API key with secret ID %s already exists", secretId)
		}
		return ApiKey{}, "", fmt.Errorf("failed to insert API key: %v", err)
	}

	authorization := base64.StdEncoding.EncodeToString([]byte(secretId + ":" + secret))
	return apiKey, authorization, nil
}

func deleteApiKey(ctx *pgContext, secretId string) error {
	tag, err := ctx.tx.Exec(ctx.txCtx, "DELETE FROM api_key WHERE secret_id = $1", secretId)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %v", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("API key with secret ID %s could not be found", secretId)
	}
	return nil
}

func getApiKey(ctx *pgContext, authorization string) (ApiKey, error) {
	secretId, secret, err := parseApiKeyAuthorization(authorization)
	if err != nil {
		return ApiKey{}, err
	}

	row := ctx.tx.QueryRow(ctx.txCtx, `
SELECT
	id,
	created_at
FROM
	api_key
WHERE
	secret_id = $1 AND
	secret_hash = $2
`, secretId, hashSecret(secret))

	apiKey := ApiKey{SecretId: secretId}
	if err := row.Scan(&apiKey.Id, &apiKey.CreatedAt); err != nil {
		return ApiKey{}, err
	}

	return apiKey, nil
}

func listApiKeys(ctx *pgContext) ([]ApiKey, error) {
	rows, err := ctx.tx.Query(ctx.txCtx, "SELECT id, created_at, secret_id FROM api_key ORDER BY secret_id")
	if err != nil {
		return nil, fmt.Errorf("failed to select API keys: %v", err)
	}

	apiKeys, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ApiKey, error) {
		var apiKey ApiKey
		err := row.Scan(&apiKey.Id, &apiKey.CreatedAt, &apiKey.SecretId)
		return apiKey, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan API keys: %v", err)
	}

	return apiKeys, nil
}

// parseApiKeyAuthorization decodes an authorization into secret ID and secret.
func parseApiKeyAuthorization(authorization string) (string, string, error) {
	if authorization == "" {
		return "", "", errors.New("authorization is empty")
	}

	b, err := base64.StdEncoding.DecodeString(authorization)
	if err != nil {
		return "", "", fmt.Errorf("failed to decode authorization: %v", err)
	}

	// secret IDs must not contain a colon, secrets are URL encoded
	secretId, secret, ok := strings.Cut(string(b), ":")
	if !ok || secretId == "" || secret == "" {
		return "", "", errors.New("failed to decode authorization: expected format <secret ID>:<secret>")
	}

	return secretId, secret, nil
}

func hashSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return base64.StdEncoding.EncodeToString(hash[:])
}
