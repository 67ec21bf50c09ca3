// Package auth guards the sensor API with HMAC-signed API keys.
//
// A client sends its key in x-api-key metadata. The key names the secret it
// was signed with; the server recomputes the HMAC with that secret and looks
// the result up in the api_keys table. Secrets come from the environment and
// never touch the database.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MetadataKey is the gRPC metadata entry carrying the API key.
const MetadataKey = "x-api-key"

// touchInterval throttles last_used_at writes per key.
const touchInterval = time.Minute

type contextKey struct{}

// Queries is the subset of *db.Queries the package needs.
type Queries interface {
	Get(ctx context.Context, name string, dest interface{}, args ...interface{}) error
	Exec(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
}

// keyRecord is one get-api-key-by-hash row.
type keyRecord struct {
	APIKeyID   string       `db:"api_key_id"`
	Name       string       `db:"name"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
}

// Authenticator checks API keys against the key store.
type Authenticator struct {
	secrets map[string][]byte // secret id -> secret
	queries Queries
	now     func() time.Time
}

func NewAuthenticator(secrets map[string][]byte, queries Queries) *Authenticator {
	return &Authenticator{secrets: secrets, queries: queries, now: time.Now}
}

// Authenticate returns the name the key was issued under.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (string, error) {
	key, err := ParseAPIKey(raw)
	if err != nil {
		return "", err
	}
	secret, ok := a.secrets[key.SecretID]
	if !ok {
		return "", ErrUnknownKey
	}

	rec, err := a.lookup(ctx, key.Sign(secret))
	if err != nil {
		return "", err
	}
	if rec.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}
	a.touch(ctx, rec)
	return rec.Name, nil
}

func (a *Authenticator) lookup(ctx context.Context, hash []byte) (keyRecord, error) {
	var rec keyRecord
	err := a.queries.Get(ctx, "get-api-key-by-hash", &rec, hash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return rec, ErrInvalidKey
	case err != nil:
		return rec, fmt.Errorf("%w: %v", errStore, err)
	}
	return rec, nil
}

// touch records use of the key at most once per touchInterval. Failures are
// ignored; a missed timestamp must not reject a valid key.
func (a *Authenticator) touch(ctx context.Context, rec keyRecord) {
	now := a.now().UTC()
	if rec.LastUsedAt.Valid && now.Sub(rec.LastUsedAt.Time) <= touchInterval {
		return
	}
	_, _ = a.queries.Exec(ctx, "update-last-used", now, rec.APIKeyID)
}

// authorize authenticates the metadata of an incoming call and stores the key
// name in the returned context.
func (a *Authenticator) authorize(ctx context.Context) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	keys := md.Get(MetadataKey)
	if len(keys) == 0 {
		return nil, status.Error(statusCode(ErrMissingKey), ErrMissingKey.Error())
	}
	name, err := a.Authenticate(ctx, keys[0])
	if err != nil {
		return nil, status.Error(statusCode(err), err.Error())
	}
	return context.WithValue(ctx, contextKey{}, name), nil
}

// UnaryInterceptor authenticates every unary call.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := a.authorize(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor authenticates streaming calls once, at stream open.
func (a *Authenticator) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := a.authorize(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

// KeyNameFromContext returns the authenticated key name, or "" on
// unauthenticated servers.
func KeyNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(contextKey{}).(string)
	return name
}

// CreateKey issues a key signed with the newest secret and stores its HMAC.
// The key itself is returned once and never stored.
func CreateKey(ctx context.Context, q Queries, secrets map[string][]byte, name string) (id, key string, err error) {
	if name == "" {
		return "", "", fmt.Errorf("key name must not be empty")
	}
	secretID, ok := newestSecret(secrets)
	if !ok {
		return "", "", ErrNoSecrets
	}

	k, err := NewAPIKey(secretID)
	if err != nil {
		return "", "", err
	}
	id = uuid.Must(uuid.NewV7()).String()
	if _, err := q.Exec(ctx, "insert-api-key", id, name, k.Sign(secrets[secretID]), time.Now().UTC()); err != nil {
		return "", "", fmt.Errorf("failed to store api key: %w", err)
	}
	return id, k.String(), nil
}

// RevokeKey marks a key revoked. Revoking an unknown or already revoked key
// is an error.
func RevokeKey(ctx context.Context, q Queries, id string) error {
	res, err := q.Exec(ctx, "revoke-api-key", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("api key %s not found or already revoked", id)
	}
	return nil
}

// newestSecret picks the highest secret id. Ids are UUIDv7, so that is the
// most recently created secret.
func newestSecret(secrets map[string][]byte) (string, bool) {
	if len(secrets) == 0 {
		return "", false
	}
	ids := make([]string, 0, len(secrets))
	for id := range secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids[len(ids)-1], true
}
