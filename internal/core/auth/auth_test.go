package auth

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pliefoog/bmad-autopilot-sub009/internal/core/db"
)

const secretID = "0123456789abcdef0123456789abcdef"

var secret = []byte("testsecret1234567890abcdefghijklmnop")

type rowsAffected int64

func (rowsAffected) LastInsertId() (int64, error) { return 0, nil }
func (n rowsAffected) RowsAffected() (int64, error) { return int64(n), nil }

// memKeys stores a single key record in memory.
type memKeys struct {
	hash    []byte
	rec     keyRecord
	getErr  error
	touched []time.Time
}

func (m *memKeys) Get(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	if hash, _ := args[0].([]byte); string(hash) != string(m.hash) {
		return sql.ErrNoRows
	}
	*dest.(*keyRecord) = m.rec
	return nil
}

func (m *memKeys) Exec(ctx context.Context, name string, args ...interface{}) (sql.Result, error) {
	if name == "update-last-used" {
		m.touched = append(m.touched, args[0].(time.Time))
	}
	return rowsAffected(1), nil
}

func issue(t *testing.T) (APIKey, *memKeys) {
	t.Helper()
	key, err := NewAPIKey(secretID)
	require.NoError(t, err)
	return key, &memKeys{hash: key.Sign(secret), rec: keyRecord{APIKeyID: "key-1", Name: "chartplotter"}}
}

func TestParseAPIKey(t *testing.T) {
	random := strings.Repeat("ab", 32)
	valid := APIKey{SecretID: secretID, Random: random}.String()

	tests := []struct {
		name string
		key  string
		ok   bool
	}{
		{"valid", valid, true},
		{"foreign prefix", "tk-v1-" + secretID + "-" + random, false},
		{"future version", "bm-v2-" + secretID + "-" + random, false},
		{"short secret id", "bm-v1-0123-" + random, false},
		{"short random", "bm-v1-" + secretID + "-abcd", false},
		{"upper-case hex", "bm-v1-" + strings.ToUpper(secretID) + "-" + random, false},
		{"trailing part", valid + "-x", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseAPIKey(tt.key)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrInvalidKeyFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, APIKey{SecretID: secretID, Random: random}, key)
			assert.Equal(t, tt.key, key.String())
		})
	}
}

func TestNewAPIKey(t *testing.T) {
	a, err := NewAPIKey(secretID)
	require.NoError(t, err)
	b, err := NewAPIKey(secretID)
	require.NoError(t, err)

	assert.Len(t, a.String(), 102)
	assert.NotEqual(t, a.Random, b.Random)
	assert.NotEqual(t, a.Sign(secret), b.Sign(secret))
	assert.Equal(t, a.Sign(secret), a.Sign(secret))
	assert.NotEqual(t, a.Sign(secret), a.Sign([]byte("another secret of sufficient size!")))

	_, err = NewAPIKey("nothex")
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	key, _ := issue(t)
	stranger := APIKey{SecretID: strings.Repeat("f", 32), Random: strings.Repeat("0", 64)}

	tests := []struct {
		name    string
		key     string
		mutate  func(*memKeys)
		wantErr error
	}{
		{"valid", key.String(), nil, nil},
		{"malformed", "nope", nil, ErrInvalidKeyFormat},
		{"unknown secret", stranger.String(), nil, ErrUnknownKey},
		{"not stored", key.String(), func(m *memKeys) { m.hash = []byte("other") }, ErrInvalidKey},
		{"revoked", key.String(), func(m *memKeys) { m.rec.RevokedAt = sql.NullTime{Time: time.Now(), Valid: true} }, ErrKeyRevoked},
		{"store down", key.String(), func(m *memKeys) { m.getErr = errors.New("connection refused") }, errStore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := &memKeys{hash: key.Sign(secret), rec: keyRecord{APIKeyID: "key-1", Name: "chartplotter"}}
			if tt.mutate != nil {
				tt.mutate(keys)
			}
			name, err := NewAuthenticator(map[string][]byte{secretID: secret}, keys).Authenticate(context.Background(), tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, keys.touched)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "chartplotter", name)
			assert.Len(t, keys.touched, 1)
		})
	}
}

func TestAuthenticate_TouchThrottled(t *testing.T) {
	key, keys := issue(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	a := NewAuthenticator(map[string][]byte{secretID: secret}, keys)
	a.now = func() time.Time { return now }

	keys.rec.LastUsedAt = sql.NullTime{Time: now.Add(-30 * time.Second), Valid: true}
	_, err := a.Authenticate(context.Background(), key.String())
	require.NoError(t, err)
	assert.Empty(t, keys.touched, "used 30s ago")

	keys.rec.LastUsedAt = sql.NullTime{Time: now.Add(-2 * time.Minute), Valid: true}
	_, err = a.Authenticate(context.Background(), key.String())
	require.NoError(t, err)
	assert.Equal(t, []time.Time{now}, keys.touched)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, codes.OK, statusCode(nil))
	assert.Equal(t, codes.PermissionDenied, statusCode(ErrKeyRevoked))
	assert.Equal(t, codes.Unavailable, statusCode(errors.Join(errStore, errors.New("eof"))))
	for _, err := range []error{ErrMissingKey, ErrInvalidKeyFormat, ErrUnknownKey, ErrInvalidKey} {
		assert.Equal(t, codes.Unauthenticated, statusCode(err), err.Error())
	}
}

func TestUnaryInterceptor(t *testing.T) {
	key, _ := issue(t)

	tests := []struct {
		name     string
		md       metadata.MD
		mutate   func(*memKeys)
		wantCode codes.Code
	}{
		{"ok", metadata.Pairs(MetadataKey, key.String()), nil, codes.OK},
		{"no metadata", nil, nil, codes.Unauthenticated},
		{"missing key", metadata.Pairs("authorization", "x"), nil, codes.Unauthenticated},
		{"revoked", metadata.Pairs(MetadataKey, key.String()), func(m *memKeys) { m.rec.RevokedAt = sql.NullTime{Valid: true} }, codes.PermissionDenied},
		{"store down", metadata.Pairs(MetadataKey, key.String()), func(m *memKeys) { m.getErr = errors.New("down") }, codes.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := &memKeys{hash: key.Sign(secret), rec: keyRecord{APIKeyID: "key-1", Name: "chartplotter"}}
			if tt.mutate != nil {
				tt.mutate(keys)
			}
			a := NewAuthenticator(map[string][]byte{secretID: secret}, keys)
			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}

			var client string
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				client = KeyNameFromContext(ctx)
				return "ok", nil
			}
			_, err := a.UnaryInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/bmad.v1.SensorService/GetSensor"}, handler)
			require.Equal(t, tt.wantCode, status.Code(err), "err: %v", err)
			if tt.wantCode == codes.OK {
				assert.Equal(t, "chartplotter", client)
			}
		})
	}
}

type stubStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *stubStream) Context() context.Context { return s.ctx }

func TestStreamInterceptor(t *testing.T) {
	key, keys := issue(t)
	a := NewAuthenticator(map[string][]byte{secretID: secret}, keys)
	info := &grpc.StreamServerInfo{FullMethod: "/bmad.v1.SensorService/WatchEvents", IsServerStream: true}

	var client string
	handler := func(srv interface{}, ss grpc.ServerStream) error {
		client = KeyNameFromContext(ss.Context())
		return nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(MetadataKey, key.String()))
	require.NoError(t, a.StreamInterceptor()(nil, &stubStream{ctx: ctx}, info, handler))
	assert.Equal(t, "chartplotter", client)

	err := a.StreamInterceptor()(nil, &stubStream{ctx: context.Background()}, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestKeyLifecycle_SQLite(t *testing.T) {
	conn, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, db.MigrateUp(conn))
	q, err := db.LoadQueries(conn)
	require.NoError(t, err)
	ctx := context.Background()

	older := "0000000000000000000000000000000a"
	secrets := map[string][]byte{secretID: secret, older: secret}

	_, _, err = CreateKey(ctx, q, nil, "x")
	assert.ErrorIs(t, err, ErrNoSecrets)
	_, _, err = CreateKey(ctx, q, secrets, "")
	assert.Error(t, err)

	id, raw, err := CreateKey(ctx, q, secrets, "chartplotter")
	require.NoError(t, err)
	key, err := ParseAPIKey(raw)
	require.NoError(t, err)
	assert.Equal(t, secretID, key.SecretID, "signed with the newest secret")

	a := NewAuthenticator(secrets, q)
	name, err := a.Authenticate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "chartplotter", name)

	require.NoError(t, RevokeKey(ctx, q, id))
	_, err = a.Authenticate(ctx, raw)
	assert.ErrorIs(t, err, ErrKeyRevoked)

	assert.Error(t, RevokeKey(ctx, q, id), "already revoked")
	assert.Error(t, RevokeKey(ctx, q, "no-such-key"))
}
