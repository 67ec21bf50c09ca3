package auth

import (
	"errors"

	"google.golang.org/grpc/codes"
)

var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrNoSecrets        = errors.New("no HMAC secrets configured (set BM_HMAC_SECRET)")

	// errStore wraps key store failures.
	errStore = errors.New("key store unavailable")
)

// statusCode maps an authentication failure to a gRPC code. Only a revoked
// key reports PERMISSION_DENIED; every other rejection is UNAUTHENTICATED and
// does not reveal whether the key exists.
func statusCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, ErrKeyRevoked):
		return codes.PermissionDenied
	case errors.Is(err, errStore):
		return codes.Unavailable
	default:
		return codes.Unauthenticated
	}
}
