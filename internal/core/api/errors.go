package api

// Error mapping is done inline in handlers.
// Auth errors mapped in auth package interceptor.
// Filter validation errors map to INVALID_ARGUMENT.
// Encoding failures map to INTERNAL.
// Cancelled requests map via status.FromContextError.
