// Package grpc carries the session-bound account id from HTTP handlers to
// downstream gRPC services via metadata.
package grpc

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// DefaultMetadataKeyAccountID is the metadata key holding the account id.
const DefaultMetadataKeyAccountID = "x-account-id"

// Config holds the metadata key configuration.
type Config struct {
	// MetadataKeyAccountID defaults to "x-account-id".
	MetadataKeyAccountID string
}

func DefaultConfig() *Config {
	return &Config{MetadataKeyAccountID: DefaultMetadataKeyAccountID}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAccountID == "" {
		c.MetadataKeyAccountID = DefaultMetadataKeyAccountID
	}
}

type accountIDKey struct{}

// AccountIDFromContext returns the account id attached by the server
// interceptors, falling back to incoming metadata. Empty means anonymous.
func AccountIDFromContext(ctx context.Context) string {
	return AccountIDFromContextWithConfig(ctx, nil)
}

func AccountIDFromContextWithConfig(ctx context.Context, config *Config) string {
	if id, ok := ctx.Value(accountIDKey{}).(string); ok {
		return id
	}
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()
	return accountIDFromMetadata(ctx, config.MetadataKeyAccountID)
}

func accountIDFromMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

func withAccountID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, accountIDKey{}, id)
}

// AccountIDToOutgoingContext adds the account id to outgoing metadata.
func AccountIDToOutgoingContext(ctx context.Context, accountID string) context.Context {
	return AccountIDToOutgoingContextWithKey(ctx, accountID, DefaultMetadataKeyAccountID)
}

func AccountIDToOutgoingContextWithKey(ctx context.Context, accountID string, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, key, accountID)
}

// IsAuthenticated reports whether ctx carries an account id.
func IsAuthenticated(ctx context.Context) bool {
	return AccountIDFromContext(ctx) != ""
}
