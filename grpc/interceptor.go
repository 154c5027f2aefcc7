package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ac "github.com/panyam/authcore"
)

// InterceptorConfig configures the server interceptors.
type InterceptorConfig struct {
	*Config

	// RequireAuth rejects calls without an account id.
	RequireAuth bool

	// PublicMethods skip RequireAuth. Keys are full method names like
	// "/package.Service/Method".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig requires an account on every method.
func DefaultInterceptorConfig() *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

func NewPublicMethodsConfig(publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig()
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig lets anonymous calls through.
func OptionalAuthConfig() *InterceptorConfig {
	config := DefaultInterceptorConfig()
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if c == nil {
		c = DefaultInterceptorConfig()
	}
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	return c
}

func (c *InterceptorConfig) check(ctx context.Context, method string) (string, error) {
	accountID := accountIDFromMetadata(ctx, c.MetadataKeyAccountID)
	if c.RequireAuth && !c.PublicMethods[method] && accountID == "" {
		return "", status.Error(codes.Unauthenticated, "authentication required")
	}
	return accountID, nil
}

// UnaryAuthInterceptor reads the account id from metadata, enforces
// RequireAuth and exposes the id via AccountIDFromContext.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = config.ensureDefaults()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		accountID, err := config.check(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(withAccountID(ctx, accountID), req)
	}
}

type accountStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *accountStream) Context() context.Context {
	return s.ctx
}

func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = config.ensureDefaults()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		accountID, err := config.check(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &accountStream{ServerStream: ss, ctx: withAccountID(ss.Context(), accountID)})
	}
}

// UnaryClientInterceptor forwards the account that authcore's HTTP
// middleware placed on the request context.
func UnaryClientInterceptor(config *Config) grpc.UnaryClientInterceptor {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(propagate(ctx, config.MetadataKeyAccountID), method, req, reply, cc, opts...)
	}
}

func StreamClientInterceptor(config *Config) grpc.StreamClientInterceptor {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(propagate(ctx, config.MetadataKeyAccountID), desc, cc, method, opts...)
	}
}

func propagate(ctx context.Context, key string) context.Context {
	account := ac.AccountFromContext(ctx)
	if account == nil {
		return ctx
	}
	if md, ok := metadata.FromOutgoingContext(ctx); ok && len(md.Get(key)) > 0 {
		return ctx
	}
	return AccountIDToOutgoingContextWithKey(ctx, account.ID, key)
}
