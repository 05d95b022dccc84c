package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ma "github.com/panyam/memberauth"
)

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	// Config holds the metadata key configuration.
	*Config

	// Validator checks bearer tokens. Required.
	Validator ma.TokenValidator

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but SubjectFromContext returns empty.
	RequireAuth bool

	// PublicMethods is a set of method names that don't require auth.
	// Only used when RequireAuth is true.
	// Keys should be full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(validator ma.TokenValidator) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Validator:     validator,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(validator ma.TokenValidator, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(validator)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(validator ma.TokenValidator) *InterceptorConfig {
	config := DefaultInterceptorConfig(validator)
	config.RequireAuth = false
	return config
}

func (config *InterceptorConfig) ensureDefaults() {
	if config.Config == nil {
		config.Config = DefaultConfig()
	}
	config.Config.EnsureDefaults()
	if config.PublicMethods == nil {
		config.PublicMethods = make(map[string]bool)
	}
}

// authenticate returns ctx with the subject set, or an Unauthenticated status
func (config *InterceptorConfig) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	required := config.RequireAuth && !config.PublicMethods[fullMethod]

	raw := tokenFromIncoming(ctx, config.Config)
	if raw == "" {
		if required {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}

	email, err := validate(config.Validator, raw)
	if err != nil {
		if required {
			msg := "invalid token"
			if errors.Is(err, ma.ErrTokenExpired) {
				msg = "token has expired"
			}
			return nil, status.Error(codes.Unauthenticated, msg)
		}
		return ctx, nil
	}
	return ContextWithSubject(ctx, email), nil
}

func validate(validator ma.TokenValidator, raw string) (string, error) {
	if validator == nil {
		return "", errors.New("no token validator configured")
	}
	token, err := ma.BearerToken(raw)
	if err != nil {
		return "", err
	}
	return validator.Validate(token)
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that validates bearer tokens.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	config.ensureDefaults()

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		authCtx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(authCtx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that validates bearer tokens.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	config.ensureDefaults()

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		authCtx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: authCtx})
	}
}

// authenticatedStream overrides Context so handlers see the subject
type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}
