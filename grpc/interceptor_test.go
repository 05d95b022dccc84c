package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	ma "github.com/panyam/memberauth"
)

func newTestIssuer(t *testing.T, opts ...ma.TokenIssuerOption) *ma.TokenIssuer {
	t.Helper()
	issuer, err := ma.NewTokenIssuer(ma.TokenConfig{SigningKey: []byte("grpc-test-signing-key-0123456789")}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return issuer
}

func incomingWithToken(token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(context.Background(), md)
}

func issue(t *testing.T, issuer *ma.TokenIssuer, email string) string {
	t.Helper()
	token, err := issuer.Issue(email)
	if err != nil {
		t.Fatal(err)
	}
	return token.Value
}

func expectCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected grpc status error, got %v", err)
	}
	if st.Code() != want {
		t.Errorf("expected %v, got %v (%s)", want, st.Code(), st.Message())
	}
}

func TestNewPublicMethodsConfig(t *testing.T) {
	config := NewPublicMethodsConfig(nil, "/pkg.Svc/Method1", "/pkg.Svc/Method2")
	if !config.RequireAuth {
		t.Error("expected RequireAuth to be true")
	}
	if !config.PublicMethods["/pkg.Svc/Method1"] || !config.PublicMethods["/pkg.Svc/Method2"] {
		t.Error("expected Method1 and Method2 to be public")
	}
	if config.PublicMethods["/pkg.Svc/Method3"] {
		t.Error("expected Method3 to not be public")
	}
	if OptionalAuthConfig(nil).RequireAuth {
		t.Error("expected RequireAuth to be false")
	}
}

func TestUnaryAuthInterceptor(t *testing.T) {
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, ma.WithClock(func() time.Time { return clock }))
	interceptor := UnaryAuthInterceptor(NewPublicMethodsConfig(issuer, "/pkg.Svc/Public"))
	valid := issue(t, issuer, "a@x.com")

	tests := []struct {
		name    string
		ctx     context.Context
		method  string
		code    codes.Code
		subject string
	}{
		{"no metadata", context.Background(), "/pkg.Svc/Method", codes.Unauthenticated, ""},
		{"valid token", incomingWithToken(valid), "/pkg.Svc/Method", codes.OK, "a@x.com"},
		{"garbage token", incomingWithToken("garbage"), "/pkg.Svc/Method", codes.Unauthenticated, ""},
		{"wrong scheme", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic abc")), "/pkg.Svc/Method", codes.Unauthenticated, ""},
		{"public without token", context.Background(), "/pkg.Svc/Public", codes.OK, ""},
		{"public with token", incomingWithToken(valid), "/pkg.Svc/Public", codes.OK, "a@x.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			called := false
			_, err := interceptor(tt.ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method},
				func(ctx context.Context, req interface{}) (interface{}, error) {
					called = true
					seen = SubjectFromContext(ctx)
					return nil, nil
				})
			if tt.code != codes.OK {
				expectCode(t, err, tt.code)
				if called {
					t.Error("handler should not be called")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seen != tt.subject {
				t.Errorf("expected subject %q, got %q", tt.subject, seen)
			}
		})
	}

	t.Run("expired token", func(t *testing.T) {
		clock = clock.Add(2 * time.Hour)
		_, err := interceptor(incomingWithToken(valid), nil, &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"},
			func(ctx context.Context, req interface{}) (interface{}, error) { return nil, nil })
		expectCode(t, err, codes.Unauthenticated)
		if st, _ := status.FromError(err); st.Message() != "token has expired" {
			t.Errorf("unexpected message %q", st.Message())
		}
	})
}

func TestUnaryAuthInterceptor_OptionalAuth(t *testing.T) {
	issuer := newTestIssuer(t)
	interceptor := UnaryAuthInterceptor(OptionalAuthConfig(issuer))

	for _, ctx := range []context.Context{context.Background(), incomingWithToken("garbage")} {
		called := false
		_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"},
			func(ctx context.Context, req interface{}) (interface{}, error) {
				called = true
				if IsAuthenticated(ctx) {
					t.Error("expected unauthenticated context")
				}
				return nil, nil
			})
		if err != nil || !called {
			t.Errorf("expected handler to run, err=%v", err)
		}
	}
}

func TestUnaryAuthInterceptor_NoValidator(t *testing.T) {
	interceptor := UnaryAuthInterceptor(nil)
	_, err := interceptor(incomingWithToken("anything"), nil, &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"},
		func(ctx context.Context, req interface{}) (interface{}, error) { return nil, nil })
	expectCode(t, err, codes.Unauthenticated)
}

// mockServerStream is a minimal grpc.ServerStream for interceptor tests
type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context { return m.ctx }

func TestStreamAuthInterceptor(t *testing.T) {
	issuer := newTestIssuer(t)
	interceptor := StreamAuthInterceptor(DefaultInterceptorConfig(issuer))
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/Stream"}

	err := interceptor(nil, &mockServerStream{ctx: context.Background()}, info, func(srv interface{}, ss grpc.ServerStream) error {
		t.Error("handler should not be called")
		return nil
	})
	expectCode(t, err, codes.Unauthenticated)

	var seen string
	err = interceptor(nil, &mockServerStream{ctx: incomingWithToken(issue(t, issuer, "s@x.com"))}, info,
		func(srv interface{}, ss grpc.ServerStream) error {
			seen = SubjectFromContext(ss.Context())
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "s@x.com" {
		t.Errorf("expected subject s@x.com, got %q", seen)
	}
}

// startServer serves health and Members on a bufconn listener behind config
func startServer(t *testing.T, config *InterceptorConfig) func(opts ...grpc.DialOption) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(
		grpc.UnaryInterceptor(UnaryAuthInterceptor(config)),
		grpc.StreamInterceptor(StreamAuthInterceptor(config)),
	)
	healthpb.RegisterHealthServer(server, health.NewServer())
	RegisterMembersServer(server)
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	return func(opts ...grpc.DialOption) *grpc.ClientConn {
		base := []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		}
		conn, err := grpc.NewClient("passthrough:///bufnet", append(base, opts...)...)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn
	}
}

func TestInterceptor_EndToEnd(t *testing.T) {
	issuer := newTestIssuer(t)
	dial := startServer(t, DefaultInterceptorConfig(issuer))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := healthpb.NewHealthClient(dial()).Check(ctx, &healthpb.HealthCheckRequest{})
	expectCode(t, err, codes.Unauthenticated)

	creds := BearerCredentials{Token: issue(t, issuer, "a@x.com"), AllowInsecure: true}
	conn := dial(grpc.WithPerRPCCredentials(creds))
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %v", resp.Status)
	}

	email, err := WhoAmI(ctx, conn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email != "a@x.com" {
		t.Errorf("expected a@x.com, got %q", email)
	}

	email, err = WhoAmI(TokenToOutgoingContext(ctx, issue(t, issuer, "b@x.com")), dial())
	if err != nil || email != "b@x.com" {
		t.Errorf("WhoAmI with outgoing metadata = %q, %v", email, err)
	}
}

func TestWhoAmI_RequiresToken(t *testing.T) {
	issuer := newTestIssuer(t)
	// health is public here, WhoAmI is not
	dial := startServer(t, NewPublicMethodsConfig(issuer,
		healthpb.Health_Check_FullMethodName,
		healthpb.Health_Watch_FullMethodName,
	))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial()
	if _, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{}); err != nil {
		t.Fatalf("health should be public: %v", err)
	}
	_, err := WhoAmI(ctx, conn)
	expectCode(t, err, codes.Unauthenticated)

	_, err = WhoAmI(TokenToOutgoingContext(ctx, "garbage"), conn)
	expectCode(t, err, codes.Unauthenticated)
}

func TestInterceptor_CustomMetadataKey(t *testing.T) {
	issuer := newTestIssuer(t)
	config := DefaultInterceptorConfig(issuer)
	config.Config = &Config{MetadataKeyAuthorization: "x-member-token"}
	dial := startServer(t, config)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	token := issue(t, issuer, "c@x.com")

	// the default key is not read by this server
	_, err := WhoAmI(TokenToOutgoingContext(ctx, token), dial())
	expectCode(t, err, codes.Unauthenticated)

	email, err := WhoAmI(TokenToOutgoingContextWithKey(ctx, token, "x-member-token"), dial())
	if err != nil || email != "c@x.com" {
		t.Errorf("WhoAmI with custom key = %q, %v", email, err)
	}

	creds := BearerCredentials{Token: token, MetadataKey: "x-member-token", AllowInsecure: true}
	email, err = WhoAmI(ctx, dial(grpc.WithPerRPCCredentials(creds)))
	if err != nil || email != "c@x.com" {
		t.Errorf("WhoAmI with custom key credentials = %q, %v", email, err)
	}
}
